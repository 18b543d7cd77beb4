package usecase

import (
	"errors"
	"fmt"
	"sync"

	"github.com/arklim/continuous-auth/internal/core/domain"
)

var (
	// ErrThresholdOrdering indicates base thresholds violate low <= medium <= high.
	// This is a configuration error and must abort startup.
	ErrThresholdOrdering = errors.New("threshold ordering violated: require low <= medium <= high")
	// ErrUnknownFeedback indicates an unrecognized feedback kind.
	ErrUnknownFeedback = errors.New("unknown threshold feedback")
)

// ThresholdLevel names one of the three configured confidence bands.
type ThresholdLevel string

const (
	ThresholdHigh   ThresholdLevel = "high"
	ThresholdMedium ThresholdLevel = "medium"
	ThresholdLow    ThresholdLevel = "low"
)

// Feedback is the operator verdict driving adaptive adjustment.
type Feedback string

const (
	FeedbackFalsePositive Feedback = "false_positive"
	FeedbackFalseNegative Feedback = "false_negative"
)

const (
	// maxAdjustment bounds the per-context accumulator.
	maxAdjustment = 0.3
	// effective thresholds always stay inside [effectiveFloor, effectiveCeil].
	effectiveFloor = 0.1
	effectiveCeil  = 0.95
)

// BaseThresholds holds the configured confidence bands.
type BaseThresholds struct {
	High   float64
	Medium float64
	Low    float64
}

// Validate rejects out-of-order or out-of-range bands.
func (b BaseThresholds) Validate() error {
	if b.Low > b.Medium || b.Medium > b.High {
		return fmt.Errorf("%w: low=%.2f medium=%.2f high=%.2f", ErrThresholdOrdering, b.Low, b.Medium, b.High)
	}
	for _, v := range []float64{b.Low, b.Medium, b.High} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %.2f outside [0,1]", v)
		}
	}
	return nil
}

// ThresholdStore holds base thresholds plus bounded, context-scoped,
// feedback-driven adjustments. Reads vastly outnumber writes and proceed
// concurrently; writes to one context never perturb another.
type ThresholdStore struct {
	mu           sync.RWMutex
	base         BaseThresholds
	adjustments  map[string]float64
	learningRate float64
}

// NewThresholdStore validates the base thresholds and constructs the store.
func NewThresholdStore(base BaseThresholds, learningRate float64) (*ThresholdStore, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if learningRate <= 0 {
		learningRate = 0.1
	}

	return &ThresholdStore{
		base:         base,
		adjustments:  make(map[string]float64),
		learningRate: learningRate,
	}, nil
}

// Effective returns the adjusted threshold for the level within the context,
// clamped to the valid range.
func (t *ThresholdStore) Effective(level ThresholdLevel, context string) float64 {
	t.mu.RLock()
	adjustment := t.adjustments[context]
	base := t.baseFor(level)
	t.mu.RUnlock()

	return clampEffective(base + adjustment)
}

// Adjust applies feedback to the context's bounded accumulator and returns the
// new adjustment value. false_positive nudges thresholds down, false_negative
// nudges them up.
func (t *ThresholdStore) Adjust(context string, feedback Feedback, observedConfidence float64) (float64, error) {
	observedConfidence = domain.ClampUnit(observedConfidence)

	t.mu.Lock()
	defer t.mu.Unlock()

	adjustment := t.adjustments[context]
	switch feedback {
	case FeedbackFalsePositive:
		adjustment -= t.learningRate * observedConfidence
	case FeedbackFalseNegative:
		adjustment += t.learningRate * (1 - observedConfidence)
	default:
		return adjustment, fmt.Errorf("%w: %q", ErrUnknownFeedback, feedback)
	}

	if adjustment > maxAdjustment {
		adjustment = maxAdjustment
	}
	if adjustment < -maxAdjustment {
		adjustment = -maxAdjustment
	}
	t.adjustments[context] = adjustment

	return adjustment, nil
}

// Adjustment returns the current accumulator for the context.
func (t *ThresholdStore) Adjustment(context string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.adjustments[context]
}

// Classify maps a combined confidence onto a decision and confidence level
// using the context's effective thresholds.
func (t *ThresholdStore) Classify(combinedConfidence float64, context string) (domain.Decision, domain.ConfidenceLevel) {
	t.mu.RLock()
	adjustment := t.adjustments[context]
	base := t.base
	t.mu.RUnlock()

	high := clampEffective(base.High + adjustment)
	medium := clampEffective(base.Medium + adjustment)
	low := clampEffective(base.Low + adjustment)

	switch {
	case combinedConfidence >= high:
		return domain.DecisionContinue, domain.ConfidenceHigh
	case combinedConfidence >= medium:
		return domain.DecisionMonitor, domain.ConfidenceMedium
	case combinedConfidence >= low:
		return domain.DecisionChallenge, domain.ConfidenceLow
	default:
		return domain.DecisionLogout, domain.ConfidenceVeryLow
	}
}

func (t *ThresholdStore) baseFor(level ThresholdLevel) float64 {
	switch level {
	case ThresholdHigh:
		return t.base.High
	case ThresholdMedium:
		return t.base.Medium
	case ThresholdLow:
		return t.base.Low
	default:
		return t.base.Medium
	}
}

func clampEffective(v float64) float64 {
	if v < effectiveFloor {
		return effectiveFloor
	}
	if v > effectiveCeil {
		return effectiveCeil
	}
	return v
}
