package usecase

import (
	"errors"
	"math"
	"testing"

	"github.com/arklim/continuous-auth/internal/core/domain"
)

func TestThresholdStoreRejectsBadOrdering(t *testing.T) {
	_, err := NewThresholdStore(BaseThresholds{High: 0.5, Medium: 0.7, Low: 0.9}, 0.1)
	if !errors.Is(err, ErrThresholdOrdering) {
		t.Fatalf("expected ErrThresholdOrdering, got %v", err)
	}
}

func TestThresholdStoreRejectsOutOfRange(t *testing.T) {
	_, err := NewThresholdStore(BaseThresholds{High: 1.2, Medium: 0.7, Low: 0.5}, 0.1)
	if err == nil {
		t.Fatal("expected error for threshold above 1")
	}
}

func TestClassifyDefaultBands(t *testing.T) {
	store := defaultTestThresholds(t)

	cases := []struct {
		confidence float64
		decision   domain.Decision
		level      domain.ConfidenceLevel
	}{
		{0.95, domain.DecisionContinue, domain.ConfidenceHigh},
		{0.90, domain.DecisionContinue, domain.ConfidenceHigh},
		{0.75, domain.DecisionMonitor, domain.ConfidenceMedium},
		{0.55, domain.DecisionChallenge, domain.ConfidenceLow},
		{0.50, domain.DecisionChallenge, domain.ConfidenceLow},
		{0.40, domain.DecisionLogout, domain.ConfidenceVeryLow},
		{0.10, domain.DecisionLogout, domain.ConfidenceVeryLow},
	}

	for _, tc := range cases {
		decision, level := store.Classify(tc.confidence, "default")
		if decision != tc.decision {
			t.Fatalf("confidence %.2f: expected decision %s, got %s", tc.confidence, tc.decision, decision)
		}
		if level != tc.level {
			t.Fatalf("confidence %.2f: expected level %s, got %s", tc.confidence, tc.level, level)
		}
	}
}

func TestClassifyMonotonicInConfidence(t *testing.T) {
	store := defaultTestThresholds(t)

	// Push the "payment" context away from the base bands so the sweep also
	// covers an adjusted context.
	if _, err := store.Adjust("payment", FeedbackFalseNegative, 0.4); err != nil {
		t.Fatalf("Adjust returned error: %v", err)
	}

	rank := map[domain.Decision]int{
		domain.DecisionLogout:    0,
		domain.DecisionChallenge: 1,
		domain.DecisionMonitor:   2,
		domain.DecisionContinue:  3,
	}

	for _, contextName := range []string{"default", "payment"} {
		prev := -1
		for step := 0; step <= 1000; step++ {
			confidence := float64(step) / 1000
			decision, _ := store.Classify(confidence, contextName)
			r, ok := rank[decision]
			if !ok {
				t.Fatalf("context %q: unknown decision %s at confidence %.3f", contextName, decision, confidence)
			}
			if r < prev {
				t.Fatalf("context %q: decision regressed to %s at confidence %.3f", contextName, decision, confidence)
			}
			prev = r
		}
	}
}

func TestAdjustFalseNegativeRaisesThresholds(t *testing.T) {
	store := defaultTestThresholds(t)

	adjustment, err := store.Adjust("payment", FeedbackFalseNegative, 0.4)
	if err != nil {
		t.Fatalf("Adjust returned error: %v", err)
	}
	want := 0.1 * (1 - 0.4)
	if math.Abs(adjustment-want) > 1e-9 {
		t.Fatalf("expected adjustment %.3f, got %.3f", want, adjustment)
	}

	if got := store.Effective(ThresholdHigh, "payment"); math.Abs(got-(0.9+want)) > 1e-9 {
		t.Fatalf("unexpected effective high threshold: %.3f", got)
	}
}

func TestAdjustFalsePositiveLowersThresholds(t *testing.T) {
	store := defaultTestThresholds(t)

	adjustment, err := store.Adjust("login", FeedbackFalsePositive, 0.8)
	if err != nil {
		t.Fatalf("Adjust returned error: %v", err)
	}
	want := -0.1 * 0.8
	if math.Abs(adjustment-want) > 1e-9 {
		t.Fatalf("expected adjustment %.3f, got %.3f", want, adjustment)
	}
}

func TestAdjustmentBoundedAboveAndBelow(t *testing.T) {
	store := defaultTestThresholds(t)

	for i := 0; i < 100; i++ {
		if _, err := store.Adjust("ctx", FeedbackFalseNegative, 0.0); err != nil {
			t.Fatalf("Adjust returned error: %v", err)
		}
	}
	if got := store.Adjustment("ctx"); got > maxAdjustment+1e-9 {
		t.Fatalf("adjustment exceeded upper bound: %.3f", got)
	}

	for i := 0; i < 100; i++ {
		if _, err := store.Adjust("ctx2", FeedbackFalsePositive, 1.0); err != nil {
			t.Fatalf("Adjust returned error: %v", err)
		}
	}
	if got := store.Adjustment("ctx2"); got < -maxAdjustment-1e-9 {
		t.Fatalf("adjustment exceeded lower bound: %.3f", got)
	}
}

func TestAdjustmentContextIsolation(t *testing.T) {
	store := defaultTestThresholds(t)

	if _, err := store.Adjust("compromised", FeedbackFalseNegative, 0.0); err != nil {
		t.Fatalf("Adjust returned error: %v", err)
	}

	if got := store.Adjustment("untouched"); got != 0 {
		t.Fatalf("unrelated context was mutated: %.3f", got)
	}
	if got := store.Effective(ThresholdHigh, "untouched"); got != 0.9 {
		t.Fatalf("unrelated effective threshold changed: %.3f", got)
	}
}

func TestEffectiveClampedToValidRange(t *testing.T) {
	store, err := NewThresholdStore(BaseThresholds{High: 0.9, Medium: 0.7, Low: 0.12}, 0.1)
	if err != nil {
		t.Fatalf("NewThresholdStore returned error: %v", err)
	}

	for i := 0; i < 100; i++ {
		if _, err := store.Adjust("ctx", FeedbackFalsePositive, 1.0); err != nil {
			t.Fatalf("Adjust returned error: %v", err)
		}
	}
	// Low base 0.12 with adjustment -0.3 clamps at the floor.
	if got := store.Effective(ThresholdLow, "ctx"); got != 0.1 {
		t.Fatalf("expected floor 0.1, got %.3f", got)
	}

	for i := 0; i < 100; i++ {
		if _, err := store.Adjust("ctx2", FeedbackFalseNegative, 0.0); err != nil {
			t.Fatalf("Adjust returned error: %v", err)
		}
	}
	// High base 0.9 with adjustment +0.3 clamps at the ceiling.
	if got := store.Effective(ThresholdHigh, "ctx2"); got != 0.95 {
		t.Fatalf("expected ceiling 0.95, got %.3f", got)
	}
}

func TestAdjustUnknownFeedback(t *testing.T) {
	store := defaultTestThresholds(t)

	if _, err := store.Adjust("ctx", Feedback("bogus"), 0.5); !errors.Is(err, ErrUnknownFeedback) {
		t.Fatalf("expected ErrUnknownFeedback, got %v", err)
	}
}
