package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/continuous-auth/internal/core/domain"
)

const defaultAlertHistoryCap = 1000

// RiskAssessor derives risk factors, severity, and recommended actions from a
// fused confidence plus contextual signals. Each evaluation produces a fresh,
// immutable SecurityAlert that is appended to a bounded in-memory history.
type RiskAssessor struct {
	thresholds *ThresholdStore
	logger     *zap.Logger

	mu         sync.Mutex
	history    []domain.SecurityAlert
	historyCap int

	now func() time.Time
}

// NewRiskAssessor constructs an assessor backed by the supplied threshold
// store, which scopes the confidence-tier action mapping per context.
func NewRiskAssessor(thresholds *ThresholdStore, logger *zap.Logger) *RiskAssessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskAssessor{
		thresholds: thresholds,
		logger:     logger,
		historyCap: defaultAlertHistoryCap,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Test helper.
func (r *RiskAssessor) WithClock(now func() time.Time) *RiskAssessor {
	r.now = now
	return r
}

// WithHistoryCap overrides the bounded history size.
func (r *RiskAssessor) WithHistoryCap(cap int) *RiskAssessor {
	if cap > 0 {
		r.historyCap = cap
	}
	return r
}

// AnalyzeRisk evaluates one authentication pass. All risk factors are
// independent and may fire together; severity rules only ever escalate; the
// recommended-action list is composed in a fixed order and deduplicated
// keeping the first occurrence, because callers may act only on the head.
func (r *RiskAssessor) AnalyzeRisk(userID, sessionID string, combinedConfidence, anomalyScore float64, signals domain.ContextSignals, context string) domain.SecurityAlert {
	factors := deriveRiskFactors(combinedConfidence, anomalyScore, signals)
	severity := deriveSeverity(combinedConfidence, anomalyScore, factors)
	actions := r.composeActions(combinedConfidence, severity, factors, context)

	alert := domain.SecurityAlert{
		ID:                 uuid.NewString(),
		UserID:             userID,
		SessionID:          sessionID,
		Severity:           severity,
		RiskFactors:        factors,
		RecommendedActions: actions,
		CombinedConfidence: combinedConfidence,
		AnomalyScore:       anomalyScore,
		Context:            context,
		Timestamp:          r.now().UTC(),
	}

	r.mu.Lock()
	r.history = append(r.history, alert)
	if len(r.history) > r.historyCap {
		r.history = r.history[len(r.history)-r.historyCap:]
	}
	r.mu.Unlock()

	if severity.AtLeast(domain.SeverityHigh) {
		r.logger.Warn("elevated risk detected",
			zap.String("alert_id", alert.ID),
			zap.String("session_id", sessionID),
			zap.String("severity", string(severity)),
			zap.Float64("combined_confidence", combinedConfidence),
		)
	}

	return alert
}

// RecentAlerts returns up to limit alerts, newest last. limit <= 0 returns the
// whole retained history.
func (r *RiskAssessor) RecentAlerts(limit int) []domain.SecurityAlert {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.SecurityAlert, n)
	copy(out, r.history[len(r.history)-n:])
	return out
}

// HistoryLen returns the number of retained alerts.
func (r *RiskAssessor) HistoryLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

func deriveRiskFactors(combinedConfidence, anomalyScore float64, signals domain.ContextSignals) []domain.RiskFactor {
	var factors []domain.RiskFactor

	switch {
	case combinedConfidence < 0.3:
		factors = append(factors, domain.RiskVeryLowConfidence)
	case combinedConfidence < 0.5:
		factors = append(factors, domain.RiskLowConfidence)
	}
	if anomalyScore > 0.7 {
		factors = append(factors, domain.RiskHighAnomalyScore)
	}
	if signals.DeviceMismatch {
		factors = append(factors, domain.RiskFingerprintMismatch)
	}
	if signals.LocationChange {
		factors = append(factors, domain.RiskLocationChange)
	}
	if signals.TimeAnomaly {
		factors = append(factors, domain.RiskTimeAnomaly)
	}

	return factors
}

func deriveSeverity(combinedConfidence, anomalyScore float64, factors []domain.RiskFactor) domain.Severity {
	var severity domain.Severity
	switch {
	case combinedConfidence < 0.2:
		severity = domain.SeverityCritical
	case combinedConfidence < 0.4:
		severity = domain.SeverityHigh
	case combinedConfidence < 0.6:
		severity = domain.SeverityMedium
	default:
		severity = domain.SeverityLow
	}

	if anomalyScore > 0.8 && (severity == domain.SeverityLow || severity == domain.SeverityMedium) {
		severity = domain.SeverityHigh
	}

	for _, f := range factors {
		if f == domain.RiskFingerprintMismatch || f == domain.RiskVeryLowConfidence {
			severity = severity.Escalate(domain.SeverityHigh)
			break
		}
	}

	return severity
}

// composeActions builds the ordered action list: confidence tier first, then
// severity additions, then factor-specific additions, deduplicated with
// first-seen position preserved.
func (r *RiskAssessor) composeActions(combinedConfidence float64, severity domain.Severity, factors []domain.RiskFactor, context string) []domain.ResponseAction {
	var actions []domain.ResponseAction

	high := r.thresholds.Effective(ThresholdHigh, context)
	medium := r.thresholds.Effective(ThresholdMedium, context)
	low := r.thresholds.Effective(ThresholdLow, context)

	switch {
	case combinedConfidence >= high:
		actions = append(actions, domain.ActionContinue)
	case combinedConfidence >= medium:
		actions = append(actions, domain.ActionMonitor, domain.ActionContinue)
	case combinedConfidence >= low:
		actions = append(actions, domain.ActionChallengePIN, domain.ActionMonitor)
	default:
		actions = append(actions, domain.ActionLogout, domain.ActionAlertAdmin)
	}

	switch severity {
	case domain.SeverityCritical:
		actions = append(actions, domain.ActionLogout, domain.ActionAlertAdmin, domain.ActionLockSession)
	case domain.SeverityHigh:
		actions = append(actions, domain.ActionChallengeBiometric, domain.ActionRestrictFunctions)
	}

	for _, f := range factors {
		switch f {
		case domain.RiskFingerprintMismatch:
			actions = append(actions, domain.ActionChallengeOutOfBand)
		case domain.RiskLocationChange:
			actions = append(actions, domain.ActionChallengeBiometric)
		}
	}

	return dedupeActions(actions)
}

func dedupeActions(actions []domain.ResponseAction) []domain.ResponseAction {
	seen := make(map[domain.ResponseAction]struct{}, len(actions))
	out := actions[:0]
	for _, a := range actions {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
