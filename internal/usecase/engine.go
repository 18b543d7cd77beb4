package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/continuous-auth/internal/core/domain"
	"github.com/arklim/continuous-auth/internal/core/port"
)

// DefaultContext scopes threshold adjustments when the caller supplies none.
const DefaultContext = "default"

// EngineMetrics receives engine-level observations. Implemented by the
// telemetry package; a nop implementation is used in tests.
type EngineMetrics interface {
	ObserveAuthentication(decision string, duration time.Duration)
	ObserveChallenge(challengeType, outcome string)
	ObserveAlert(severity string)
	SetActiveSessions(count int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveAuthentication(string, time.Duration) {}
func (nopMetrics) ObserveChallenge(string, string)             {}
func (nopMetrics) ObserveAlert(string)                         {}
func (nopMetrics) SetActiveSessions(int)                       {}

// AuthStats is an aggregate view over all authentication passes since start.
type AuthStats struct {
	Total             int64
	Successful        int64
	Challenged        int64
	Failed            int64
	AverageConfidence float64
}

// AuthenticateRequest carries the inputs of one continuous-authentication
// pass.
type AuthenticateRequest struct {
	SessionID         string
	DeviceFingerprint *string
	Context           string
	Signals           domain.ContextSignals
}

// AuthEngine is the decision orchestrator. It validates the session, fetches
// the feature snapshot, scores it, classifies the fused confidence against
// the context's thresholds, assesses risk, and executes the resulting
// actions. Per-session and per-challenge work is serialized through keyed
// locks so concurrent calls for one session cannot interleave.
type AuthEngine struct {
	sessions   *SessionService
	challenges *ChallengeService
	thresholds *ThresholdStore
	risk       *RiskAssessor

	features port.FeatureProvider
	scorer   port.Scorer
	events   port.EventPublisher
	alerts   port.AlertRepository
	metrics  EngineMetrics
	logger   *zap.Logger

	sessionLocks   *keyedMutex
	challengeLocks *keyedMutex

	statsMu sync.Mutex
	stats   AuthStats

	now func() time.Time
}

// EngineDeps bundles the engine's collaborators.
type EngineDeps struct {
	Sessions   *SessionService
	Challenges *ChallengeService
	Thresholds *ThresholdStore
	Risk       *RiskAssessor
	Features   port.FeatureProvider
	Scorer     port.Scorer
	Events     port.EventPublisher
	Alerts     port.AlertRepository
	Metrics    EngineMetrics
	Logger     *zap.Logger
}

// NewAuthEngine constructs the orchestrator.
func NewAuthEngine(deps EngineDeps) *AuthEngine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &AuthEngine{
		sessions:       deps.Sessions,
		challenges:     deps.Challenges,
		thresholds:     deps.Thresholds,
		risk:           deps.Risk,
		features:       deps.Features,
		scorer:         deps.Scorer,
		events:         deps.Events,
		alerts:         deps.Alerts,
		metrics:        metrics,
		logger:         logger,
		sessionLocks:   newKeyedMutex(),
		challengeLocks: newKeyedMutex(),
		now:            time.Now,
	}
}

// WithClock overrides the time source. Test helper.
func (e *AuthEngine) WithClock(now func() time.Time) *AuthEngine {
	e.now = now
	return e
}

// CreateSession issues a new session for the user.
func (e *AuthEngine) CreateSession(ctx context.Context, userID string, deviceFingerprint, ipAddress *string) (*domain.Session, error) {
	session, err := e.sessions.Create(ctx, userID, deviceFingerprint, ipAddress)
	if err != nil {
		return nil, err
	}
	e.metrics.SetActiveSessions(e.sessions.Count())
	return session, nil
}

// EndSession invalidates the session. Returns false when it did not exist.
func (e *AuthEngine) EndSession(ctx context.Context, sessionID, reason string) bool {
	unlock := e.sessionLocks.Lock(sessionID)
	defer unlock()

	ok := e.sessions.Invalidate(ctx, sessionID, reason)
	if ok {
		e.metrics.SetActiveSessions(e.sessions.Count())
	}
	return ok
}

// GetSessionStatus returns the read-only session view.
func (e *AuthEngine) GetSessionStatus(sessionID string) (*domain.SessionStatus, error) {
	return e.sessions.Status(sessionID)
}

// Authenticate runs one continuous-authentication pass for the session.
func (e *AuthEngine) Authenticate(ctx context.Context, req AuthenticateRequest) (*domain.AuthenticationResult, error) {
	started := e.now()
	if req.Context == "" {
		req.Context = DefaultContext
	}

	unlock := e.sessionLocks.Lock(req.SessionID)
	defer unlock()

	session, err := e.sessions.Validate(ctx, req.SessionID, req.DeviceFingerprint)
	if err != nil {
		// An unknown, expired, or fingerprint-mismatched session is a normal
		// negative outcome, not a failure of the pass itself: the caller gets
		// a logout decision and reacts the same way as to any other decision.
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrFingerprintMismatch) {
			result := &domain.AuthenticationResult{
				Success:   false,
				SessionID: req.SessionID,
				Decision:  domain.DecisionLogout,
				Message:   "session validation failed",
			}
			e.metrics.ObserveAuthentication(string(domain.DecisionLogout), e.now().Sub(started))
			return result, nil
		}
		return nil, err
	}

	// An unanswered challenge gates further evaluation: the caller must
	// resolve it before a fresh decision is produced.
	if pending, ok := e.challenges.PendingForSession(req.SessionID); ok {
		result := &domain.AuthenticationResult{
			Success:            false,
			UserID:             session.UserID,
			SessionID:          session.ID,
			CombinedConfidence: 0,
			Decision:           domain.DecisionChallenge,
			Message:            domain.DecisionChallenge.Message(),
			ChallengeID:        &pending.ID,
			RequiresUserAction: true,
		}
		e.metrics.ObserveAuthentication(string(domain.DecisionChallenge), e.now().Sub(started))
		return result, nil
	}

	sample, degraded := e.score(ctx, req.SessionID)

	var decision domain.Decision
	if degraded {
		// Neutral data from a collecting baseline or failed scorer keeps the
		// session under monitoring rather than challenging or locking out.
		decision = domain.DecisionMonitor
	} else {
		decision, _ = e.thresholds.Classify(sample.CombinedConfidence, req.Context)
	}

	alert := e.risk.AnalyzeRisk(session.UserID, session.ID, sample.CombinedConfidence, sample.AnomalyScore, req.Signals, req.Context)
	e.recordAlert(ctx, alert)

	result := &domain.AuthenticationResult{
		Success:            decision.Succeeded(),
		UserID:             session.UserID,
		SessionID:          session.ID,
		CombinedConfidence: sample.CombinedConfidence,
		Decision:           decision,
		Message:            decision.Message(),
		Assessment:         &alert,
	}

	switch decision {
	case domain.DecisionChallenge:
		challenge, err := e.issueChallenge(ctx, session, alert)
		if err != nil {
			e.logger.Error("failed to issue challenge", zap.String("session_id", session.ID), zap.Error(err))
		} else {
			result.ChallengeID = &challenge.ID
			result.RequiresUserAction = true
		}
	case domain.DecisionLogout:
		e.sessions.Invalidate(ctx, session.ID, "authentication_failed")
		e.metrics.SetActiveSessions(e.sessions.Count())
	}

	if decision != domain.DecisionLogout {
		if _, err := e.sessions.RecordAuthentication(session.ID); err != nil {
			e.logger.Warn("failed to record authentication", zap.String("session_id", session.ID), zap.Error(err))
		}
	}

	e.recordStats(decision, sample.CombinedConfidence)
	e.metrics.ObserveAuthentication(string(decision), e.now().Sub(started))

	return result, nil
}

// HandleChallengeResponse resolves one answer against a pending challenge.
// Exhausting the attempt budget terminates the backing session.
func (e *AuthEngine) HandleChallengeResponse(ctx context.Context, challengeID string, answer domain.ChallengeAnswer) (ChallengeOutcome, error) {
	unlock := e.challengeLocks.Lock(challengeID)
	defer unlock()

	outcome, err := e.challenges.ValidateResponse(ctx, challengeID, answer)
	if errors.Is(err, ErrChallengeNotFound) {
		// Unknown and reclaimed challenge IDs resolve to the same terminal
		// outcome shape as expiry, exhaustion, and replay.
		return ChallengeOutcome{
			ChallengeID: challengeID,
			Completed:   true,
			Message:     "challenge not found",
		}, nil
	}
	if err != nil {
		return ChallengeOutcome{}, err
	}

	if outcome.Exhausted && outcome.SessionID != "" {
		sessionUnlock := e.sessionLocks.Lock(outcome.SessionID)
		e.sessions.Invalidate(ctx, outcome.SessionID, "challenge_failed")
		sessionUnlock()
		e.metrics.SetActiveSessions(e.sessions.Count())
	}

	switch {
	case outcome.Success:
		e.metrics.ObserveChallenge(string(outcome.Type), "success")
	case outcome.Exhausted:
		e.metrics.ObserveChallenge(string(outcome.Type), "exhausted")
	default:
		e.metrics.ObserveChallenge(string(outcome.Type), "failed")
	}

	return outcome, nil
}

// AdjustThreshold applies operator feedback to the context's adaptive
// adjustment and publishes the change to the audit stream.
func (e *AuthEngine) AdjustThreshold(ctx context.Context, contextName string, feedback Feedback, observedConfidence float64) (float64, error) {
	if contextName == "" {
		contextName = DefaultContext
	}

	adjustment, err := e.thresholds.Adjust(contextName, feedback, observedConfidence)
	if err != nil {
		return adjustment, err
	}

	e.logger.Info("threshold adjusted",
		zap.String("context", contextName),
		zap.String("feedback", string(feedback)),
		zap.Float64("adjustment", adjustment),
	)

	if e.events != nil {
		event := domain.ThresholdAdjustedEvent{
			EventID:            uuid.NewString(),
			Context:            contextName,
			Feedback:           string(feedback),
			ObservedConfidence: observedConfidence,
			Adjustment:         adjustment,
			AdjustedAt:         e.now().UTC(),
		}
		if err := e.events.PublishThresholdAdjusted(ctx, event); err != nil {
			e.logger.Warn("publish threshold adjusted failed", zap.Error(err))
		}
	}

	return adjustment, nil
}

// Stats returns a snapshot of the aggregate counters.
func (e *AuthEngine) Stats() AuthStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// RecentAlerts exposes the bounded in-memory alert history.
func (e *AuthEngine) RecentAlerts(limit int) []domain.SecurityAlert {
	return e.risk.RecentAlerts(limit)
}

// RunSweeper periodically reclaims expired sessions and challenges until the
// context is cancelled.
func (e *AuthEngine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions := e.sessions.CleanupExpired(ctx)
			challenges := e.challenges.CleanupExpired(ctx)
			e.metrics.SetActiveSessions(e.sessions.Count())
			if sessions > 0 || challenges > 0 {
				e.logger.Debug("sweeper pass",
					zap.Int("sessions_reclaimed", sessions),
					zap.Int("challenges_reclaimed", challenges),
				)
			}
		}
	}
}

// score produces the fused sample for the session. Missing features and
// scorer failures both degrade to the neutral sample; the caller resolves a
// degraded sample to monitoring rather than classifying it.
func (e *AuthEngine) score(ctx context.Context, sessionID string) (domain.ScoreSample, bool) {
	features, ok, err := e.features.CurrentFeatures(ctx, sessionID)
	if err != nil {
		e.logger.Error("feature fetch failed", zap.String("session_id", sessionID), zap.Error(err))
		return domain.NeutralSample(), true
	}
	if !ok {
		// Baseline still collecting; neutral score keeps the session under
		// monitoring without locking the user out.
		return domain.NeutralSample(), true
	}

	authConfidence, anomalyScore, err := e.scorer.Predict(ctx, features)
	if err != nil {
		e.logger.Error("scorer failed", zap.String("session_id", sessionID), zap.Error(err))
		return domain.NeutralSample(), true
	}

	return domain.FuseScores(&authConfidence, &anomalyScore), false
}

// issueChallenge creates the step-up challenge demanded by the alert's first
// challenge-class action, defaulting to PIN.
func (e *AuthEngine) issueChallenge(ctx context.Context, session *domain.Session, alert domain.SecurityAlert) (domain.Challenge, error) {
	challengeType := domain.ChallengePIN
	for _, action := range alert.RecommendedActions {
		if t, ok := action.ChallengeTypeFor(); ok {
			challengeType = t
			break
		}
	}
	return e.challenges.Create(ctx, challengeType, session.UserID, session.ID)
}

func (e *AuthEngine) recordAlert(ctx context.Context, alert domain.SecurityAlert) {
	e.metrics.ObserveAlert(string(alert.Severity))

	if e.alerts != nil {
		if err := e.alerts.Insert(ctx, alert); err != nil {
			e.logger.Warn("failed to persist alert", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}

	if e.events != nil && alert.Severity.AtLeast(domain.SeverityMedium) {
		event := domain.RiskAlertEvent{
			EventID:            uuid.NewString(),
			AlertID:            alert.ID,
			UserID:             alert.UserID,
			SessionID:          alert.SessionID,
			Severity:           alert.Severity,
			RiskFactors:        alert.RiskFactors,
			RecommendedActions: alert.RecommendedActions,
			CombinedConfidence: alert.CombinedConfidence,
			AnomalyScore:       alert.AnomalyScore,
			Context:            alert.Context,
			RaisedAt:           alert.Timestamp,
		}
		if err := e.events.PublishRiskAlert(ctx, event); err != nil {
			e.logger.Warn("publish risk alert failed", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}
}

func (e *AuthEngine) recordStats(decision domain.Decision, combinedConfidence float64) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	e.stats.Total++
	switch decision {
	case domain.DecisionContinue, domain.DecisionMonitor:
		e.stats.Successful++
	case domain.DecisionChallenge:
		e.stats.Challenged++
	case domain.DecisionLogout:
		e.stats.Failed++
	}
	e.stats.AverageConfidence += (combinedConfidence - e.stats.AverageConfidence) / float64(e.stats.Total)
}
