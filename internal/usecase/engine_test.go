package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/arklim/continuous-auth/internal/core/domain"
	"github.com/arklim/continuous-auth/internal/infra/security"
)

type engineFixture struct {
	engine   *AuthEngine
	sessions *SessionService
	events   *recordingPublisher
	features *stubFeatures
	scorer   *stubScorer
	current  *time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	events := &recordingPublisher{}
	features := &stubFeatures{features: domain.FeatureVector{"typing_speed": 0.5}, ok: true}
	scorer := &stubScorer{auth: 0.95, anomaly: 0.05}

	hash, err := security.HashPIN("4821")
	if err != nil {
		t.Fatalf("HashPIN returned error: %v", err)
	}

	sessions := NewSessionService(SessionConfig{}, events, nil)
	sessions.WithClock(clock)

	challenges := NewChallengeService(ChallengeConfig{}, &staticCredentials{hash: hash}, events, nil)
	challenges.WithClock(clock)

	thresholds := defaultTestThresholds(t)
	risk := NewRiskAssessor(thresholds, nil).WithClock(clock)

	engine := NewAuthEngine(EngineDeps{
		Sessions:   sessions,
		Challenges: challenges,
		Thresholds: thresholds,
		Risk:       risk,
		Features:   features,
		Scorer:     scorer,
		Events:     events,
	}).WithClock(clock)

	return &engineFixture{
		engine:   engine,
		sessions: sessions,
		events:   events,
		features: features,
		scorer:   scorer,
		current:  &current,
	}
}

func (f *engineFixture) createSession(t *testing.T) *domain.Session {
	t.Helper()
	session, err := f.engine.CreateSession(context.Background(), "user-1", nil, nil)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	return session
}

func TestAuthenticateHighConfidenceContinues(t *testing.T) {
	f := newEngineFixture(t)
	session := f.createSession(t)

	result, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}

	if math.Abs(result.CombinedConfidence-0.95) > 1e-9 {
		t.Fatalf("expected combined confidence 0.95, got %.3f", result.CombinedConfidence)
	}
	if result.Decision != domain.DecisionContinue || !result.Success {
		t.Fatalf("expected continue, got %+v", result)
	}
	if result.RequiresUserAction {
		t.Fatal("continue must not require user action")
	}

	stats := f.engine.Stats()
	if stats.Total != 1 || stats.Successful != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAuthenticateChallengeBandIssuesPINChallenge(t *testing.T) {
	f := newEngineFixture(t)
	session := f.createSession(t)

	// Fuses to (0.6 + 0.4) / 2 = 0.5: inside the challenge band.
	f.scorer.auth = 0.6
	f.scorer.anomaly = 0.6

	result, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}

	if result.Decision != domain.DecisionChallenge {
		t.Fatalf("expected challenge, got %s", result.Decision)
	}
	if result.ChallengeID == nil || !result.RequiresUserAction {
		t.Fatalf("expected a pending challenge, got %+v", result)
	}
	if result.Assessment == nil || result.Assessment.RecommendedActions[0] != domain.ActionChallengePIN {
		t.Fatalf("expected challenge_pin first, got %+v", result.Assessment)
	}
	if len(f.events.challengeCreated) != 1 || f.events.challengeCreated[0].Type != domain.ChallengePIN {
		t.Fatalf("expected one pin challenge event, got %+v", f.events.challengeCreated)
	}

	stats := f.engine.Stats()
	if stats.Challenged != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAuthenticatePendingChallengeGatesEvaluation(t *testing.T) {
	f := newEngineFixture(t)
	session := f.createSession(t)

	f.scorer.auth = 0.6
	f.scorer.anomaly = 0.6

	first, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}

	// Scores recover, but the pending challenge still gates the session.
	f.scorer.auth = 0.99
	f.scorer.anomaly = 0.01

	second, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if second.Decision != domain.DecisionChallenge || second.ChallengeID == nil {
		t.Fatalf("expected gating challenge decision, got %+v", second)
	}
	if *second.ChallengeID != *first.ChallengeID {
		t.Fatal("expected the original pending challenge, not a new one")
	}
	if len(f.events.challengeCreated) != 1 {
		t.Fatalf("expected no additional challenge, got %d", len(f.events.challengeCreated))
	}
}

func TestAuthenticateLogoutTerminatesSession(t *testing.T) {
	f := newEngineFixture(t)
	session := f.createSession(t)

	f.scorer.auth = 0.1
	f.scorer.anomaly = 0.9

	result, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.Decision != domain.DecisionLogout || result.Success {
		t.Fatalf("expected logout, got %+v", result)
	}

	followUp, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if followUp.Decision != domain.DecisionLogout || followUp.Success {
		t.Fatalf("expected logout for terminated session, got %+v", followUp)
	}

	stats := f.engine.Stats()
	if stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAuthenticateInsufficientDataForcesMonitor(t *testing.T) {
	f := newEngineFixture(t)
	session := f.createSession(t)

	f.features.ok = false

	result, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.CombinedConfidence != 0.5 {
		t.Fatalf("expected neutral confidence, got %.3f", result.CombinedConfidence)
	}
	if result.Decision != domain.DecisionMonitor {
		t.Fatalf("expected monitor while baseline collects, got %s", result.Decision)
	}
}

func TestAuthenticateScorerFailureDegradesToNeutral(t *testing.T) {
	f := newEngineFixture(t)
	session := f.createSession(t)

	f.scorer.err = errors.New("model unavailable")

	result, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.CombinedConfidence != 0.5 {
		t.Fatalf("expected neutral confidence, got %.3f", result.CombinedConfidence)
	}
	if result.Decision != domain.DecisionMonitor {
		t.Fatalf("a scorer failure must degrade to monitor, got %s", result.Decision)
	}
}

func TestAuthenticateContextSignalsRaiseRisk(t *testing.T) {
	f := newEngineFixture(t)
	session := f.createSession(t)

	f.scorer.auth = 0.2
	f.scorer.anomaly = 0.9

	result, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{
		SessionID: session.ID,
		Signals:   domain.ContextSignals{DeviceMismatch: true},
	})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}

	alert := result.Assessment
	if alert.Severity != domain.SeverityCritical {
		t.Fatalf("expected critical, got %s", alert.Severity)
	}
	if !alert.HasFactor(domain.RiskFingerprintMismatch) {
		t.Fatalf("expected device_fingerprint_mismatch in %v", alert.RiskFactors)
	}
	if len(f.events.riskAlerts) == 0 {
		t.Fatal("expected a risk alert event")
	}
}

func TestHandleChallengeResponseExhaustionEndsSession(t *testing.T) {
	f := newEngineFixture(t)
	session := f.createSession(t)

	f.scorer.auth = 0.6
	f.scorer.anomaly = 0.6

	result, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.ChallengeID == nil {
		t.Fatalf("expected challenge, got %+v", result)
	}
	challengeID := *result.ChallengeID

	wrong := domain.ChallengeAnswer{PIN: strPtr("0000")}
	var outcome ChallengeOutcome
	for attempt := 1; attempt <= 3; attempt++ {
		outcome, err = f.engine.HandleChallengeResponse(context.Background(), challengeID, wrong)
		if err != nil {
			t.Fatalf("attempt %d returned error: %v", attempt, err)
		}
	}
	if !outcome.Exhausted || outcome.Message != "maximum attempts exceeded" {
		t.Fatalf("expected exhaustion, got %+v", outcome)
	}

	// Exhaustion terminates the backing session.
	after, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if after.Decision != domain.DecisionLogout || after.Success {
		t.Fatalf("expected logout after exhaustion, got %+v", after)
	}

	// Replaying after completion returns the stored outcome unchanged.
	replay, err := f.engine.HandleChallengeResponse(context.Background(), challengeID, domain.ChallengeAnswer{PIN: strPtr("4821")})
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if replay.Success || replay.Message != "challenge already completed" {
		t.Fatalf("expected stored failure on replay, got %+v", replay)
	}
}

func TestHandleChallengeResponseUnknownChallenge(t *testing.T) {
	f := newEngineFixture(t)

	outcome, err := f.engine.HandleChallengeResponse(context.Background(), "missing", domain.ChallengeAnswer{})
	if err != nil {
		t.Fatalf("HandleChallengeResponse returned error: %v", err)
	}
	if outcome.Success || !outcome.Completed || outcome.Message != "challenge not found" {
		t.Fatalf("expected terminal not-found outcome, got %+v", outcome)
	}
}

func TestAuthenticateUnknownSessionYieldsLogout(t *testing.T) {
	f := newEngineFixture(t)

	result, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: "missing"})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.Decision != domain.DecisionLogout || result.Success {
		t.Fatalf("expected logout for unknown session, got %+v", result)
	}
	if result.Message != "session validation failed" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestAuthenticateExpiredSessionYieldsLogout(t *testing.T) {
	f := newEngineFixture(t)
	session := f.createSession(t)

	*f.current = f.current.Add(31 * time.Minute)

	result, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.Decision != domain.DecisionLogout || result.Success {
		t.Fatalf("expected logout for expired session, got %+v", result)
	}
}

func TestAuthenticateFingerprintMismatchYieldsLogout(t *testing.T) {
	f := newEngineFixture(t)
	fp := "fp-original"
	session, err := f.engine.CreateSession(context.Background(), "user-1", &fp, nil)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	other := "fp-tampered"
	result, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID, DeviceFingerprint: &other})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.Decision != domain.DecisionLogout || result.Success {
		t.Fatalf("expected logout for fingerprint mismatch, got %+v", result)
	}
}

func TestAdjustThresholdPublishesEvent(t *testing.T) {
	f := newEngineFixture(t)

	adjustment, err := f.engine.AdjustThreshold(context.Background(), "payment", FeedbackFalseNegative, 0.4)
	if err != nil {
		t.Fatalf("AdjustThreshold returned error: %v", err)
	}
	if math.Abs(adjustment-0.06) > 1e-9 {
		t.Fatalf("expected adjustment 0.06, got %.3f", adjustment)
	}

	if len(f.events.thresholdAdjusted) != 1 {
		t.Fatalf("expected one threshold event, got %d", len(f.events.thresholdAdjusted))
	}
	event := f.events.thresholdAdjusted[0]
	if event.Context != "payment" || event.Feedback != string(FeedbackFalseNegative) {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestEndSession(t *testing.T) {
	f := newEngineFixture(t)
	session := f.createSession(t)

	if !f.engine.EndSession(context.Background(), session.ID, "user_logout") {
		t.Fatal("expected EndSession to remove the session")
	}
	if f.engine.EndSession(context.Background(), session.ID, "user_logout") {
		t.Fatal("expected second EndSession to return false")
	}

	reasons := f.events.revokedReasons()
	if len(reasons) != 1 || reasons[0] != "user_logout" {
		t.Fatalf("unexpected revocation reasons: %v", reasons)
	}
}

func TestGetSessionStatus(t *testing.T) {
	f := newEngineFixture(t)
	session := f.createSession(t)

	status, err := f.engine.GetSessionStatus(session.ID)
	if err != nil {
		t.Fatalf("GetSessionStatus returned error: %v", err)
	}
	if status.SessionID != session.ID || !status.IsActive {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestStatsRollingAverage(t *testing.T) {
	f := newEngineFixture(t)
	session := f.createSession(t)

	if _, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID}); err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}

	f.scorer.auth = 0.75
	f.scorer.anomaly = 0.25
	if _, err := f.engine.Authenticate(context.Background(), AuthenticateRequest{SessionID: session.ID}); err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}

	stats := f.engine.Stats()
	if stats.Total != 2 {
		t.Fatalf("unexpected total: %d", stats.Total)
	}
	want := (0.95 + 0.75) / 2
	if math.Abs(stats.AverageConfidence-want) > 1e-9 {
		t.Fatalf("expected average %.3f, got %.3f", want, stats.AverageConfidence)
	}
}
