package usecase

import (
	"context"
	"sync"

	"github.com/arklim/continuous-auth/internal/core/domain"
)

// recordingPublisher captures every published event for assertions.
type recordingPublisher struct {
	mu                 sync.Mutex
	sessionCreated     []domain.SessionCreatedEvent
	sessionRevoked     []domain.SessionRevokedEvent
	challengeCreated   []domain.ChallengeCreatedEvent
	challengeResolved  []domain.ChallengeResolvedEvent
	riskAlerts         []domain.RiskAlertEvent
	thresholdAdjusted  []domain.ThresholdAdjustedEvent
}

func (p *recordingPublisher) PublishSessionCreated(_ context.Context, e domain.SessionCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionCreated = append(p.sessionCreated, e)
	return nil
}

func (p *recordingPublisher) PublishSessionRevoked(_ context.Context, e domain.SessionRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionRevoked = append(p.sessionRevoked, e)
	return nil
}

func (p *recordingPublisher) PublishChallengeCreated(_ context.Context, e domain.ChallengeCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.challengeCreated = append(p.challengeCreated, e)
	return nil
}

func (p *recordingPublisher) PublishChallengeResolved(_ context.Context, e domain.ChallengeResolvedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.challengeResolved = append(p.challengeResolved, e)
	return nil
}

func (p *recordingPublisher) PublishRiskAlert(_ context.Context, e domain.RiskAlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.riskAlerts = append(p.riskAlerts, e)
	return nil
}

func (p *recordingPublisher) PublishThresholdAdjusted(_ context.Context, e domain.ThresholdAdjustedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.thresholdAdjusted = append(p.thresholdAdjusted, e)
	return nil
}

func (p *recordingPublisher) revokedReasons() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	reasons := make([]string, 0, len(p.sessionRevoked))
	for _, e := range p.sessionRevoked {
		reasons = append(reasons, e.Reason)
	}
	return reasons
}

// staticCredentials serves one stored PIN hash for every user.
type staticCredentials struct {
	hash string
	err  error
}

func (c *staticCredentials) PINHash(context.Context, string) (string, error) {
	return c.hash, c.err
}

// stubFeatures returns a fixed feature snapshot.
type stubFeatures struct {
	features domain.FeatureVector
	ok       bool
	err      error
}

func (f *stubFeatures) CurrentFeatures(context.Context, string) (domain.FeatureVector, bool, error) {
	return f.features, f.ok, f.err
}

// stubScorer returns a fixed score pair.
type stubScorer struct {
	auth    float64
	anomaly float64
	err     error
}

func (s *stubScorer) Predict(context.Context, domain.FeatureVector) (float64, float64, error) {
	return s.auth, s.anomaly, s.err
}

func defaultTestThresholds(t interface{ Fatalf(string, ...any) }) *ThresholdStore {
	store, err := NewThresholdStore(BaseThresholds{High: 0.9, Medium: 0.7, Low: 0.5}, 0.1)
	if err != nil {
		t.Fatalf("NewThresholdStore returned error: %v", err)
	}
	return store
}
