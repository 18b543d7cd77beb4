package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/continuous-auth/internal/core/domain"
	"github.com/arklim/continuous-auth/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishSessionCreated logs auth.session.created events.
func (p *StubPublisher) PublishSessionCreated(_ context.Context, event domain.SessionCreatedEvent) error {
	payload := map[string]any{
		"session_id": event.SessionID,
		"user_id":    event.UserID,
		"created_at": event.CreatedAt,
		"expires_at": event.ExpiresAt,
	}
	p.logEvent("auth.session.created", event.UserID, event.CreatedAt, payload)
	return nil
}

// PublishSessionRevoked logs auth.session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	payload := map[string]any{
		"session_id": event.SessionID,
		"user_id":    event.UserID,
		"reason":     event.Reason,
		"revoked_at": event.RevokedAt,
	}
	p.logEvent("auth.session.revoked", event.UserID, event.RevokedAt, payload)
	return nil
}

// PublishChallengeCreated logs auth.challenge.created events. The delivery
// code is deliberately omitted from the log line.
func (p *StubPublisher) PublishChallengeCreated(_ context.Context, event domain.ChallengeCreatedEvent) error {
	payload := map[string]any{
		"challenge_id": event.ChallengeID,
		"type":         string(event.Type),
		"user_id":      event.UserID,
		"session_id":   event.SessionID,
		"expires_at":   event.ExpiresAt,
	}
	p.logEvent("auth.challenge.created", event.UserID, event.CreatedAt, payload)
	return nil
}

// PublishChallengeResolved logs auth.challenge.resolved events.
func (p *StubPublisher) PublishChallengeResolved(_ context.Context, event domain.ChallengeResolvedEvent) error {
	payload := map[string]any{
		"challenge_id": event.ChallengeID,
		"type":         string(event.Type),
		"user_id":      event.UserID,
		"session_id":   event.SessionID,
		"successful":   event.Successful,
		"exhausted":    event.Exhausted,
	}
	p.logEvent("auth.challenge.resolved", event.UserID, event.ResolvedAt, payload)
	return nil
}

// PublishRiskAlert logs auth.risk.alert events.
func (p *StubPublisher) PublishRiskAlert(_ context.Context, event domain.RiskAlertEvent) error {
	payload := map[string]any{
		"alert_id":            event.AlertID,
		"user_id":             event.UserID,
		"session_id":          event.SessionID,
		"severity":            string(event.Severity),
		"combined_confidence": event.CombinedConfidence,
		"anomaly_score":       event.AnomalyScore,
		"context":             event.Context,
	}
	p.logEvent("auth.risk.alert", event.UserID, event.RaisedAt, payload)
	return nil
}

// PublishThresholdAdjusted logs auth.threshold.adjusted events.
func (p *StubPublisher) PublishThresholdAdjusted(_ context.Context, event domain.ThresholdAdjustedEvent) error {
	payload := map[string]any{
		"context":             event.Context,
		"feedback":            event.Feedback,
		"observed_confidence": event.ObservedConfidence,
		"adjustment":          event.Adjustment,
	}
	p.logEvent("auth.threshold.adjusted", "", event.AdjustedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
