package port

import (
	"context"

	"github.com/arklim/continuous-auth/internal/core/domain"
)

// EventPublisher publishes audit events to the message bus. Publishing is
// fire-and-forget from the engine's point of view: failures must never affect
// an authentication decision.
type EventPublisher interface {
	PublishSessionCreated(ctx context.Context, event domain.SessionCreatedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishChallengeCreated(ctx context.Context, event domain.ChallengeCreatedEvent) error
	PublishChallengeResolved(ctx context.Context, event domain.ChallengeResolvedEvent) error
	PublishRiskAlert(ctx context.Context, event domain.RiskAlertEvent) error
	PublishThresholdAdjusted(ctx context.Context, event domain.ThresholdAdjustedEvent) error
}
