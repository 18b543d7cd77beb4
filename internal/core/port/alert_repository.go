package port

import (
	"context"

	"github.com/arklim/continuous-auth/internal/core/domain"
)

// AlertRepository persists security alerts for later audit queries. Inserts
// are issued fire-and-forget by the engine; an unavailable store never fails
// an authentication call.
type AlertRepository interface {
	Insert(ctx context.Context, alert domain.SecurityAlert) error
	ListRecent(ctx context.Context, limit int) ([]domain.SecurityAlert, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.SecurityAlert, error)
}
