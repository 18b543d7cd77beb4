package port

import (
	"context"

	"github.com/arklim/continuous-auth/internal/core/domain"
)

// FeatureProvider supplies the latest behavioral feature snapshot for a
// session. ok is false while insufficient data has been collected; that is an
// expected steady-state condition during baseline collection, not an error.
type FeatureProvider interface {
	CurrentFeatures(ctx context.Context, sessionID string) (features domain.FeatureVector, ok bool, err error)
}

// Scorer wraps the trained classifier/anomaly-detector pair. An unavailable
// or untrained scorer must return the neutral pair rather than erroring the
// whole pipeline.
type Scorer interface {
	Predict(ctx context.Context, features domain.FeatureVector) (authConfidence, anomalyScore float64, err error)
}
