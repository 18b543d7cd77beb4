package scoring

import (
	"context"
	"math"
	"sync"

	"github.com/arklim/continuous-auth/internal/core/domain"
)

// zSaturation is the standardized deviation at which a feature counts as
// fully anomalous.
const zSaturation = 3.0

type featureStats struct {
	count int64
	mean  float64
	m2    float64
}

func (s *featureStats) observe(value float64) {
	s.count++
	delta := value - s.mean
	s.mean += delta / float64(s.count)
	s.m2 += delta * (value - s.mean)
}

func (s *featureStats) stddev() float64 {
	if s.count < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.count-1))
}

// BaselineScorer scores feature vectors against a running per-feature
// baseline built from observed samples. It stands in for an externally
// trained model pair behind the scorer port: deviation from the baseline
// drives the anomaly score and its complement the classifier confidence.
type BaselineScorer struct {
	mu    sync.RWMutex
	stats map[string]*featureStats
}

// NewBaselineScorer constructs an empty scorer.
func NewBaselineScorer() *BaselineScorer {
	return &BaselineScorer{stats: make(map[string]*featureStats)}
}

// Observe folds one snapshot into the baseline.
func (b *BaselineScorer) Observe(features domain.FeatureVector) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, value := range features {
		stats, ok := b.stats[name]
		if !ok {
			stats = &featureStats{}
			b.stats[name] = stats
		}
		stats.observe(value)
	}
}

// Predict scores the vector against the baseline. An empty baseline yields
// the neutral pair rather than an error.
func (b *BaselineScorer) Predict(_ context.Context, features domain.FeatureVector) (float64, float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total float64
	var scored int
	for name, value := range features {
		stats, ok := b.stats[name]
		if !ok || stats.count < 2 {
			continue
		}
		sd := stats.stddev()
		if sd == 0 {
			if value != stats.mean {
				total += zSaturation
			}
			scored++
			continue
		}
		total += math.Abs(value-stats.mean) / sd
		scored++
	}

	if scored == 0 {
		return domain.NeutralScore, domain.NeutralScore, nil
	}

	anomaly := domain.ClampUnit(total / float64(scored) / zSaturation)
	return 1 - anomaly, anomaly, nil
}

// BaselineSize returns how many features carry baseline statistics.
func (b *BaselineScorer) BaselineSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.stats)
}
