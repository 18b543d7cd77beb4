package scoring

import (
	"context"
	"fmt"
	"sync"

	"github.com/arklim/continuous-auth/internal/core/domain"
)

const (
	defaultHistoryCap = 100
	defaultMinSamples = 5
)

// FeatureStoreConfig bounds the per-session sample window.
type FeatureStoreConfig struct {
	HistoryCap int
	MinSamples int
}

// FeatureStore buffers behavioral feature snapshots per session and serves
// the averaged window as the current feature vector. A session whose window
// holds fewer than MinSamples snapshots is still collecting its baseline and
// reports ok=false rather than producing unstable scores.
type FeatureStore struct {
	cfg FeatureStoreConfig

	mu      sync.RWMutex
	windows map[string][]domain.FeatureVector
}

// NewFeatureStore constructs the store.
func NewFeatureStore(cfg FeatureStoreConfig) *FeatureStore {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = defaultHistoryCap
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = defaultMinSamples
	}
	return &FeatureStore{
		cfg:     cfg,
		windows: make(map[string][]domain.FeatureVector),
	}
}

// Ingest appends one snapshot to the session's window, trimming the oldest
// entry past the cap.
func (s *FeatureStore) Ingest(_ context.Context, sessionID string, features domain.FeatureVector) error {
	if len(features) == 0 {
		return fmt.Errorf("empty feature vector")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	window := append(s.windows[sessionID], features.Clone())
	if len(window) > s.cfg.HistoryCap {
		window = window[len(window)-s.cfg.HistoryCap:]
	}
	s.windows[sessionID] = window
	return nil
}

// CurrentFeatures returns the per-feature mean over the session's window.
// ok is false while the window is below the minimum sample count.
func (s *FeatureStore) CurrentFeatures(_ context.Context, sessionID string) (domain.FeatureVector, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := s.windows[sessionID]
	if len(window) < s.cfg.MinSamples {
		return nil, false, nil
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, snapshot := range window {
		for name, value := range snapshot {
			sums[name] += value
			counts[name]++
		}
	}

	features := make(domain.FeatureVector, len(sums))
	for name, sum := range sums {
		features[name] = sum / float64(counts[name])
	}
	return features, true, nil
}

// SampleCount returns the number of buffered snapshots for the session.
func (s *FeatureStore) SampleCount(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows[sessionID])
}

// Remove drops the session's window, typically when the session ends.
func (s *FeatureStore) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, sessionID)
}
