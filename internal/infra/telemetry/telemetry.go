package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/continuous-auth/internal/usecase"
)

// EngineMetricsOptions configures the decision engine collectors.
type EngineMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// EngineMetrics exposes Prometheus collectors for decision engine
// instrumentation. It satisfies the engine's metrics sink interface.
type EngineMetrics struct {
	authentications *prometheus.CounterVec
	authDuration    *prometheus.HistogramVec
	challenges      *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

var _ usecase.EngineMetrics = (*EngineMetrics)(nil)

// NewEngineMetrics constructs collectors for engine metrics and registers them
// with the provided registerer.
func NewEngineMetrics(opts EngineMetricsOptions) (*EngineMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "authd"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	authentications, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "authentications_total",
		Help:      "Total number of authentication evaluations partitioned by decision.",
	}, []string{"decision"}))
	if err != nil {
		return nil, err
	}

	authDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "authentication_duration_seconds",
		Help:      "Histogram of authentication evaluation latencies partitioned by decision.",
		Buckets:   buckets,
	}, []string{"decision"})
	if err := reg.Register(authDuration); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				authDuration = existing
			} else {
				return nil, fmt.Errorf("existing duration collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register duration collector: %w", err)
		}
	}

	challenges, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "challenges_total",
		Help:      "Total number of resolved step-up challenges partitioned by type and outcome.",
	}, []string{"type", "outcome"}))
	if err != nil {
		return nil, err
	}

	alerts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "security_alerts_total",
		Help:      "Total number of security alerts partitioned by severity.",
	}, []string{"severity"}))
	if err != nil {
		return nil, err
	}

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "active_sessions",
		Help:      "Current number of registered sessions.",
	})
	if err := reg.Register(activeSessions); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(prometheus.Gauge); ok {
				activeSessions = existing
			} else {
				return nil, fmt.Errorf("existing sessions collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register sessions collector: %w", err)
		}
	}

	return &EngineMetrics{
		authentications: authentications,
		authDuration:    authDuration,
		challenges:      challenges,
		alerts:          alerts,
		activeSessions:  activeSessions,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return nil, fmt.Errorf("register collector: %w", err)
	}
	return vec, nil
}

// ObserveAuthentication records one authentication evaluation.
func (m *EngineMetrics) ObserveAuthentication(decision string, duration time.Duration) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(decision).Inc()
	m.authDuration.WithLabelValues(decision).Observe(duration.Seconds())
}

// ObserveChallenge records one resolved challenge attempt.
func (m *EngineMetrics) ObserveChallenge(challengeType, outcome string) {
	if m == nil {
		return
	}
	m.challenges.WithLabelValues(challengeType, outcome).Inc()
}

// ObserveAlert records one raised security alert.
func (m *EngineMetrics) ObserveAlert(severity string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(severity).Inc()
}

// SetActiveSessions reports the current session registry size.
func (m *EngineMetrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}
