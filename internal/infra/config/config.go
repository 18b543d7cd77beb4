package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App        AppSettings        `mapstructure:"app"`
	Session    SessionSettings    `mapstructure:"session"`
	Thresholds ThresholdSettings  `mapstructure:"thresholds"`
	Challenge  ChallengeSettings  `mapstructure:"challenge"`
	Scoring    ScoringSettings    `mapstructure:"scoring"`
	Sweeper    SweeperSettings    `mapstructure:"sweeper"`
	Postgres   PostgresSettings   `mapstructure:"postgres"`
	Redis      RedisSettings      `mapstructure:"redis"`
	Kafka      KafkaSettings      `mapstructure:"kafka"`
	Operator   OperatorSettings   `mapstructure:"operator"`
	Telemetry  TelemetrySettings  `mapstructure:"telemetry"`
	RateLimit  RateLimitSettings  `mapstructure:"rate_limit"`
}

type AppSettings struct {
	Name               string   `mapstructure:"name"`
	Env                string   `mapstructure:"env"`
	Host               string   `mapstructure:"host"`
	Port               int      `mapstructure:"port"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// SessionSettings bounds session lifetimes and per-user concurrency.
type SessionSettings struct {
	AbsoluteTimeout      time.Duration `mapstructure:"absolute_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	MaxConcurrentPerUser int           `mapstructure:"max_concurrent_per_user"`
}

// ThresholdSettings carries the base confidence bands and learning rate.
// Validate rejects an ordering violation at startup rather than fixing it.
type ThresholdSettings struct {
	High         float64 `mapstructure:"high"`
	Medium       float64 `mapstructure:"medium"`
	Low          float64 `mapstructure:"low"`
	LearningRate float64 `mapstructure:"learning_rate"`
}

// ChallengeSettings bounds step-up challenges.
type ChallengeSettings struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ScoringSettings bounds the behavioral feature window.
type ScoringSettings struct {
	HistoryCap int `mapstructure:"history_cap"`
	MinSamples int `mapstructure:"min_samples"`
}

// SweeperSettings controls the periodic expiry sweep.
type SweeperSettings struct {
	Interval time.Duration `mapstructure:"interval"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection backing request rate limiting.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the audit event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// OperatorSettings configures the admin API token manager.
type OperatorSettings struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTIssuer string        `mapstructure:"jwt_issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type TelemetrySettings struct {
	MetricsPort  int     `mapstructure:"metrics_port"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// RateLimitSettings configures HTTP rate limiting windows and attempt budgets.
type RateLimitSettings struct {
	WindowDuration           time.Duration `mapstructure:"window_duration"`
	AuthenticateMaxAttempts  int           `mapstructure:"authenticate_max_attempts"`
	ChallengeMaxAttempts     int           `mapstructure:"challenge_max_attempts"`
	SessionCreateMaxAttempts int           `mapstructure:"session_create_max_attempts"`
}

// Validate rejects configurations that must abort startup.
func (c *AppConfig) Validate() error {
	t := c.Thresholds
	if t.Low > t.Medium || t.Medium > t.High {
		return fmt.Errorf("thresholds must satisfy low <= medium <= high, got low=%.2f medium=%.2f high=%.2f", t.Low, t.Medium, t.High)
	}
	for name, v := range map[string]float64{"low": t.Low, "medium": t.Medium, "high": t.High} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %s=%.2f outside [0,1]", name, v)
		}
	}
	if t.LearningRate <= 0 || t.LearningRate > 1 {
		return fmt.Errorf("learning rate %.2f outside (0,1]", t.LearningRate)
	}
	if c.Session.IdleTimeout > c.Session.AbsoluteTimeout {
		return fmt.Errorf("session idle timeout exceeds absolute timeout")
	}
	return nil
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTHD")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.cors_allowed_origins",
		"session.absolute_timeout",
		"session.idle_timeout",
		"session.max_concurrent_per_user",
		"thresholds.high",
		"thresholds.medium",
		"thresholds.low",
		"thresholds.learning_rate",
		"challenge.max_attempts",
		"challenge.timeout",
		"scoring.history_cap",
		"scoring.min_samples",
		"sweeper.interval",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"operator.jwt_secret",
		"operator.jwt_issuer",
		"operator.token_ttl",
		"telemetry.metrics_port",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.authenticate_max_attempts",
		"rate_limit.challenge_max_attempts",
		"rate_limit.session_create_max_attempts",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "continuous-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.cors_allowed_origins", []string{})

	v.SetDefault("session.absolute_timeout", "30m")
	v.SetDefault("session.idle_timeout", "15m")
	v.SetDefault("session.max_concurrent_per_user", 3)

	v.SetDefault("thresholds.high", 0.9)
	v.SetDefault("thresholds.medium", 0.7)
	v.SetDefault("thresholds.low", 0.5)
	v.SetDefault("thresholds.learning_rate", 0.1)

	v.SetDefault("challenge.max_attempts", 3)
	v.SetDefault("challenge.timeout", "5m")

	v.SetDefault("scoring.history_cap", 100)
	v.SetDefault("scoring.min_samples", 5)

	v.SetDefault("sweeper.interval", "5m")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "authd")
	v.SetDefault("postgres.password", "authd_password")
	v.SetDefault("postgres.database", "authd")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "authd:rate_limit")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "auth")
	v.SetDefault("kafka.async", true)

	v.SetDefault("operator.jwt_secret", "")
	v.SetDefault("operator.jwt_issuer", "continuous-auth")
	v.SetDefault("operator.token_ttl", "1h")

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "continuous-auth")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.authenticate_max_attempts", 120)
	v.SetDefault("rate_limit.challenge_max_attempts", 10)
	v.SetDefault("rate_limit.session_create_max_attempts", 10)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "AUTHD_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
