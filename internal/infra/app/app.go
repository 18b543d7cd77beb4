package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/continuous-auth/internal/core/port"
	"github.com/arklim/continuous-auth/internal/infra/config"
	"github.com/arklim/continuous-auth/internal/infra/database"
	kafkainfra "github.com/arklim/continuous-auth/internal/infra/kafka"
	"github.com/arklim/continuous-auth/internal/infra/logger"
	redisinfra "github.com/arklim/continuous-auth/internal/infra/redis"
	"github.com/arklim/continuous-auth/internal/infra/scoring"
	"github.com/arklim/continuous-auth/internal/infra/security"
	"github.com/arklim/continuous-auth/internal/infra/telemetry"
	postgresrepo "github.com/arklim/continuous-auth/internal/repository/postgres"
	redisrepo "github.com/arklim/continuous-auth/internal/repository/redis"
	"github.com/arklim/continuous-auth/internal/transport/http/middleware"
	"github.com/arklim/continuous-auth/internal/transport/http/routes"
	"github.com/arklim/continuous-auth/internal/usecase"
)

type Application struct {
	cfg       *config.AppConfig
	router    *gin.Engine
	engine    *usecase.AuthEngine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	tracer    *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			log.Warn("failed to init tracer provider, continuing without tracing", zap.Error(err))
			tracer = nil
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	alertRepo := postgresrepo.NewAlertRepository(pool)
	credentialRepo := postgresrepo.NewCredentialRepository(pool)

	thresholds, err := usecase.NewThresholdStore(usecase.BaseThresholds{
		High:   cfg.Thresholds.High,
		Medium: cfg.Thresholds.Medium,
		Low:    cfg.Thresholds.Low,
	}, cfg.Thresholds.LearningRate)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init threshold store: %w", err)
	}

	featureStore := scoring.NewFeatureStore(scoring.FeatureStoreConfig{
		HistoryCap: cfg.Scoring.HistoryCap,
		MinSamples: cfg.Scoring.MinSamples,
	})
	baselineScorer := scoring.NewBaselineScorer()

	sessionService := usecase.NewSessionService(usecase.SessionConfig{
		AbsoluteTimeout:      cfg.Session.AbsoluteTimeout,
		IdleTimeout:          cfg.Session.IdleTimeout,
		MaxConcurrentPerUser: cfg.Session.MaxConcurrentPerUser,
	}, eventPublisher, log)

	challengeService := usecase.NewChallengeService(usecase.ChallengeConfig{
		MaxAttempts: cfg.Challenge.MaxAttempts,
		Timeout:     cfg.Challenge.Timeout,
	}, credentialRepo, eventPublisher, log)

	engineMetrics, err := telemetry.NewEngineMetrics(telemetry.EngineMetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init engine metrics: %w", err)
	}

	authEngine := usecase.NewAuthEngine(usecase.EngineDeps{
		Sessions:   sessionService,
		Challenges: challengeService,
		Thresholds: thresholds,
		Risk:       usecase.NewRiskAssessor(thresholds, log),
		Features:   featureStore,
		Scorer:     baselineScorer,
		Events:     eventPublisher,
		Alerts:     alertRepo,
		Metrics:    engineMetrics,
		Logger:     log,
	})

	var operatorTokens *security.OperatorTokenManager
	if cfg.Operator.JWTSecret != "" {
		operatorTokens, err = security.NewOperatorTokenManager(cfg.Operator.JWTSecret, cfg.Operator.JWTIssuer, cfg.Operator.TokenTTL)
		if err != nil {
			_ = redisClient.Close()
			pool.Close()
			return nil, fmt.Errorf("init operator token manager: %w", err)
		}
	} else {
		log.Warn("operator jwt secret not configured, admin endpoints disabled")
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	router := routes.Register(routes.Dependencies{
		Config:         cfg,
		Logger:         log,
		RateLimiter:    rateLimiter,
		Engine:         authEngine,
		Features:       featureStore,
		BaselineScorer: baselineScorer,
		Alerts:         alertRepo,
		OperatorTokens: operatorTokens,
		HTTPMetrics:    httpMetrics,
		Database:       pool,
		Cache:          redisClient,
	})

	return &Application{
		cfg:    cfg,
		router: router,
		engine: authEngine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = a.tracer.Shutdown(shutdownCtx)
			cancel()
		}
	}()

	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go a.engine.RunSweeper(sweeperCtx, a.cfg.Sweeper.Interval)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting continuous authentication API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
