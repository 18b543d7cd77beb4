package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/continuous-auth/internal/core/port"
	"github.com/arklim/continuous-auth/internal/infra/config"
	"github.com/arklim/continuous-auth/internal/infra/scoring"
	"github.com/arklim/continuous-auth/internal/infra/security"
	"github.com/arklim/continuous-auth/internal/transport/http/handlers"
	"github.com/arklim/continuous-auth/internal/transport/http/middleware"
	"github.com/arklim/continuous-auth/internal/usecase"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	RateLimiter    *middleware.RateLimiter
	Engine         *usecase.AuthEngine
	Features       *scoring.FeatureStore
	BaselineScorer *scoring.BaselineScorer
	Alerts         port.AlertRepository
	OperatorTokens *security.OperatorTokenManager
	HTTPMetrics    *middleware.HTTPMetrics
	Database       DatabaseChecker
	Cache          CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if len(deps.Config.App.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.CORSAllowedOrigins))
	}
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		if deps.Engine != nil {
			authGroup := api.Group("/auth")
			authenticateHandler := handlers.NewAuthenticateHandler(deps.Engine)
			authenticateHandler.RegisterRoutes(authGroup, buildRateLimitMiddlewares(deps, "authenticate_ip", deps.Config.RateLimit.AuthenticateMaxAttempts)...)

			sessionHandler := handlers.NewSessionHandler(deps.Engine)
			sessionGroup := api.Group("/sessions")
			sessionHandler.RegisterRoutes(sessionGroup, buildRateLimitMiddlewares(deps, "session_create_ip", deps.Config.RateLimit.SessionCreateMaxAttempts)...)

			challengeHandler := handlers.NewChallengeHandler(deps.Engine)
			challengeGroup := api.Group("/challenges")
			challengeHandler.RegisterRoutes(challengeGroup, buildRateLimitMiddlewares(deps, "challenge_ip", deps.Config.RateLimit.ChallengeMaxAttempts)...)
		}

		if deps.Features != nil {
			behaviorHandler := handlers.NewBehaviorHandler(deps.Features, deps.BaselineScorer)
			behaviorGroup := api.Group("/behavior")
			behaviorHandler.RegisterRoutes(behaviorGroup)
		}

		if deps.Engine != nil && deps.OperatorTokens != nil {
			adminGroup := api.Group("/admin")
			adminGroup.Use(middleware.RequireOperator(deps.OperatorTokens))
			adminGroup.Use(middleware.RequireRole("operator", "admin"))
			adminHandler := handlers.NewAdminHandler(deps.Engine, deps.Alerts)
			adminHandler.RegisterRoutes(adminGroup)
		}
	}

	return r
}

func buildRateLimitMiddlewares(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
