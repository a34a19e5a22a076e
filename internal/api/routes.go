// Package api provides the HTTP API for the tenancy service.
package api

import (
	_ "github.com/MacJediWizard/tenancy/docs/api"
	"github.com/MacJediWizard/tenancy/internal/api/handlers"
	"github.com/MacJediWizard/tenancy/internal/api/middleware"
	"github.com/MacJediWizard/tenancy/internal/auth"
	"github.com/MacJediWizard/tenancy/internal/config"
	"github.com/MacJediWizard/tenancy/internal/metrics"
	"github.com/MacJediWizard/tenancy/internal/ratelimit"
	"github.com/MacJediWizard/tenancy/internal/tenant"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// defaultMaxBodyBytes caps JSON request bodies.
const defaultMaxBodyBytes = 1 << 20

// Config holds configuration for the API router.
type Config struct {
	Environment config.Environment
	// AllowedOrigins for CORS. Empty means all origins allowed outside production.
	AllowedOrigins []string
	// GlobalRateLimit is the number of requests allowed per client IP per GlobalRatePeriod.
	GlobalRateLimit int64
	// GlobalRatePeriod is the duration string for the global limiter (e.g. "1m").
	GlobalRatePeriod string
	// TrustedIdentityHeader, when set, names a header carrying the user id from an authenticating proxy.
	TrustedIdentityHeader string
	MaxBodyBytes          int64
	// EnableDocs mounts the Swagger UI under /api/docs.
	EnableDocs bool
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		Environment:      config.EnvDevelopment,
		AllowedOrigins:   []string{},
		GlobalRateLimit:  300,
		GlobalRatePeriod: "1m",
		MaxBodyBytes:     defaultMaxBodyBytes,
		EnableDocs:       true,
	}
}

// Store is the persistence surface of the API. *db.DB implements it.
type Store interface {
	auth.MembershipStore
	handlers.OrganizationStore
	handlers.TeamStore
	handlers.MemberStore
	handlers.MembershipLister
	handlers.AuditLogStore
	handlers.DatabaseHealthChecker
}

// InvitationService is the invitation lifecycle. *invites.Service implements it.
type InvitationService interface {
	handlers.InvitationService
	handlers.PendingInvitationLister
}

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	Store       Store
	Invitations InvitationService
	Audit       handlers.AuditRecorder
	Sessions    *auth.SessionStore
	// Redis backs the global limiter when set. The per-action Limiter is independent of it.
	Redis   *redis.Client
	Limiter *ratelimit.Limiter
	Metrics *metrics.PrometheusMetrics
	// Gatherer is exposed on /metrics when set.
	Gatherer prometheus.Gatherer
	// Accepting, when set, reports whether the server still takes traffic; readiness fails once it returns false.
	Accepting func() bool
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(cfg Config, deps Dependencies, logger zerolog.Logger) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestID())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.SecurityHeaders())
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Environment, logger))
	r.Engine.Use(middleware.HTTPMetrics(deps.Metrics))
	r.Engine.Use(middleware.BodyLimit(maxBody))

	// Health check endpoints (no auth, no rate limit)
	var redisHealth handlers.RedisHealthChecker
	if deps.Redis != nil {
		redisHealth = deps.Redis
	}
	handlers.NewHealthHandler(deps.Store, redisHealth, logger).
		WithAcceptCheck(deps.Accepting).
		RegisterPublicRoutes(r.Engine)

	if cfg.EnableDocs {
		r.Engine.GET("/api/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
			ginSwagger.URL("/api/docs/doc.json"),
			ginSwagger.DefaultModelsExpandDepth(-1),
		))
	}

	if deps.Gatherer != nil {
		r.Engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	globalLimiter, err := middleware.NewRateLimiter(cfg.GlobalRateLimit, cfg.GlobalRatePeriod, deps.Redis, deps.Metrics, logger)
	if err != nil {
		return nil, err
	}

	// API v1 routes. Authentication is resolved here; each route decides whether it is required.
	apiV1 := r.Engine.Group("/api/v1")
	apiV1.Use(globalLimiter)
	apiV1.Use(middleware.AuthMiddleware(deps.Sessions, cfg.TrustedIdentityHeader, logger))

	var limits handlers.RouteLimits
	if deps.Limiter != nil {
		limits = handlers.RouteLimits{
			OrgCreate:  middleware.RateLimit(deps.Limiter, ratelimit.ClassOrgCreate, logger),
			TeamCreate: middleware.RateLimit(deps.Limiter, ratelimit.ClassTeamCreate, logger),
			Invitation: middleware.RateLimit(deps.Limiter, ratelimit.ClassInvitation, logger),
			Mutation:   middleware.RateLimit(deps.Limiter, ratelimit.ClassMutation, logger),
		}
	}

	rbac := auth.NewRBAC(deps.Store)
	resolver := tenant.NewResolver(deps.Store, logger)

	handlers.NewMeHandler(resolver, deps.Store, deps.Invitations, logger).RegisterRoutes(apiV1)
	handlers.NewOrganizationsHandler(deps.Store, rbac, deps.Audit, logger).RegisterRoutes(apiV1, limits)
	handlers.NewTeamsHandler(deps.Store, rbac, deps.Audit, logger).RegisterRoutes(apiV1, limits)
	handlers.NewMembersHandler(deps.Store, rbac, deps.Audit, logger).RegisterRoutes(apiV1, limits)
	handlers.NewInvitationsHandler(deps.Invitations, rbac, deps.Audit, logger).RegisterRoutes(apiV1, limits)
	handlers.NewAuditLogsHandler(deps.Store, rbac, logger).RegisterRoutes(apiV1)

	r.logger.Info().
		Bool("per_action_limits", deps.Limiter != nil).
		Bool("redis_global_limit", deps.Redis != nil).
		Msg("API router initialized")
	return r, nil
}
