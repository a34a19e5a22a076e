package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDraining  HealthStatus = "draining"
)

const healthCheckTimeout = 5 * time.Second

// HealthCheckResult represents the result of a health check.
type HealthCheckResult struct {
	Status   HealthStatus   `json:"status"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status HealthStatus                  `json:"status"`
	Checks map[string]*HealthCheckResult `json:"checks,omitempty"`
}

// DatabaseHealthChecker defines the interface for database health checking.
type DatabaseHealthChecker interface {
	Ping(ctx context.Context) error
	Health() map[string]any
}

// RedisHealthChecker pings the rate limit store.
type RedisHealthChecker interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// HealthHandler handles health-related HTTP endpoints.
type HealthHandler struct {
	db        DatabaseHealthChecker
	redis     RedisHealthChecker
	accepting func() bool
	logger    zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler. rdb may be nil when no
// rate limit store is configured.
func NewHealthHandler(database DatabaseHealthChecker, rdb RedisHealthChecker, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		db:     database,
		redis:  rdb,
		logger: logger.With().Str("component", "health_handler").Logger(),
	}
}

// WithAcceptCheck makes readiness fail once accepting reports false, so load
// balancers stop routing traffic to a draining server.
func (h *HealthHandler) WithAcceptCheck(accepting func() bool) *HealthHandler {
	h.accepting = accepting
	return h
}

// RegisterPublicRoutes registers health check routes that don't require authentication.
func (h *HealthHandler) RegisterPublicRoutes(r *gin.Engine) {
	health := r.Group("/health")
	{
		health.GET("", h.Live)
		health.GET("/ready", h.Ready)
	}
}

// Live reports that the process is serving requests.
// GET /health
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, &HealthResponse{Status: HealthStatusHealthy})
}

// Ready reports whether the service can handle traffic. Postgres is required;
// an unreachable Redis only degrades the service since rate limiting fails open.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.accepting != nil && !h.accepting() {
		c.JSON(http.StatusServiceUnavailable, &HealthResponse{Status: HealthStatusDraining})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	response := &HealthResponse{
		Status: HealthStatusHealthy,
		Checks: map[string]*HealthCheckResult{
			"database": h.checkDatabase(ctx),
		},
	}
	if h.redis != nil {
		response.Checks["redis"] = h.checkRedis(ctx)
	}

	if response.Checks["database"].Status == HealthStatusUnhealthy {
		response.Status = HealthStatusUnhealthy
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	if r, ok := response.Checks["redis"]; ok && r.Status != HealthStatusHealthy {
		response.Status = HealthStatusDegraded
	}

	c.JSON(http.StatusOK, response)
}

// checkDatabase performs a database health check.
func (h *HealthHandler) checkDatabase(ctx context.Context) *HealthCheckResult {
	start := time.Now()
	result := &HealthCheckResult{Status: HealthStatusHealthy}

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error().Err(err).Msg("database health check failed")
		result.Status = HealthStatusUnhealthy
		result.Error = "database unreachable"
		result.Duration = time.Since(start).String()
		return result
	}

	result.Duration = time.Since(start).String()
	result.Details = h.db.Health()
	return result
}

func (h *HealthHandler) checkRedis(ctx context.Context) *HealthCheckResult {
	start := time.Now()
	result := &HealthCheckResult{Status: HealthStatusHealthy}

	if err := h.redis.Ping(ctx).Err(); err != nil {
		h.logger.Warn().Err(err).Msg("redis health check failed")
		result.Status = HealthStatusUnhealthy
		result.Error = "redis unreachable"
	}
	result.Duration = time.Since(start).String()
	return result
}
