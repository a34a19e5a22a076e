package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/MacJediWizard/tenancy/internal/apperr"
	"github.com/MacJediWizard/tenancy/internal/metrics"
	"github.com/MacJediWizard/tenancy/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// globalClass labels the per-IP limiter in rate limit metrics.
const globalClass = "global"

// NewRateLimiter creates a per-IP Gin middleware allowing requests per period,
// a duration string (e.g., "1m", "1h"). With a nil client the counters live in
// process memory; otherwise they are shared through Redis. The limiter fails
// open: a Redis error lets the request through, and a Redis store that cannot
// be prepared at startup is replaced by the memory store.
func NewRateLimiter(requests int64, period string, client *redis.Client, m *metrics.PrometheusMetrics, logger zerolog.Logger) (gin.HandlerFunc, error) {
	duration, err := time.ParseDuration(period)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit period %q: %w", period, err)
	}
	log := logger.With().Str("component", "global_rate_limit").Logger()

	rate := limiter.Rate{
		Period: duration,
		Limit:  requests,
	}

	var store limiter.Store = memory.NewStore()
	if client != nil {
		redisStore, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "ratelimit:global"})
		if err != nil {
			log.Warn().Err(err).Msg("redis rate limit store unavailable, counting in process memory")
		} else {
			store = redisStore
		}
	}
	instance := limiter.New(store, rate)

	middleware := mgin.NewMiddleware(instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			retryAfter := duration
			if reset, err := strconv.ParseInt(c.Writer.Header().Get("X-RateLimit-Reset"), 10, 64); err == nil {
				retryAfter = time.Until(time.Unix(reset, 0))
			}
			m.RecordRateLimit(globalClass, metrics.DecisionRejected)
			AbortWithError(c, apperr.RateLimited(retryAfter))
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			log.Warn().
				Err(err).
				Str("request_id", GetRequestID(c)).
				Msg("rate limit store unavailable, allowing request")
			m.RecordRateLimit(globalClass, metrics.DecisionFailOpen)
			c.Next()
		}),
	)
	return middleware, nil
}

// RateLimit charges each request against the actor's budget for class. The
// actor is the authenticated user, falling back to the client IP. It panics
// when l has no policy for class.
func RateLimit(l *ratelimit.Limiter, class ratelimit.Class, logger zerolog.Logger) gin.HandlerFunc {
	if _, ok := l.Policy(class); !ok {
		panic(fmt.Sprintf("no rate limit policy for class %q", class))
	}
	log := logger.With().Str("component", "rate_limit_middleware").Logger()

	return func(c *gin.Context) {
		actor := "ip:" + c.ClientIP()
		if user := GetUser(c); user != nil {
			actor = "user:" + user.ID
		}

		decision, err := l.Allow(c.Request.Context(), class, actor)
		if err != nil {
			log.Error().Err(err).Str("class", string(class)).Msg("rate limit check failed")
			AbortWithError(c, apperr.Internal(err))
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

		if !decision.Allowed {
			log.Info().
				Str("request_id", GetRequestID(c)).
				Str("class", string(class)).
				Str("actor", actor).
				Dur("retry_after", decision.RetryAfter).
				Msg("rate limit exceeded")
			AbortWithError(c, apperr.RateLimited(decision.RetryAfter))
			return
		}
		c.Next()
	}
}
