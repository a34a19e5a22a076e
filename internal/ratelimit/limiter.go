// Package ratelimit implements a sliding-window request limiter over Redis sorted sets.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MacJediWizard/tenancy/internal/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultKeyPrefix prefixes every limiter key.
const DefaultKeyPrefix = "ratelimit"

// ErrUnknownClass is returned when no policy exists for an action class.
var ErrUnknownClass = errors.New("unknown rate limit class")

// Decision is the outcome of a single check.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
	// FailOpen is set when the backing store failed and the request was let through.
	FailOpen bool
}

// Limiter counts requests per (class, actor) in a sliding window.
type Limiter struct {
	client   redis.Cmdable
	policies Policies
	prefix   string
	metrics  *metrics.PrometheusMetrics
	now      func() time.Time
	logger   zerolog.Logger
}

// NewLimiter creates a limiter backed by client.
func NewLimiter(client redis.Cmdable, policies Policies, m *metrics.PrometheusMetrics, logger zerolog.Logger) *Limiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Limiter{
		client:   client,
		policies: policies,
		prefix:   DefaultKeyPrefix,
		metrics:  m,
		now:      time.Now,
		logger:   logger.With().Str("component", "rate_limiter").Logger(),
	}
}

// Policy returns the ceiling configured for class.
func (l *Limiter) Policy(class Class) (Policy, bool) {
	p, ok := l.policies[class]
	return p, ok
}

func (l *Limiter) key(class Class, actor string) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, class, actor)
}

// Allow records a request by actor in class and reports whether it fits the budget.
// When Redis is unavailable the request is allowed and the failure is logged.
func (l *Limiter) Allow(ctx context.Context, class Class, actor string) (Decision, error) {
	policy, ok := l.policies[class]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}

	key := l.key(class, actor)
	now := l.now()
	nowMs := now.UnixMilli()
	windowStart := nowMs - policy.Window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	var (
		card   *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: member})
		card = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.Expire(ctx, key, policy.Window)
		return nil
	})
	if err != nil {
		l.logger.Warn().
			Err(err).
			Str("class", string(class)).
			Str("actor", actor).
			Msg("rate limit store unavailable, allowing request")
		l.metrics.RecordRateLimit(string(class), metrics.DecisionFailOpen)
		return Decision{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit, FailOpen: true}, nil
	}

	count := card.Val()
	if count <= policy.Limit {
		l.metrics.RecordRateLimit(string(class), metrics.DecisionAllowed)
		return Decision{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit - count}, nil
	}

	// Over budget: the rejected request must not consume a slot.
	if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("failed to remove rejected rate limit entry")
	}

	retryAfter := policy.Window
	if z := oldest.Val(); len(z) > 0 {
		age := time.Duration(nowMs-int64(z[0].Score)) * time.Millisecond
		retryAfter = policy.Window - age
	}
	if retryAfter < time.Millisecond {
		retryAfter = time.Millisecond
	}

	l.metrics.RecordRateLimit(string(class), metrics.DecisionRejected)
	l.logger.Debug().
		Str("class", string(class)).
		Str("actor", actor).
		Dur("retry_after", retryAfter).
		Msg("rate limit exceeded")

	return Decision{Allowed: false, Limit: policy.Limit, Remaining: 0, RetryAfter: retryAfter}, nil
}
