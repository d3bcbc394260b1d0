package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hookrelay/hookrelay/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitConfig sizes one class of limits. A BurstSize of zero means a full
// minute's worth of requests may arrive at once.
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

func (c RateLimitConfig) burst() int {
	if c.BurstSize > 0 {
		return c.BurstSize
	}
	return c.RequestsPerMinute
}

// DefaultRateLimitConfig applies to authenticated webhook management.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 200, BurstSize: 50}
}

// AuthRateLimitConfig applies to the token and registration endpoints.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 10, BurstSize: 5}
}

// CallRateLimitConfig applies to webhook invocation, which makes outbound requests.
func CallRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 60, BurstSize: 10}
}

// RateDecision is the outcome of charging one request against a key.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// KeyedLimiter charges requests against per-client budgets.
type KeyedLimiter interface {
	Take(ctx context.Context, key string) (RateDecision, error)
	Backend() string
}

const (
	// memoryLimiterKeys bounds how many clients one process tracks.
	memoryLimiterKeys = 10000
	// memoryLimiterIdle is how long an untouched client bucket is kept.
	memoryLimiterIdle = 10 * time.Minute
)

// MemoryLimiter keeps one token bucket per key in process memory. Idle buckets
// expire, so a returning client starts with a full burst.
type MemoryLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
	now     func() time.Time
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(cfg RateLimitConfig) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg,
		buckets: expirable.NewLRU[string, *rate.Limiter](memoryLimiterKeys, nil, memoryLimiterIdle),
		now:     time.Now,
	}
}

func (m *MemoryLimiter) bucket(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(rate.Limit(float64(m.cfg.RequestsPerMinute)/60), m.cfg.burst())
	}
	// Add refreshes the idle timer
	m.buckets.Add(key, b)
	return b
}

// Take implements KeyedLimiter. A refused request consumes nothing.
func (m *MemoryLimiter) Take(_ context.Context, key string) (RateDecision, error) {
	b := m.bucket(key)
	now := m.now()

	d := RateDecision{Allowed: true, Limit: m.cfg.RequestsPerMinute}
	r := b.ReserveN(now, 1)
	switch delay := r.DelayFrom(now); {
	case !r.OK():
		d.Allowed, d.RetryAfter = false, time.Minute
	case delay > 0:
		r.CancelAt(now)
		d.Allowed, d.RetryAfter = false, delay
	}
	if tokens := b.TokensAt(now); tokens > 0 {
		d.Remaining = int(tokens)
	}
	return d, nil
}

// Backend implements KeyedLimiter.
func (m *MemoryLimiter) Backend() string { return "memory" }

// RedisLimiter keeps budgets in Redis with GCRA so every replica charges the
// same bucket.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisLimiter creates a limiter over rdb. prefix namespaces the keys so
// several limit classes can share one Redis.
func NewRedisLimiter(rdb *redis.Client, cfg RateLimitConfig, prefix string) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit: redis_rate.Limit{
			Rate:   cfg.RequestsPerMinute,
			Burst:  cfg.burst(),
			Period: time.Minute,
		},
		prefix: prefix,
	}
}

// Take implements KeyedLimiter.
func (rl *RedisLimiter) Take(ctx context.Context, key string) (RateDecision, error) {
	res, err := rl.limiter.Allow(ctx, rl.prefix+key, rl.limit)
	if err != nil {
		return RateDecision{}, err
	}
	return RateDecision{
		Allowed:    res.Allowed > 0,
		Limit:      rl.limit.Rate,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}

// Backend implements KeyedLimiter.
func (rl *RedisLimiter) Backend() string { return "redis" }

// RateLimitMiddleware answers 429 once the caller's budget is spent. Callers are
// keyed by user once AuthMiddleware has run and by client IP before that. A
// limiter error lets the request through.
func RateLimitMiddleware(limiter KeyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := limiter.Take(c.Request.Context(), rateLimitKey(c))
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request",
				"backend", limiter.Backend(), "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if d.Allowed {
			c.Next()
			return
		}

		retryAfter := max(1, int(d.RetryAfter.Round(time.Second)/time.Second))
		telemetry.RateLimitRejectionsTotal.WithLabelValues(limiter.Backend()).Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "Rate limit exceeded",
			"retry_after": retryAfter,
		})
	}
}

func rateLimitKey(c *gin.Context) string {
	if id := c.GetString(ContextUserID); id != "" {
		return "user:" + id
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
