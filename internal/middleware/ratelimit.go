package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-runner/internal/config"
	"github.com/stemsi/assessment-runner/internal/response"
)

// Limiter decides whether one more request from key fits the budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit returns a Gin middleware that rate-limits requests by client IP.
// Limiter errors fail open so a Redis outage does not lock candidates out.
func RateLimit(l Limiter, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn().Err(err).Msg("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !ok {
			response.AbortStatus(c, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

// ─── In-memory ─────────────────────────────────────────────────────────

// MemoryLimiter implements a simple per-key token bucket rate limiter.
// It is local to the process; use RedisLimiter when running several replicas.
type MemoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // Tokens per interval
	interval time.Duration // Refill interval
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewMemoryLimiter creates a MemoryLimiter (e.g., 10 requests per minute).
func NewMemoryLimiter(rate int, interval time.Duration) *MemoryLimiter {
	rl := &MemoryLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	// Cleanup stale visitors every minute.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup()
			case <-rl.stop:
				return
			}
		}
	}()

	return rl
}

// Allow takes one token from key's bucket.
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{tokens: rl.rate, lastSeen: now}
		rl.visitors[key] = v
	}

	// Refill tokens based on elapsed time.
	refill := int(now.Sub(v.lastSeen)/rl.interval) * rl.rate
	if refill > 0 {
		v.tokens = min(v.tokens+refill, rl.rate)
		v.lastSeen = now
	}

	if v.tokens <= 0 {
		return false, nil
	}
	v.tokens--
	return true, nil
}

// Close stops the cleanup goroutine.
func (rl *MemoryLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *MemoryLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > 3*rl.interval {
			delete(rl.visitors, key)
		}
	}
}

// ─── Redis ─────────────────────────────────────────────────────────────

// RedisLimiter is a fixed-window counter shared by every server instance.
type RedisLimiter struct {
	rdb      *redis.Client
	scope    string
	rate     int
	interval time.Duration
	now      func() time.Time
}

// NewRedisLimiter creates a RedisLimiter. scope separates the counters of
// different route groups.
func NewRedisLimiter(rdb *redis.Client, scope string, rate int, interval time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, scope: scope, rate: rate, interval: interval, now: time.Now}
}

// Allow increments key's counter for the current window.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	window := rl.now().UnixNano() / int64(rl.interval)
	redisKey := config.CacheKey.RateLimitKey(rl.scope, key, window)

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.interval)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(rl.rate), nil
}

// NewLimiter picks RedisLimiter when rdb is set and MemoryLimiter otherwise.
func NewLimiter(rdb *redis.Client, scope string, rate int, interval time.Duration) Limiter {
	if rdb != nil {
		return NewRedisLimiter(rdb, scope, rate, interval)
	}
	return NewMemoryLimiter(rate, interval)
}
