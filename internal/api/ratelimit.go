package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abdul-hamid-achik/scene.cheap/internal/apperror"
	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
	"github.com/abdul-hamid-achik/scene.cheap/internal/metrics"
)

type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RateLimiter is an in-memory token bucket per client: burst tokens, refilled at
// rate per minute.
type RateLimiter struct {
	rate    float64
	burst   float64
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
	done    chan struct{}
	stop    sync.Once
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

func NewRateLimiter(ratePerMinute, burst int) *RateLimiter {
	rl := &RateLimiter{
		rate:    float64(ratePerMinute) / 60,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

// cleanup drops buckets idle for ten minutes.
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-10 * time.Minute)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.stop.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) Allow(_ context.Context, key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.burst <= 0 {
		return false
	}
	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		rl.buckets[key] = &bucket{tokens: rl.burst - 1, lastSeen: now}
		return true
	}

	b.tokens = min(rl.burst, b.tokens+now.Sub(b.lastSeen).Seconds()*rl.rate)
	b.lastSeen = now
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RedisRateLimiter is a sliding-window limiter shared by every API replica.
type RedisRateLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisRateLimiter(client redis.UniversalClient, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "scene:ratelimit:",
		now:    time.Now,
	}
}

// Check records one request for key and reports whether it fits the window.
func (rl *RedisRateLimiter) Check(ctx context.Context, key string) (bool, error) {
	now := rl.now().UnixNano()
	windowStart := now - int64(rl.window)
	redisKey := rl.prefix + key

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now), Member: now})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return countCmd.Val() <= int64(rl.limit), nil
}

func (rl *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.client.Del(ctx, rl.prefix+key).Err()
}

// HybridRateLimiter uses Redis when it answers and the in-memory limiter otherwise.
type HybridRateLimiter struct {
	redis    *RedisRateLimiter
	inMemory *RateLimiter
}

// NewHybridRateLimiter allows ratePerMinute+burst requests per minute through
// Redis, and a burst-sized token bucket in memory.
func NewHybridRateLimiter(client redis.UniversalClient, ratePerMinute, burst int) *HybridRateLimiter {
	h := &HybridRateLimiter{inMemory: NewRateLimiter(ratePerMinute, burst)}
	if client != nil {
		h.redis = NewRedisRateLimiter(client, ratePerMinute+burst, time.Minute)
	}
	return h
}

func (h *HybridRateLimiter) Allow(ctx context.Context, key string) bool {
	if h.redis != nil {
		ok, err := h.redis.Check(ctx, key)
		if err == nil {
			if !ok {
				metrics.RecordRateLimitHit("redis")
			}
			return ok
		}
		logger.FromContext(ctx).Warn("redis rate limiter unavailable, using memory", "error", err)
	}
	ok := h.inMemory.Allow(ctx, key)
	if !ok {
		metrics.RecordRateLimitHit("memory")
	}
	return ok
}

func (h *HybridRateLimiter) Stop() {
	h.inMemory.Stop()
}

// RateLimit keys requests by JWT subject, or by client IP when unauthenticated.
func RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			if sub, ok := GetSubject(r.Context()); ok {
				key = "sub:" + sub
			}
			if !limiter.Allow(r.Context(), key) {
				w.Header().Set("Retry-After", "60")
				apperror.WriteJSON(w, r, apperror.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
