package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter answers whether a caller identified by key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisRateLimiter counts requests per key in fixed windows backed by
// Redis, so the limit holds across instances. The counter key carries the
// window TTL; the first hit in a window sets it.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisRateLimiter builds a limiter allowing limit requests per window.
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: limit, window: window}
}

// Allow increments the caller's counter and reports whether it is within
// the limit.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	counterKey := "ratelimit:command:" + key
	count, err := l.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, fmt.Errorf("command: rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, counterKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("command: rate limit expire: %w", err)
		}
	}
	return count <= int64(l.limit), nil
}

// MemoryRateLimiter is the in-process fallback when Redis is not
// configured. Same fixed-window accounting, scoped to one instance.
type MemoryRateLimiter struct {
	mu     sync.Mutex
	counts map[string]*windowCount
	limit  int
	window time.Duration
	now    func() time.Time
}

type windowCount struct {
	start time.Time
	count int
}

// NewMemoryRateLimiter builds the in-process limiter.
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		counts: make(map[string]*windowCount),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow increments the caller's counter and reports whether it is within
// the limit.
func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	wc, ok := l.counts[key]
	if !ok || now.Sub(wc.start) >= l.window {
		wc = &windowCount{start: now}
		l.counts[key] = wc
	}
	wc.count++
	return wc.count <= l.limit, nil
}
