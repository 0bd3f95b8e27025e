package command

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisRateLimiterBoundary(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisRateLimiter(client, 3, time.Minute)
	ctx := context.Background()

	for i := range 3 {
		allowed, err := limiter.Allow(ctx, "10.1.2.3")
		require.NoError(t, err)
		require.True(t, allowed, "request %d should pass", i+1)
	}
	allowed, err := limiter.Allow(ctx, "10.1.2.3")
	require.NoError(t, err)
	require.False(t, allowed)

	// Another caller has its own counter.
	allowed, err = limiter.Allow(ctx, "10.9.9.9")
	require.NoError(t, err)
	require.True(t, allowed)

	// The window expires and the counter resets.
	mr.FastForward(61 * time.Second)
	allowed, err = limiter.Allow(ctx, "10.1.2.3")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestMemoryRateLimiterBoundary(t *testing.T) {
	limiter := NewMemoryRateLimiter(2, time.Minute)
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "a")
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, err = limiter.Allow(ctx, "a")
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, err = limiter.Allow(ctx, "a")
	require.NoError(t, err)
	require.False(t, allowed)

	now = now.Add(time.Minute)
	allowed, err = limiter.Allow(ctx, "a")
	require.NoError(t, err)
	require.True(t, allowed)
}
