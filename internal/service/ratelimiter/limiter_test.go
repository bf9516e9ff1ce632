package ratelimiter

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, buckets map[string]Bucket) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, nil, buckets), mr
}

func TestPerMinute(t *testing.T) {
	b := PerMinute(60)
	assert.Equal(t, int64(60), b.Capacity)
	assert.InDelta(t, 1.0, b.Refill, 1e-9)
	assert.Zero(t, PerMinute(0))
}

func TestAllowDebitsBucket(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Bucket{"query": {Capacity: 2, Refill: 0.1}})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := l.Allow(ctx, "query", 1)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, retryAfter, err := l.Allow(ctx, "query", 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestAllowRefillsOverTime(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Bucket{"query": {Capacity: 1, Refill: 100}})
	ctx := context.Background()

	allowed, _, err := l.Allow(ctx, "query", 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	// 100 tokens/s refills a single-token bucket well within 50ms.
	time.Sleep(50 * time.Millisecond)
	allowed, _, err = l.Allow(ctx, "query", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAllowUnknownBucketAdmits(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	allowed, retryAfter, err := l.Allow(context.Background(), "unknown", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, retryAfter)
}

func TestAllowNilLimiterAdmits(t *testing.T) {
	var l *RedisLimiter
	allowed, _, err := l.Allow(context.Background(), "query", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAllowRedisDownAdmits(t *testing.T) {
	l, mr := newTestLimiter(t, map[string]Bucket{"query": {Capacity: 1, Refill: 1}})
	mr.Close()

	allowed, _, err := l.Allow(context.Background(), "query", 1)
	assert.Error(t, err)
	assert.True(t, allowed)
}

func TestSetBucket(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	ctx := context.Background()

	allowed, _, err := l.Allow(ctx, "query", 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	l.SetBucket("query", Bucket{Capacity: 1, Refill: 0.01})
	allowed, _, err = l.Allow(ctx, "query", 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = l.Allow(ctx, "query", 1)
	require.NoError(t, err)
	assert.False(t, allowed)
}
