// Package ratelimiter throttles LLM-cost endpoints with a token bucket
// shared across API replicas. State lives in Redis and is mirrored to
// Postgres so budgets survive a Redis flush.
package ratelimiter

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Limiter answers whether one request against a named budget may proceed.
type Limiter interface {
	Allow(ctx context.Context, bucket string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// Bucket is a token bucket configuration: capacity tokens, refilled at
// Refill tokens per second.
type Bucket struct {
	Capacity int64
	Refill   float64
}

// PerMinute derives a bucket that admits n requests per minute with
// burst capacity n.
func PerMinute(n int) Bucket {
	if n <= 0 {
		return Bucket{}
	}
	return Bucket{Capacity: int64(n), Refill: float64(n) / 60.0}
}

// tokenBucketScript refills and debits a bucket atomically. Returns
// {allowed, tokens, retry_after_seconds}.
const tokenBucketScript = `
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tokens = capacity
local last = now
local state = redis.call("HMGET", KEYS[1], "tokens", "last_refill")
if state[1] then tokens = tonumber(state[1]) end
if state[2] then last = tonumber(state[2]) end

local elapsed = now - last
if elapsed < 0 then elapsed = 0 end
tokens = math.min(capacity, tokens + elapsed * refill)

local allowed = 0
local retry_after = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
elseif refill > 0 then
  retry_after = (cost - tokens) / refill
end

redis.call("HMSET", KEYS[1], "tokens", tokens, "last_refill", now)
return { allowed, tostring(tokens), tostring(retry_after) }
`

// RedisLimiter is the Redis-backed Limiter. The Postgres pool is
// optional; when present every decision mirrors the bucket state into
// rate_limit_buckets and WarmFromStore can restore it.
type RedisLimiter struct {
	rdb     *redis.Client
	pool    *pgxpool.Pool
	script  *redis.Script
	mu      sync.RWMutex
	buckets map[string]Bucket
}

// New constructs a RedisLimiter, or nil when rdb is nil so callers can
// wire it unconditionally.
func New(rdb *redis.Client, pool *pgxpool.Pool, buckets map[string]Bucket) *RedisLimiter {
	if rdb == nil {
		return nil
	}
	if buckets == nil {
		buckets = map[string]Bucket{}
	}
	return &RedisLimiter{
		rdb:     rdb,
		pool:    pool,
		script:  redis.NewScript(tokenBucketScript),
		buckets: buckets,
	}
}

// Allow debits cost tokens from the named bucket. Unknown buckets and
// Redis failures admit the request: a degraded limiter must not take
// the API down with it.
func (l *RedisLimiter) Allow(ctx context.Context, bucket string, cost int64) (bool, time.Duration, error) {
	if l == nil || l.rdb == nil {
		return true, 0, nil
	}
	l.mu.RLock()
	cfg, ok := l.buckets[bucket]
	l.mu.RUnlock()
	if !ok || cfg.Capacity <= 0 || cfg.Refill <= 0 {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}

	now := float64(time.Now().UnixNano()) / 1e9
	res, err := l.script.Run(ctx, l.rdb, []string{"budget:" + bucket},
		cfg.Capacity, cfg.Refill, now, cost).Slice()
	if err != nil {
		slog.Error("rate limiter script failed",
			slog.String("bucket", bucket), slog.Any("error", err))
		return true, 0, err
	}
	if len(res) < 3 {
		return true, 0, nil
	}

	allowed := asInt(res[0]) == 1
	tokens := asFloat(res[1])
	retryAfter := time.Duration(asFloat(res[2]) * float64(time.Second))

	if l.pool != nil {
		l.mirror(ctx, bucket, cfg, tokens)
	}
	return allowed, retryAfter, nil
}

// SetBucket installs or replaces a budget at runtime, e.g. after the AI
// client reads provider rate limit headers.
func (l *RedisLimiter) SetBucket(bucket string, cfg Bucket) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[bucket] = cfg
}

func (l *RedisLimiter) mirror(ctx context.Context, bucket string, cfg Bucket, tokens float64) {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO rate_limit_buckets (bucket_key, capacity, refill_rate, tokens, last_refill)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (bucket_key) DO UPDATE SET
		   capacity = EXCLUDED.capacity,
		   refill_rate = EXCLUDED.refill_rate,
		   tokens = EXCLUDED.tokens,
		   last_refill = EXCLUDED.last_refill`,
		bucket, cfg.Capacity, cfg.Refill, tokens)
	if err != nil {
		slog.Error("rate limit bucket mirror failed",
			slog.String("bucket", bucket), slog.Any("error", err))
	}
}

// WarmFromStore restores bucket state from Postgres into Redis. Called
// once at startup; a fresh Redis otherwise hands every replica a full
// bucket at the same time.
func (l *RedisLimiter) WarmFromStore(ctx context.Context) error {
	if l == nil || l.pool == nil {
		return nil
	}
	rows, err := l.pool.Query(ctx,
		`SELECT bucket_key, tokens, EXTRACT(EPOCH FROM last_refill) FROM rate_limit_buckets`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var bucket string
		var tokens, lastRefill float64
		if err := rows.Scan(&bucket, &tokens, &lastRefill); err != nil {
			return err
		}
		err := l.rdb.HSet(ctx, "budget:"+bucket,
			"tokens", tokens, "last_refill", lastRefill).Err()
		if err != nil {
			slog.Warn("rate limit bucket warm failed",
				slog.String("bucket", bucket), slog.Any("error", err))
		}
	}
	return rows.Err()
}

func asInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		if t == "1" {
			return 1
		}
	}
	return 0
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}
