package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/callrelay-systems/callrelay/internal/metrics"
)

// RateLimiter bounds how many webhook deliveries a single source may
// submit per window. Keys are whatever identifies the source, usually
// the client IP.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// slidingWindow counts deliveries in a sorted set scored by arrival
// time, so the limit applies to the trailing window rather than fixed
// buckets. Runs as one Lua script to keep check-and-record atomic
// across relay instances sharing the same Redis.
const slidingWindow = `
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local cutoff = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, 0, cutoff)
	if redis.call('ZCARD', key) >= limit then
		return 0
	end
	redis.call('ZADD', key, now, now)
	redis.call('EXPIRE', key, ttl)
	return 1
`

type redisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	ttl    int64
}

// NewRedisLimiter connects to Redis and returns a limiter allowing at
// most limit deliveries per key per window.
func NewRedisLimiter(redisURL string, limit int, window time.Duration) (RateLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	ttl := int64(window / time.Second)
	if ttl < 1 {
		ttl = 1
	}

	return &redisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		ttl:    ttl,
	}, nil
}

func (r *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano()
	cutoff := now - r.window.Nanoseconds()

	result, err := r.client.Eval(ctx, slidingWindow,
		[]string{"callrelay:rl:" + key}, now, cutoff, r.limit, r.ttl).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	if result == 0 {
		metrics.RateLimitHits.Inc()
		return false, nil
	}
	return true, nil
}

func (r *redisLimiter) Close() error {
	return r.client.Close()
}

// NoOpRateLimiter allows everything. Used when rate limiting is
// disabled or Redis is unavailable at startup.
type NoOpRateLimiter struct{}

func (n *NoOpRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return true, nil
}

func (n *NoOpRateLimiter) Close() error {
	return nil
}
