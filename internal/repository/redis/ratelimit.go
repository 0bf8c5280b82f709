package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const (
	rateLimitPrefix = "apv:ratelimit:"
)

// RateLimiter is a fixed-window request counter kept in Redis
type RateLimiter struct {
	client            *Client
	requestsPerMinute int
	burst             int
	clock             clockwork.Clock
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *Client, requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{
		client:            client,
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
		clock:             clockwork.NewRealClock(),
	}
}

// Limit returns the number of requests allowed per window
func (r *RateLimiter) Limit() int {
	return r.requestsPerMinute + r.burst
}

// Allow checks if a request should be allowed based on rate limits
// Returns (allowed, remaining, resetTime, error)
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	now := r.clock.Now()
	windowStart := now.Truncate(time.Minute)
	windowEnd := windowStart.Add(time.Minute)
	fullKey := fmt.Sprintf("%s%s:%d", rateLimitPrefix, key, windowStart.Unix())

	pipe := r.client.rdb.Pipeline()

	// Increment counter
	incrCmd := pipe.Incr(ctx, fullKey)

	// Set expiry if key is new
	pipe.ExpireNX(ctx, fullKey, time.Minute)

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return false, 0, time.Time{}, fmt.Errorf("failed to execute rate limit check: %w", err)
	}

	count := incrCmd.Val()
	limit := int64(r.Limit())
	remaining := max(int(limit-count), 0)

	return count <= limit, remaining, windowEnd, nil
}
