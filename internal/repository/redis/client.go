package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/inspection-service/internal/config"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const connectAttempts = 5

// Client wraps the Redis client
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client, retrying the initial ping with exponential backoff
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	_, err := backoff.Retry(ctx, func() (string, error) {
		return rdb.Ping(ctx).Result()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(connectAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retry_in", next).Str("addr", cfg.Addr()).Msg("Redis not ready")
		}),
	)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Client returns the underlying Redis client
func (c *Client) Client() *redis.Client {
	return c.rdb
}

// Ping verifies Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
