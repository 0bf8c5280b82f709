//go:build integration

package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/Rrens/inspection-service/internal/config"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/Rrens/inspection-service/internal/repository/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T, ctx context.Context) (*Client, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	client, err := NewClient(ctx, config.RedisConfig{Host: host, Port: portNum})
	require.NoError(t, err)

	return client, func() {
		client.Close()
		_ = container.Terminate(ctx)
	}
}

func TestIntegration_SessionStore(t *testing.T) {
	ctx := context.Background()
	client, cleanup := setupRedisContainer(t, ctx)
	defer cleanup()

	storetest.Run(t, func(t *testing.T) domain.SessionStore {
		require.NoError(t, client.rdb.FlushDB(ctx).Err())
		return NewSessionStore(client, time.Hour)
	})
}

func TestIntegration_SessionStoreTTL(t *testing.T) {
	ctx := context.Background()
	client, cleanup := setupRedisContainer(t, ctx)
	defer cleanup()

	store := NewSessionStore(client, time.Hour)
	require.NoError(t, store.Create(ctx, &domain.Session{ID: "ttl", Title: "t", Questions: []string{"q"}}))

	ttl, err := client.rdb.TTL(ctx, sessionKey("ttl")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestIntegration_RateLimiter(t *testing.T) {
	ctx := context.Background()
	client, cleanup := setupRedisContainer(t, ctx)
	defer cleanup()

	limiter := NewRateLimiter(client, 2, 1)

	for i := range 3 {
		allowed, remaining, _, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, remaining, reset, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, remaining)
	assert.True(t, reset.After(time.Now()))

	// Other clients have their own window
	allowed, _, _, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed)
}
