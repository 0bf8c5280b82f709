//go:build integration

package mongo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Rrens/inspection-service/internal/config"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/Rrens/inspection-service/internal/repository/storetest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
)

func TestIntegration_SessionStore(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)

	store, err := NewSessionStore(ctx, config.MongoConfig{
		URI:            fmt.Sprintf("mongodb://%s:%s", host, port.Port()),
		Database:       "apv_test",
		Collection:     "sessions",
		ConnectTimeout: 10 * time.Second,
	}, 24*time.Hour)
	require.NoError(t, err)
	defer store.Close()

	storetest.Run(t, func(t *testing.T) domain.SessionStore {
		_, err := store.collection.DeleteMany(ctx, bson.M{})
		require.NoError(t, err)
		return store
	})
}
