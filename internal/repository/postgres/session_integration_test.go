//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/Rrens/inspection-service/internal/repository/storetest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (string, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	require.NoError(t, RunMigrations(dsn))

	return dsn, func() { _ = container.Terminate(ctx) }
}

func TestIntegration_SessionRepository(t *testing.T) {
	ctx := context.Background()
	dsn, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	db, err := Connect(ctx, dsn, 20, 1)
	require.NoError(t, err)
	defer db.Close()

	storetest.Run(t, func(t *testing.T) domain.SessionStore {
		_, err := db.Pool.Exec(ctx, `TRUNCATE inspection_sessions`)
		require.NoError(t, err)
		return NewSessionRepository(db)
	})
}

func TestIntegration_Migrations(t *testing.T) {
	ctx := context.Background()
	dsn, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	version, dirty, err := MigrationVersion(dsn)
	require.NoError(t, err)
	require.False(t, dirty)
	require.EqualValues(t, 2, version)

	// Re-running is a no-op
	require.NoError(t, RunMigrations(dsn))

	require.NoError(t, RollbackMigrations(dsn, 1))
	version, _, err = MigrationVersion(dsn)
	require.NoError(t, err)
	require.EqualValues(t, 1, version)

	require.NoError(t, RollbackMigrations(dsn, 1))
	version, _, err = MigrationVersion(dsn)
	require.NoError(t, err)
	require.EqualValues(t, 0, version)
}
