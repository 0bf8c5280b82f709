package postgres

import (
	"errors"
	"fmt"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mapPostgresError maps PostgreSQL-specific errors to domain sentinel errors.
// Returns the original error if it's not a PostgreSQL error or doesn't match known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return domain.ErrSessionExists

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("database server unavailable: %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("database resource limit: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, err)
	}
}
