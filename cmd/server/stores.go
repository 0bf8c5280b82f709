package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/inspection-service/internal/artifact"
	"github.com/Rrens/inspection-service/internal/config"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/Rrens/inspection-service/internal/repository/memory"
	"github.com/Rrens/inspection-service/internal/repository/mongo"
	"github.com/Rrens/inspection-service/internal/repository/mysql"
	"github.com/Rrens/inspection-service/internal/repository/postgres"
	"github.com/Rrens/inspection-service/internal/repository/redis"
	"github.com/Rrens/inspection-service/internal/repository/sqlite"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

const connectAttempts = 5

// backends holds the opened storage and the cleanup for each
type backends struct {
	sessions  domain.SessionStore
	artifacts domain.ArtifactStore
	redis     *redis.Client
	closers   []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func retry[T any](ctx context.Context, what string, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(connectAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retry_in", next).Msgf("%s not ready", what)
		}),
	)
}

// openBackends connects the session store, artifact store and, when needed, Redis
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}

	if cfg.SessionStore.Driver == config.DriverRedis || cfg.RateLimit.Enabled {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		b.redis = client
		b.closers = append(b.closers, func() { client.Close() })
	}

	sessions, err := openSessionStore(ctx, cfg, b)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.sessions = sessions

	artifacts, err := openArtifactStore(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.artifacts = artifacts

	return b, nil
}

func openSessionStore(ctx context.Context, cfg *config.Config, b *backends) (domain.SessionStore, error) {
	switch cfg.SessionStore.Driver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory session store, sessions are lost on restart")
		return memory.NewSessionStore(), nil

	case config.DriverRedis:
		return redis.NewSessionStore(b.redis, cfg.SessionStore.TTL), nil

	case config.DriverPostgres:
		if cfg.Database.AutoMigrate {
			if _, err := retry(ctx, "Postgres", func() (struct{}, error) {
				return struct{}{}, postgres.RunMigrations(cfg.Database.DSN())
			}); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		db, err := retry(ctx, "Postgres", func() (*postgres.DB, error) {
			return postgres.NewDB(ctx, cfg.Database)
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		return postgres.NewSessionRepository(db), nil

	case config.DriverMongo:
		store, err := retry(ctx, "MongoDB", func() (*mongo.SessionStore, error) {
			return mongo.NewSessionStore(ctx, cfg.Mongo, cfg.SessionStore.TTL)
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { store.Close() })
		return store, nil

	case config.DriverMySQL:
		store, err := retry(ctx, "MySQL", func() (*mysql.SessionStore, error) {
			return mysql.NewSessionStore(ctx, cfg.MySQL)
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { store.Close() })
		return store, nil

	case config.DriverSQLite:
		store, err := sqlite.NewSessionStore(ctx, cfg.SQLite)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { store.Close() })
		return store, nil

	default:
		return nil, fmt.Errorf("unknown session store driver %q", cfg.SessionStore.Driver)
	}
}

func openArtifactStore(ctx context.Context, cfg *config.Config) (domain.ArtifactStore, error) {
	switch cfg.ArtifactStore.Driver {
	case config.DriverLocal:
		return artifact.NewLocalStore(cfg.ArtifactStore.Local.Dir, cfg.ArtifactStore.Local.BaseURL)
	case config.DriverS3:
		return artifact.NewS3Store(ctx, cfg.ArtifactStore.S3)
	default:
		return nil, fmt.Errorf("unknown artifact store driver %q", cfg.ArtifactStore.Driver)
	}
}
