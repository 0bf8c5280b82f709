package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Rrens/inspection-service/internal/config"
	"github.com/Rrens/inspection-service/internal/repository/postgres"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type globals struct {
	DSN string
}

type upCmd struct{}

func (c *upCmd) Run(g *globals) error {
	return postgres.RunMigrations(g.DSN)
}

type downCmd struct {
	Steps int `help:"Number of migrations to roll back." default:"1"`
}

func (c *downCmd) Run(g *globals) error {
	if c.Steps < 1 {
		return fmt.Errorf("steps must be at least 1")
	}
	return postgres.RollbackMigrations(g.DSN, c.Steps)
}

type versionCmd struct{}

func (c *versionCmd) Run(ctx context.Context, g *globals) error {
	version, dirty, err := postgres.MigrationVersion(g.DSN)
	if err != nil {
		return err
	}
	fmt.Printf("version=%d dirty=%t\n", version, dirty)
	return nil
}

var cli struct {
	DSN     string     `help:"Postgres connection string. Defaults to the configured database." env:"DATABASE_URL"`
	Up      upCmd      `cmd:"" default:"1" help:"Apply all pending migrations"`
	Down    downCmd    `cmd:"" help:"Roll back migrations"`
	Version versionCmd `cmd:"" help:"Print the current schema version"`
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Description("Manage the inspection session schema in Postgres."),
		kong.BindTo(ctx, (*context.Context)(nil)))

	dsn := cli.DSN
	if dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		dsn = cfg.Database.DSN()
		log.Info().Str("host", cfg.Database.Host).Int("port", cfg.Database.Port).Msg("Using configured database")
	}

	err := cmd.Run(&globals{DSN: dsn})
	cmd.FatalIfErrorf(err)
}
