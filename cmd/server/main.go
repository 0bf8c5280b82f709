package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rrens/inspection-service/internal/api"
	"github.com/Rrens/inspection-service/internal/config"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/Rrens/inspection-service/internal/logger"
	"github.com/Rrens/inspection-service/internal/report"
	"github.com/Rrens/inspection-service/internal/repository/redis"
	"github.com/Rrens/inspection-service/internal/security"
	"github.com/Rrens/inspection-service/internal/service"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	appLogger, logCloser, err := logger.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer logCloser.Close()
	log.Logger = appLogger
	zerolog.DefaultContextLogger = &appLogger

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("session_store", cfg.SessionStore.Driver).
		Str("artifact_store", cfg.ArtifactStore.Driver).
		Msg("Starting inspection service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	b, err := openBackends(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer b.Close()

	if len(cfg.Auth.AppTokens) == 0 {
		log.Warn().Msg("No app token configured, gated routes will reject every request")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(registry)

	clock := clockwork.NewRealClock()
	renderOpts := []report.Option{report.WithClock(clock)}
	if cfg.Report.FontPath != "" {
		ttf, err := os.ReadFile(cfg.Report.FontPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Report.FontPath).Msg("Failed to read report font")
		}
		renderOpts = append(renderOpts, report.WithUTF8Font(ttf))
	}

	sessionService := service.NewSessionService(
		b.sessions,
		b.artifacts,
		report.NewRenderer(renderOpts...),
		service.SessionServiceConfig{
			PublicBaseURL:   cfg.PublicBaseURL,
			FinalizeTimeout: cfg.Finalize.Timeout,
			ClaimLease:      cfg.Finalize.ClaimLease,
		},
		service.WithClock(clock),
		service.WithMetrics(metrics),
	)

	// Retention janitor for stores without native expiry
	if purger, ok := b.sessions.(domain.SessionPurger); ok && cfg.SessionStore.TTL > 0 && cfg.SessionStore.JanitorInterval > 0 {
		janitor := service.NewJanitor(purger, cfg.SessionStore.TTL, cfg.SessionStore.JanitorInterval, clock, metrics)
		go janitor.Run(ctx)
	}

	deps := api.Dependencies{
		Logger:         appLogger,
		SessionService: sessionService,
		Artifacts:      b.artifacts,
		JWTManager:     security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Gatherer:       registry,
		Clock:          clock,
	}
	if cfg.RateLimit.Enabled && b.redis != nil {
		deps.RateLimiter = redis.NewRateLimiter(b.redis, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(cfg, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
