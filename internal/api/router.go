package api

import (
	"net/http"
	"strings"

	"github.com/Rrens/inspection-service/internal/api/handler"
	customMiddleware "github.com/Rrens/inspection-service/internal/api/middleware"
	"github.com/Rrens/inspection-service/internal/api/response"
	"github.com/Rrens/inspection-service/internal/config"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/Rrens/inspection-service/internal/security"
	"github.com/Rrens/inspection-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Dependencies are the wired components the router serves
type Dependencies struct {
	Logger         zerolog.Logger
	SessionService *service.SessionService
	Artifacts      domain.ArtifactStore
	JWTManager     *security.JWTManager
	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter customMiddleware.RateLimiter
	// Gatherer is optional; nil disables the metrics endpoint.
	Gatherer prometheus.Gatherer
	Clock    clockwork.Clock
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger(deps.Logger))
	r.Use(middleware.Recoverer)
	if cfg.Server.MiddlewareTimeout > 0 {
		r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))
	}

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", customMiddleware.AppTokenHeader},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	sessionHandler := handler.NewSessionHandler(deps.SessionService)
	artifactHandler := handler.NewArtifactHandler(deps.Artifacts)
	uploadHandler := handler.NewUploadHandler(deps.Artifacts, cfg.Server.MaxBodyBytes, deps.Clock)

	appToken := customMiddleware.NewAppTokenMiddleware(cfg.Auth.AppTokens)
	authMiddleware := customMiddleware.NewAuthMiddleware(deps.JWTManager)

	// Public routes
	health := handler.HealthCheck(deps.SessionService, cfg.SessionStore.Driver)
	r.Get("/health", health)
	r.Get("/api/health", health)
	r.Get("/ready", handler.ReadyCheck(deps.SessionService))
	r.Get("/sessions/{sessionID}", sessionHandler.View)
	r.Get("/artifacts/{fileName}", artifactHandler.Serve)
	r.Get("/uploads/{fileName}", artifactHandler.Serve)

	if cfg.Metrics.Enabled && deps.Gatherer != nil {
		r.Method(http.MethodGet, cfg.Metrics.Path, promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Gated routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(appToken.Require)
		r.Use(authMiddleware.OptionalIdentity)
		if cfg.RateLimit.Enabled && deps.RateLimiter != nil {
			r.Use(customMiddleware.NewRateLimitMiddleware(deps.RateLimiter).Limit)
		}
		if cfg.Server.MaxBodyBytes > 0 {
			r.Use(middleware.RequestSize(cfg.Server.MaxBodyBytes))
		}

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Get("/{sessionID}", sessionHandler.Get)
			r.Post("/{sessionID}/finalize", sessionHandler.Finalize)
		})

		r.Post("/uploads/{type}", uploadHandler.Upload)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			response.NotFound(w, "route not found")
			return
		}
		http.NotFound(w, r)
	})

	return r
}
