package middleware

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Rrens/inspection-service/internal/api/response"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/Rrens/inspection-service/internal/security"
	"github.com/rs/zerolog/hlog"
)

type contextKey string

const (
	IdentityKey contextKey = "identity"

	AppTokenHeader = "X-App-Token"
)

// AppTokenMiddleware gates routes behind a shared application token
type AppTokenMiddleware struct {
	tokens []string
}

// NewAppTokenMiddleware creates an app token gate accepting any of tokens
func NewAppTokenMiddleware(tokens []string) *AppTokenMiddleware {
	return &AppTokenMiddleware{tokens: tokens}
}

// Require rejects requests without a valid X-App-Token. Preflight requests pass.
func (m *AppTokenMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if len(m.tokens) == 0 {
			hlog.FromRequest(r).Error().Msg("No app token configured, rejecting gated request")
			response.InternalError(w, "app token is not configured on the server")
			return
		}

		provided := strings.TrimSpace(r.Header.Get(AppTokenHeader))
		if provided == "" || !m.valid(provided) {
			response.Unauthorized(w, "invalid app token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AppTokenMiddleware) valid(provided string) bool {
	ok := false
	for _, token := range m.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(provided)) == 1 {
			ok = true
		}
	}
	return ok
}

// AuthMiddleware attaches the caller identity from a bearer token
type AuthMiddleware struct {
	jwtManager *security.JWTManager
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *security.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// OptionalIdentity resolves the bearer token when present. A missing or bad
// token leaves the request anonymous instead of failing it.
func (m *AuthMiddleware) OptionalIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || m.jwtManager == nil || !m.jwtManager.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			hlog.FromRequest(r).Debug().Msg("Ignoring malformed authorization header")
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.jwtManager.ResolveIdentity(strings.TrimSpace(parts[1]))
		if err != nil {
			hlog.FromRequest(r).Debug().Err(err).Msg("Ignoring invalid bearer token")
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), IdentityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity gets the caller identity from context
func GetIdentity(ctx context.Context) (*domain.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(*domain.Identity)
	return identity, ok && identity != nil
}

// RateLimiter decides whether a client may make another request
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, int, time.Time, error)
	Limit() int
}

// RateLimitMiddleware handles rate limiting
type RateLimitMiddleware struct {
	rateLimiter RateLimiter
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(rateLimiter RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{rateLimiter: rateLimiter}
}

// Limit applies rate limiting based on client IP
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, resetTime, err := m.rateLimiter.Allow(r.Context(), clientIP(r))
		if err != nil {
			// If rate limiter fails, allow the request but log the error
			hlog.FromRequest(r).Warn().Err(err).Msg("Rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		// Set rate limit headers
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.rateLimiter.Limit()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", resetTime.UTC().Format(time.RFC3339))

		if !allowed {
			response.TooManyRequests(w, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
