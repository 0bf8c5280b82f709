package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Rrens/inspection-service/internal/api/response"
)

// Pinger reports backend connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns liveness plus the session store state. It never fails.
func HealthCheck(store Pinger, driver string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := "connected"
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			state = "disconnected"
		}

		response.OK(w, map[string]string{
			"status":        "ok",
			"time":          time.Now().UTC().Format(time.RFC3339),
			"session_store": driver + ":" + state,
		})
	}
}

// ReadyCheck returns readiness status including session store connectivity
func ReadyCheck(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			response.Fail(w, http.StatusServiceUnavailable, "unavailable", "session store not ready", nil)
			return
		}

		response.OK(w, map[string]string{
			"status": "ready",
		})
	}
}
