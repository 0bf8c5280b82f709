package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// Logger returns request logging middleware. Each request gets a child logger
// in its context carrying the chi request ID; handlers reach it via hlog.FromRequest
// or zerolog.Ctx.
func Logger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			var evt *zerolog.Event
			l := hlog.FromRequest(r)
			switch {
			case status >= 500:
				evt = l.Error()
			case status >= 400:
				evt = l.Warn()
			default:
				evt = l.Info()
			}
			evt.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("Request")
		})(next)
		h = requestIDField(h)
		h = hlog.RemoteAddrHandler("ip")(h)
		return hlog.NewHandler(logger)(h)
	}
}

func requestIDField(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			l := zerolog.Ctx(r.Context())
			l.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}
