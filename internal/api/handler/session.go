package handler

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/Rrens/inspection-service/internal/api/middleware"
	"github.com/Rrens/inspection-service/internal/api/response"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/Rrens/inspection-service/internal/service"
	"github.com/go-chi/chi/v5"
)

var sessionPage = template.Must(template.New("session").Parse(`<!doctype html>
<html lang="da">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>APV – {{.Title}}</title>
</head>
<body style="font-family: system-ui, -apple-system, Segoe UI, Roboto, sans-serif; padding: 24px;">
<h1>APV: {{.Title}}</h1>
<p>Session is open. Questions: {{.QuestionCount}}.</p>
<p>Close the session in the app to generate the PDF.</p>
</body>
</html>
`))

// SessionHandler handles inspection session endpoints
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func identityFrom(r *http.Request) *domain.Identity {
	identity, _ := middleware.GetIdentity(r.Context())
	return identity
}

// Create starts a new session
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input domain.CreateSessionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body", map[string]string{"body": "must be a JSON object"})
		return
	}

	result, err := h.sessionService.CreateSession(r.Context(), input, identityFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.Created(w, result)
}

// Get returns the JSON summary of a session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessionService.GetSessionView(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, view)
}

// Finalize renders and publishes the session report
func (h *SessionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	result, err := h.sessionService.FinalizeSession(r.Context(), chi.URLParam(r, "sessionID"), identityFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, result)
}

// View serves the public HTML page for a session
func (h *SessionHandler) View(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessionService.GetSessionView(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := sessionPage.Execute(w, view); err != nil {
		writeError(w, r, err)
	}
}
