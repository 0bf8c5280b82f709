package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Rrens/inspection-service/internal/artifact"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/Rrens/inspection-service/internal/report"
	"github.com/Rrens/inspection-service/internal/report/reporttest"
	"github.com/Rrens/inspection-service/internal/repository/memory"
	"github.com/Rrens/inspection-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router    chi.Router
	store     *memory.SessionStore
	artifacts *artifact.LocalStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewSessionStore()
	artifacts, err := artifact.NewLocalStore(t.TempDir(), "http://example.test/artifacts/")
	require.NoError(t, err)

	svc := service.NewSessionService(store, artifacts, report.NewRenderer(), service.SessionServiceConfig{
		PublicBaseURL:   "http://example.test",
		FinalizeTimeout: 5 * time.Second,
		ClaimLease:      time.Minute,
	})

	sessions := NewSessionHandler(svc)
	artifactHandler := NewArtifactHandler(artifacts)
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1700000000000))
	uploads := NewUploadHandler(artifacts, 1<<20, clock)

	r := chi.NewRouter()
	r.Get("/health", HealthCheck(svc, "memory"))
	r.Get("/ready", ReadyCheck(svc))
	r.Get("/sessions/{sessionID}", sessions.View)
	r.Get("/artifacts/{fileName}", artifactHandler.Serve)
	r.Post("/sessions", sessions.Create)
	r.Get("/sessions/{sessionID}/json", sessions.Get)
	r.Post("/sessions/{sessionID}/finalize", sessions.Finalize)
	r.Post("/uploads/{type}", uploads.Upload)

	return &fixture{router: r, store: store, artifacts: artifacts}
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	return response
}

func createSession(t *testing.T, f *fixture, title string, questions []string) string {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/sessions", map[string]any{"title": title, "questions": questions})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	data := decode(t, rr)["data"].(map[string]any)
	id := data["sessionId"].(string)
	assert.Equal(t, "http://example.test/sessions/"+id, data["publicUrl"])
	return id
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	response := decode(t, rr)
	assert.Equal(t, true, response["success"])
	data := response["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "memory:connected", data["session_store"])
	assert.NotEmpty(t, data["time"])
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

func TestHealthCheck_ReportsDisconnectedStore(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthCheck(failingPinger{}, "redis")(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	data := decode(t, rr)["data"].(map[string]any)
	assert.Equal(t, "redis:disconnected", data["session_store"])
}

func TestReadyCheck(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	ReadyCheck(failingPinger{})(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, false, decode(t, rr)["success"])
}

func TestSessionHandler_Create(t *testing.T) {
	f := newFixture(t)

	id := createSession(t, f, "Fire Safety", []string{"Exits clear?", "Extinguishers checked?"})

	assert.Equal(t, 1, f.store.Len())
	rr := f.do(t, http.MethodGet, "/sessions/"+id+"/json", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	data := decode(t, rr)["data"].(map[string]any)
	assert.Equal(t, "Fire Safety", data["title"])
	assert.Equal(t, float64(2), data["questionCount"])
	assert.Equal(t, "OPEN", data["state"])
}

func TestSessionHandler_CreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  any
		field string
	}{
		{name: "blank title", body: map[string]any{"title": "   ", "questions": []string{"q"}}, field: "title"},
		{name: "missing questions", body: map[string]any{"title": "T"}, field: "questions"},
		{name: "empty questions", body: map[string]any{"title": "T", "questions": []string{}}, field: "questions"},
		{name: "malformed json", body: "{not json", field: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			rr := f.do(t, http.MethodPost, "/sessions", tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			response := decode(t, rr)
			assert.Equal(t, false, response["success"])
			errBody := response["error"].(map[string]any)
			assert.Equal(t, "validation", errBody["kind"])
			fields := errBody["fields"].(map[string]any)
			assert.Contains(t, fields, tt.field)
			assert.Equal(t, 0, f.store.Len())
		})
	}
}

func TestSessionHandler_View(t *testing.T) {
	f := newFixture(t)
	id := createSession(t, f, "<b>Kitchen</b>", []string{"a", "b", "c"})

	rr := f.do(t, http.MethodGet, "/sessions/"+id, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	assert.Contains(t, body, "&lt;b&gt;Kitchen&lt;/b&gt;")
	assert.Contains(t, body, "Questions: 3")
}

func TestSessionHandler_ViewUnknown(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/sessions/missing", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "Session not found")
}

func TestSessionHandler_FinalizeRoundTrip(t *testing.T) {
	f := newFixture(t)
	questions := []string{"Exits clear?", "Exits clear?", "Last"}
	id := createSession(t, f, "Fire Safety", questions)

	rr := f.do(t, http.MethodPost, "/sessions/"+id+"/finalize", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	data := decode(t, rr)["data"].(map[string]any)
	fileName := data["fileName"].(string)
	assert.Equal(t, "http://example.test/artifacts/"+fileName, data["pdfUrl"])

	rr = f.do(t, http.MethodGet, "/artifacts/"+fileName, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	body := rr.Body.Bytes()
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF-")))
	reporttest.RequireNumberedQuestions(t, body, questions)
	assert.Contains(t, reporttest.AttachedText(t, body), "Questions\n1. Exits clear?\n2. Exits clear?\n3. Last\n")

	// Finalized sessions are retired.
	rr = f.do(t, http.MethodPost, "/sessions/"+id+"/finalize", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decode(t, rr)["error"].(map[string]any)["kind"])

	rr = f.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSessionHandler_FinalizeUnknown(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/sessions/nope/finalize", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decode(t, rr)["error"].(map[string]any)["kind"])
}

func TestArtifactHandler_Missing(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/artifacts/apv-missing.pdf", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{err: &domain.ValidationError{Fields: map[string]string{"title": "is required"}}, status: http.StatusBadRequest, kind: "validation"},
		{err: domain.ErrNotFound, status: http.StatusNotFound, kind: "not_found"},
		{err: domain.ErrConflict, status: http.StatusConflict, kind: "conflict"},
		{err: domain.ErrRender, status: http.StatusInternalServerError, kind: "render"},
		{err: domain.ErrStorage, status: http.StatusBadGateway, kind: "storage"},
		{err: errors.New("boom"), status: http.StatusInternalServerError, kind: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.kind, decode(t, rr)["error"].(map[string]any)["kind"])
		})
	}
}

func TestUploadHandler_Upload(t *testing.T) {
	f := newFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "photo one.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	data := decode(t, rr)["data"].(map[string]any)
	assert.Equal(t, "file-1700000000000-photo_one.jpg", data["name"])
	assert.Equal(t, "file-1700000000000-photo_one", data["id"])
	assert.Equal(t, "image", data["type"])
	assert.Equal(t, "http://example.test/artifacts/file-1700000000000-photo_one.jpg", data["downloadUrl"])

	rr = f.do(t, http.MethodGet, "/artifacts/file-1700000000000-photo_one.jpg", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jpeg-bytes", rr.Body.String())
}

func TestUploadHandler_MissingFile(t *testing.T) {
	f := newFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads/pdf", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `\"file\"`))
}

func TestUploadName(t *testing.T) {
	tests := []struct {
		prefix   string
		original string
		expected string
	}{
		{prefix: "file", original: "report.pdf", expected: "file-42-report.pdf"},
		{prefix: "ABC123", original: "scan", expected: "ABC123-42-scan.pdf"},
		{prefix: "file", original: ".pdf", expected: "file-42-fil.pdf"},
		{prefix: "file", original: "../../etc/passwd.txt", expected: "file-42-passwd.txt"},
		{prefix: "file", original: "", expected: "file-42-fil.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.original, func(t *testing.T) {
			assert.Equal(t, tt.expected, uploadName(tt.prefix, tt.original, 42))
		})
	}
}
