package handler

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/Rrens/inspection-service/internal/api/middleware"
	"github.com/Rrens/inspection-service/internal/api/response"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
)

const (
	defaultUploadExt      = ".pdf"
	defaultUploadBase     = "fil"
	defaultUploadMaxBytes = 10 << 20
)

// UploadHandler stores client-provided files next to generated reports
type UploadHandler struct {
	store    domain.ArtifactStore
	maxBytes int64
	clock    clockwork.Clock
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(store domain.ArtifactStore, maxBytes int64, clock clockwork.Clock) *UploadHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxBytes <= 0 {
		maxBytes = defaultUploadMaxBytes
	}
	return &UploadHandler{store: store, maxBytes: maxBytes, clock: clock}
}

// Upload accepts a multipart "file" field and stores it
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		response.BadRequest(w, "invalid multipart body", map[string]string{"file": err.Error()})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, `no file uploaded (field name should be "file")`, map[string]string{"file": "field is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(w, "failed to read upload", nil)
		return
	}

	prefix := "file"
	if identity, ok := middleware.GetIdentity(r.Context()); ok && identity.OwnerCode != "" {
		prefix = identity.OwnerCode
	}

	a, err := h.store.Store(r.Context(), uploadName(prefix, header.Filename, h.clock.Now().UnixMilli()), data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.Created(w, map[string]string{
		"id":          strings.TrimSuffix(a.FileName, filepath.Ext(a.FileName)),
		"name":        a.FileName,
		"type":        chi.URLParam(r, "type"),
		"downloadUrl": a.PublicURL,
	})
}

// uploadName builds <prefix>-<unixmillis>-<base><ext>
func uploadName(prefix, original string, millis int64) string {
	original = filepath.Base(original)
	ext := filepath.Ext(original)
	base := strings.TrimSuffix(original, ext)
	if ext == "" || ext == "." {
		ext = defaultUploadExt
	}
	if base == "" || base == string(filepath.Separator) {
		base = defaultUploadBase
	}
	return domain.SanitizeFileName(fmt.Sprintf("%s-%d-%s%s", prefix, millis, base, ext))
}
