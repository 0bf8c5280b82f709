package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/Rrens/inspection-service/internal/api/response"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

// ArtifactHandler serves stored reports and uploads
type ArtifactHandler struct {
	store domain.ArtifactStore
}

// NewArtifactHandler creates a new artifact handler
func NewArtifactHandler(store domain.ArtifactStore) *ArtifactHandler {
	return &ArtifactHandler{store: store}
}

// Serve streams an artifact by file name
func (h *ArtifactHandler) Serve(w http.ResponseWriter, r *http.Request) {
	fileName := chi.URLParam(r, "fileName")

	rc, info, err := h.store.Open(r.Context(), fileName)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			response.NotFound(w, "artifact not found")
			return
		}
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Content-Disposition", `inline; filename="`+info.Key+`"`)

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, info.Key, info.ModTime, rs)
		return
	}

	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("file_name", fileName).Msg("Artifact stream interrupted")
	}
}
