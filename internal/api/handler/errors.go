package handler

import (
	"errors"
	"net/http"

	"github.com/Rrens/inspection-service/internal/api/response"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/rs/zerolog/hlog"
)

// writeError maps a domain error onto the HTTP status and error payload
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	logger := hlog.FromRequest(r)

	switch kind {
	case domain.KindValidation:
		var verr *domain.ValidationError
		var fields map[string]string
		if errors.As(err, &verr) {
			fields = verr.Fields
		}
		response.Fail(w, http.StatusBadRequest, string(kind), "invalid request", fields)
	case domain.KindNotFound:
		response.Fail(w, http.StatusNotFound, string(kind), "session not found", nil)
	case domain.KindConflict:
		logger.Warn().Err(err).Msg("Artifact conflict")
		response.Fail(w, http.StatusConflict, string(kind), "report already exists", nil)
	case domain.KindRender:
		logger.Error().Err(err).Msg("Report rendering failed")
		response.Fail(w, http.StatusInternalServerError, string(kind), "failed to render report", nil)
	case domain.KindStorage:
		logger.Error().Err(err).Msg("Storage failure")
		response.Fail(w, http.StatusBadGateway, string(kind), "storage backend failed", nil)
	default:
		logger.Error().Err(err).Msg("Unhandled error")
		response.InternalError(w, "internal error")
	}
}
