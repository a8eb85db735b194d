package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/quota"
	"github.com/markdave123-py/contexta-ingest/internal/services"
)

// maxBodyBytes bounds request bodies; text submissions are the largest.
const maxBodyBytes = 12 << 20

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_body", Message: "invalid request body"})
		return false
	}
	return true
}

// writeError maps service errors onto status codes. Anything unrecognised is
// logged and reported as a 500 without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		validation *services.ValidationError
		state      *services.StateError
		quotaErr   *quota.Error
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: validation.Key, Message: validation.Error()})
	case errors.As(err, &state):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: state.Key, Message: state.Error()})
	case errors.As(err, &quotaErr):
		status := http.StatusTooManyRequests
		if quotaErr.Outcome == quota.OutcomeFileSizeExceeded {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, ErrorResponse{Error: quotaErr.Key, Message: quotaErr.Error()})
	case errors.Is(err, core.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "internal server error"})
	}
}
