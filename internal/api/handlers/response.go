package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/queryhub/queryhub/internal/errs"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps the error taxonomy onto HTTP statuses. Unknown errors
// become 500 with a generic body so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	var upstream *errs.UpstreamError

	switch {
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrAmbiguousScope):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrPrecondition):
		writeJSON(w, http.StatusPreconditionFailed, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrUpstreamTimeout):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
	case errors.As(err, &upstream):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
