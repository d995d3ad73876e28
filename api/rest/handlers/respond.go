package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"asset-orchestrator/api/rest/middleware"
	"asset-orchestrator/core/models"

	"github.com/rs/zerolog"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	allowAnyOrigin(w.Header())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a tagged error to its HTTP status. Internal errors are
// logged and answered with a generic body.
func writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	kind := models.KindOf(err)
	status := statusFor(kind)

	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).
		Str("requestId", middleware.RequestIDFromContext(r.Context())).
		Str("kind", kind.String()).
		Str("path", r.URL.Path).
		Msg("request failed")

	message := http.StatusText(http.StatusInternalServerError)
	if kind != models.KindInternal {
		message = publicMessage(err)
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage drops the operation prefix of a tagged error.
func publicMessage(err error) string {
	var tagged *models.Error
	if errors.As(err, &tagged) && tagged.Err != nil {
		return tagged.Err.Error()
	}
	return err.Error()
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return models.Validation("decode request", errors.New("invalid request body"))
	}
	return nil
}

// Preflight answers CORS preflight requests with 200 and an empty body.
func Preflight(w http.ResponseWriter, _ *http.Request) {
	allowAnyOrigin(w.Header())
	w.WriteHeader(http.StatusOK)
}

// allowAnyOrigin sets the permissive CORS headers. The router's CORS layer
// only adds them to requests carrying an Origin header.
func allowAnyOrigin(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "*")
	h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
}
