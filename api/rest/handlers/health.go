package handlers

import (
	"context"
	"net/http"

	awsprovider "asset-orchestrator/providers/aws"

	"github.com/rs/zerolog"
)

// TargetChecker reports the state of executor targets.
type TargetChecker interface {
	Check(ctx context.Context) ([]awsprovider.TargetHealth, error)
}

// HealthHandler reports the availability of the executor targets.
type HealthHandler struct {
	targets TargetChecker
	logger  zerolog.Logger
}

// NewHealthHandler creates a health handler. targets may be nil.
func NewHealthHandler(targets TargetChecker, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{targets: targets, logger: logger}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string                     `json:"status"`
	Unavailable []awsprovider.TargetHealth `json:"unavailable,omitempty"`
	Error       string                     `json:"error,omitempty"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.targets == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	health, err := h.targets.Check(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("target check failed")
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Error: err.Error()})
		return
	}
	if down := awsprovider.Unavailable(health); len(down) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Unavailable: down})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
