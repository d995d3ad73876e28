package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"asset-orchestrator/core/models"
	"asset-orchestrator/core/pipeline"

	"github.com/rs/zerolog"
)

// JobSubmitter starts reconstruction jobs.
type JobSubmitter interface {
	Submit(ctx context.Context, inputArtifactURI string) (string, error)
}

// JobStatusChecker reports job status and chains follow-up stages.
type JobStatusChecker interface {
	CheckStatus(ctx context.Context, req pipeline.StatusRequest) (*pipeline.StatusResult, error)
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	submitter JobSubmitter
	status    JobStatusChecker
	logger    zerolog.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(submitter JobSubmitter, status JobStatusChecker, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		submitter: submitter,
		status:    status,
		logger:    logger.With().Str("handler", "jobs").Logger(),
	}
}

// SubmitJobRequest represents the request to submit a job.
// S3URI is the field name used by earlier clients.
type SubmitJobRequest struct {
	SourceArtifactURI string `json:"sourceArtifactUri"`
	S3URI             string `json:"s3uri,omitempty"`
}

// SubmitJobResponse represents the response after submitting a job
type SubmitJobResponse struct {
	CommandID string `json:"commandId"`
}

// SubmitJob handles POST /v1/jobs
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	source := strings.TrimSpace(req.SourceArtifactURI)
	if source == "" {
		source = strings.TrimSpace(req.S3URI)
	}
	if source == "" {
		writeError(w, r, h.logger, models.Validation("submit", errors.New("sourceArtifactUri is required")))
		return
	}

	commandID, err := h.submitter.Submit(r.Context(), source)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, SubmitJobResponse{CommandID: commandID})
}

// JobStatusRequest represents a status poll
type JobStatusRequest struct {
	CommandID string `json:"commandId"`
	ModelName string `json:"modelName,omitempty"`
}

// JobStatusResponse carries either the artifacts of a successful job or the
// executor status with a message.
type JobStatusResponse struct {
	Status  models.CommandStatus `json:"status"`
	Message string               `json:"message,omitempty"`

	Stage   models.Stage `json:"stage,omitempty"`
	ModelID string       `json:"modelId,omitempty"`

	PrimaryArtifactURI   string               `json:"primaryArtifactUri,omitempty"`
	PrimaryURL           string               `json:"primaryUrl,omitempty"`
	SecondaryArtifactURI string               `json:"secondaryArtifactUri,omitempty"`
	SecondaryURL         string               `json:"secondaryUrl,omitempty"`
	SecondaryStatus      models.CommandStatus `json:"secondaryStatus,omitempty"`
}

// CheckJobStatus handles POST /v1/jobs/status
func (h *JobHandler) CheckJobStatus(w http.ResponseWriter, r *http.Request) {
	var req JobStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.status.CheckStatus(r.Context(), pipeline.StatusRequest{
		CommandID: strings.TrimSpace(req.CommandID),
		ModelName: strings.TrimSpace(req.ModelName),
	})
	if errors.Is(err, models.ErrRecordMissing) {
		h.logger.Warn().Str("commandId", req.CommandID).Msg("job record not found")
		writeJSON(w, http.StatusNotFound, JobStatusResponse{
			Status:  models.CommandSuccess,
			Message: models.ErrRecordMissing.Error(),
		})
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if result.Status != models.CommandSuccess {
		writeJSON(w, http.StatusOK, JobStatusResponse{
			Status:  result.Status,
			Message: fmt.Sprintf("command is %s", result.Status),
		})
		return
	}

	writeJSON(w, http.StatusOK, JobStatusResponse{
		Status:               result.Status,
		Stage:                result.Stage,
		ModelID:              result.ModelID,
		PrimaryArtifactURI:   result.PrimaryArtifactURI,
		PrimaryURL:           result.PrimaryURL,
		SecondaryArtifactURI: result.SecondaryArtifactURI,
		SecondaryURL:         result.SecondaryURL,
		SecondaryStatus:      result.SecondaryStatus,
	})
}
