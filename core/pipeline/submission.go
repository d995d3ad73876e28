package pipeline

import (
	"context"
	"errors"
	"strings"

	"asset-orchestrator/core/executor"
	"asset-orchestrator/core/models"
	"asset-orchestrator/core/repository"
	"asset-orchestrator/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Submitter starts reconstruction jobs.
type Submitter struct {
	opts     *Options
	executor executor.RemoteExecutor
	jobs     repository.JobRepository
	logger   zerolog.Logger
	newID    func() string
}

// NewSubmitter creates a new job submission service
func NewSubmitter(opts *Options, exec executor.RemoteExecutor, jobs repository.JobRepository, logger zerolog.Logger) (*Submitter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Submitter{
		opts:     opts,
		executor: exec,
		jobs:     jobs,
		logger:   logger.With().Str("component", "submitter").Logger(),
		newID:    newModelID,
	}, nil
}

// Submit dispatches stage 1 for the input artifact and persists the job
// record. It returns the executor's command id without waiting for the
// command to run. The record is written only after a successful dispatch.
func (s *Submitter) Submit(ctx context.Context, inputArtifactURI string) (string, error) {
	const op = "submit"

	input, err := storage.ParseURI(inputArtifactURI)
	if err != nil {
		return "", models.Validation(op, err)
	}

	tpl, err := s.opts.stage(s.opts.JobType)
	if err != nil {
		return "", models.Internal(op, err)
	}

	modelID := s.newID()
	output := storage.ArtifactURI{
		Bucket: s.opts.Bucket,
		Key:    s.opts.OutputPrefix + modelID + "." + s.opts.OutputFormat,
	}

	cmd := executor.BuildStageCommand(tpl, executor.StageParams{
		Input:   input,
		Output:  output,
		ModelID: modelID,
		Format:  s.opts.OutputFormat,
		Region:  s.opts.Region,
	})

	dispatch, err := s.executor.Dispatch(ctx, cmd)
	if err != nil {
		s.logger.Error().Err(err).Str("modelId", modelID).Str("target", cmd.Target).Msg("stage 1 dispatch failed")
		return "", models.Upstream(op, err)
	}

	record := &models.JobRecord{
		CommandID:        dispatch.CommandID,
		JobType:          s.opts.JobType,
		ModelID:          modelID,
		StageArtifactURI: output.String(),
		Stage:            models.Stage1Pending,
	}
	if conv, ok := s.opts.conversionFor(s.opts.OutputFormat); ok {
		record.FollowUpFormat = conv.Format
	}

	// The command is running remotely; a caller that goes away must not
	// leave it without a record.
	if err := s.jobs.CreateRecord(context.WithoutCancel(ctx), record); err != nil {
		// The remote command keeps running without a record; polling it
		// will report "record not found".
		s.logger.Error().Err(err).
			Str("commandId", dispatch.CommandID).
			Str("modelId", modelID).
			Msg("dispatched command has no job record")
		if errors.Is(err, repository.ErrConditionFailed) {
			return "", models.Conflict(op, err)
		}
		return "", models.Upstream(op, err)
	}

	s.logger.Info().
		Str("commandId", dispatch.CommandID).
		Str("modelId", modelID).
		Str("input", input.String()).
		Str("output", output.String()).
		Msg("job submitted")

	return dispatch.CommandID, nil
}

// newModelID returns a hyphen-free UUID.
func newModelID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
