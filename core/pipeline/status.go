package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"asset-orchestrator/core/executor"
	"asset-orchestrator/core/models"
	"asset-orchestrator/core/repository"
	"asset-orchestrator/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// URLProvider issues signed read URLs for artifacts.
type URLProvider interface {
	GetURL(ctx context.Context, uri storage.ArtifactURI) (string, error)
}

// StatusRequest identifies the job to poll.
type StatusRequest struct {
	CommandID string
	ModelName string // Display name forwarded to the conversion stage
}

// StatusResult is the observable state of a job.
//
// Status is the stage 1 command status as reported by the executor. For a
// successful job with a follow-up stage, SecondaryArtifactURI is set once the
// follow-up is dispatched and SecondaryURL only once it has succeeded.
type StatusResult struct {
	Status  models.CommandStatus
	Stage   models.Stage
	ModelID string

	PrimaryArtifactURI string
	PrimaryURL         string

	SecondaryArtifactURI string
	SecondaryURL         string
	SecondaryStatus      models.CommandStatus
}

// StatusService polls the executor and chains follow-up stages.
type StatusService struct {
	opts     *Options
	executor executor.RemoteExecutor
	jobs     repository.JobRepository
	urls     URLProvider
	logger   zerolog.Logger
	now      func() time.Time
}

// NewStatusService creates a new job status service
func NewStatusService(opts *Options, exec executor.RemoteExecutor, jobs repository.JobRepository, urls URLProvider, logger zerolog.Logger) (*StatusService, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &StatusService{
		opts:     opts,
		executor: exec,
		jobs:     jobs,
		urls:     urls,
		logger:   logger.With().Str("component", "status").Logger(),
		now:      time.Now,
	}, nil
}

// CheckStatus reports the status of a submitted job. Non-success statuses are
// returned verbatim without side effects. On success the job record is loaded
// and, when a follow-up stage exists, it is dispatched at most once per record.
func (s *StatusService) CheckStatus(ctx context.Context, req StatusRequest) (*StatusResult, error) {
	const op = "check status"

	if req.CommandID == "" {
		return nil, models.Validation(op, errors.New("commandId is required"))
	}

	// The record names the job type stage 1 ran as. Without it the
	// configured job type is polled.
	record, lookupErr := s.jobs.GetRecord(ctx, req.CommandID)
	jobType := s.opts.JobType
	if lookupErr == nil && record.JobType != "" {
		jobType = record.JobType
	}
	primaryTpl, err := s.opts.stage(jobType)
	if err != nil {
		return nil, models.Internal(op, err)
	}

	status, err := s.executor.Status(ctx, req.CommandID, primaryTpl.Target)
	if err != nil {
		return nil, models.Upstream(op, err)
	}
	if status != models.CommandSuccess {
		return &StatusResult{Status: status}, nil
	}

	if errors.Is(lookupErr, repository.ErrNotFound) {
		s.logger.Warn().Str("commandId", req.CommandID).Msg("command succeeded but has no job record")
		return nil, models.NotFound(op, models.ErrRecordMissing)
	}
	if lookupErr != nil {
		return nil, models.Upstream(op, lookupErr)
	}

	if record.Stage == models.Stage1Pending {
		record, err = s.advance(ctx, record, models.Stage1Pending, models.Stage1Done)
		if err != nil {
			return nil, err
		}
	}

	primary, err := storage.ParseURI(record.StageArtifactURI)
	if err != nil {
		return nil, models.Internal(op, fmt.Errorf("record %s: %w", record.CommandID, err))
	}
	primaryURL, err := s.urls.GetURL(ctx, primary)
	if err != nil {
		return nil, models.Upstream(op, err)
	}

	result := &StatusResult{
		Status:             models.CommandSuccess,
		Stage:              record.Stage,
		ModelID:            record.ModelID,
		PrimaryArtifactURI: primary.String(),
		PrimaryURL:         primaryURL,
	}
	if !record.HasFollowUp() {
		return result, nil
	}

	conv, ok := s.opts.followUpFor(primary.Ext(), record.FollowUpFormat)
	if !ok {
		return nil, models.Internal(op, fmt.Errorf("no conversion to %q configured for %q", record.FollowUpFormat, primary.Ext()))
	}

	switch record.Stage {
	case models.Stage1Done, models.Stage2Dispatching:
		record, err = s.dispatchFollowUp(ctx, record, primary, conv, req.ModelName)
		if err != nil {
			return nil, err
		}
	case models.Stage2Pending:
		record, err = s.pollFollowUp(ctx, record, conv, result)
		if err != nil {
			return nil, err
		}
	}

	result.Stage = record.Stage
	result.SecondaryArtifactURI = record.DerivedArtifactURI
	if result.SecondaryArtifactURI == "" {
		result.SecondaryArtifactURI = primary.WithExt(conv.Format).String()
	}

	switch record.Stage {
	case models.Stage2Done:
		secondary, err := storage.ParseURI(record.DerivedArtifactURI)
		if err != nil {
			return nil, models.Internal(op, fmt.Errorf("record %s: %w", record.CommandID, err))
		}
		result.SecondaryURL, err = s.urls.GetURL(ctx, secondary)
		if err != nil {
			return nil, models.Upstream(op, err)
		}
		result.SecondaryStatus = models.CommandSuccess
	case models.Stage2Pending:
		if result.SecondaryStatus == "" {
			result.SecondaryStatus = models.CommandPending
		}
	case models.Stage1Done, models.Stage2Dispatching:
		result.SecondaryStatus = models.CommandPending
	}

	return result, nil
}

// dispatchFollowUp claims the record, dispatches the conversion command and
// records it. Losing the claim means another poller owns the dispatch.
func (s *StatusService) dispatchFollowUp(
	ctx context.Context,
	record *models.JobRecord,
	primary storage.ArtifactURI,
	conv Conversion,
	modelName string,
) (*models.JobRecord, error) {
	const op = "dispatch follow-up"

	token := uuid.NewString()
	err := s.jobs.ClaimFollowUp(ctx, record.CommandID, token, s.now(), s.opts.lease())
	if errors.Is(err, repository.ErrConditionFailed) {
		return s.reload(ctx, record.CommandID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NotFound(op, models.ErrRecordMissing)
	}
	if err != nil {
		return nil, models.Upstream(op, err)
	}

	tpl, err := s.opts.stage(conv.JobType)
	if err != nil {
		s.release(ctx, record.CommandID, token)
		return nil, models.Internal(op, err)
	}

	derived := primary.WithExt(conv.Format)
	cmd := executor.BuildStageCommand(tpl, executor.StageParams{
		Input:   primary,
		Output:  derived,
		ModelID: record.ModelID,
		Name:    modelName,
		Format:  conv.Format,
		Region:  s.opts.Region,
	})

	// The claim must still be held when the dispatch is recorded.
	dispatchCtx, cancel := context.WithTimeout(ctx, s.opts.lease()/2)
	dispatch, err := s.executor.Dispatch(dispatchCtx, cmd)
	cancel()
	if err != nil {
		s.logger.Error().Err(err).
			Str("commandId", record.CommandID).
			Str("target", cmd.Target).
			Msg("follow-up dispatch failed")
		s.release(ctx, record.CommandID, token)
		return nil, models.Upstream(op, err)
	}

	// Past this point the follow-up runs remotely whether or not the caller waits.
	ctx = context.WithoutCancel(ctx)
	err = s.jobs.RecordFollowUp(ctx, record.CommandID, token, dispatch.CommandID, derived.String())
	if errors.Is(err, repository.ErrConditionFailed) {
		// Claim expired while dispatching; another poller recorded its own command.
		s.logger.Warn().
			Str("commandId", record.CommandID).
			Str("followUpCommandId", dispatch.CommandID).
			Msg("follow-up dispatched after claim was lost")
		return s.reload(ctx, record.CommandID)
	}
	if err != nil {
		s.logger.Error().Err(err).
			Str("commandId", record.CommandID).
			Str("followUpCommandId", dispatch.CommandID).
			Msg("failed to record follow-up dispatch")
		return nil, models.Upstream(op, err)
	}

	s.logger.Info().
		Str("commandId", record.CommandID).
		Str("followUpCommandId", dispatch.CommandID).
		Str("derived", derived.String()).
		Msg("follow-up dispatched")

	return s.reload(ctx, record.CommandID)
}

// pollFollowUp checks the conversion command and marks the record done on success.
func (s *StatusService) pollFollowUp(ctx context.Context, record *models.JobRecord, conv Conversion, result *StatusResult) (*models.JobRecord, error) {
	tpl, err := s.opts.stage(conv.JobType)
	if err != nil {
		return nil, models.Internal("poll follow-up", err)
	}

	status, err := s.executor.Status(ctx, record.FollowUpCommandID, tpl.Target)
	if err != nil {
		return nil, models.Upstream("poll follow-up", err)
	}
	result.SecondaryStatus = status
	if status != models.CommandSuccess {
		return record, nil
	}
	return s.advance(ctx, record, models.Stage2Pending, models.Stage2Done)
}

// advance moves the record forward, tolerating a concurrent poller that
// already did so.
func (s *StatusService) advance(ctx context.Context, record *models.JobRecord, from, to models.Stage) (*models.JobRecord, error) {
	err := s.jobs.AdvanceStage(ctx, record.CommandID, from, to)
	switch {
	case err == nil:
		record.Stage = to
		return record, nil
	case errors.Is(err, repository.ErrConditionFailed):
		return s.reload(ctx, record.CommandID)
	case errors.Is(err, repository.ErrNotFound):
		return nil, models.NotFound("advance stage", models.ErrRecordMissing)
	default:
		return nil, models.Upstream("advance stage", err)
	}
}

func (s *StatusService) reload(ctx context.Context, commandID string) (*models.JobRecord, error) {
	record, err := s.jobs.GetRecord(ctx, commandID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NotFound("reload record", models.ErrRecordMissing)
	}
	if err != nil {
		return nil, models.Upstream("reload record", err)
	}
	return record, nil
}

func (s *StatusService) release(ctx context.Context, commandID, token string) {
	if err := s.jobs.ReleaseFollowUp(context.WithoutCancel(ctx), commandID, token); err != nil {
		s.logger.Error().Err(err).Str("commandId", commandID).Msg("failed to release follow-up claim")
	}
}
