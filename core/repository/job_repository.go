package repository

import (
	"context"
	"errors"
	"time"

	"asset-orchestrator/core/models"
)

var (
	// ErrNotFound is returned when no record exists for the key.
	ErrNotFound = errors.New("record not found")
	// ErrConditionFailed is returned when a conditional write lost against
	// the current state of the record.
	ErrConditionFailed = errors.New("conditional update failed")
)

// JobRepository persists job records keyed by the stage 1 command id.
//
// All mutations are conditional so that concurrent pollers cannot dispatch
// the follow-up stage twice: a poller first claims the record, dispatches,
// then records the follow-up command, releasing the claim on failure.
type JobRepository interface {
	// CreateRecord inserts a new record; ErrConditionFailed if the id exists.
	CreateRecord(ctx context.Context, record *models.JobRecord) error

	// GetRecord returns the record or ErrNotFound.
	GetRecord(ctx context.Context, commandID string) (*models.JobRecord, error)

	// AdvanceStage moves the record from one stage to another.
	AdvanceStage(ctx context.Context, commandID string, from, to models.Stage) error

	// ClaimFollowUp moves Stage1Done to Stage2Dispatching under token, or
	// takes over a dispatching claim older than lease.
	ClaimFollowUp(ctx context.Context, commandID, token string, now time.Time, lease time.Duration) error

	// RecordFollowUp stores the derived artifact and follow-up command id,
	// moving Stage2Dispatching to Stage2Pending. The derived field is only
	// written when it is absent and token still holds the claim.
	RecordFollowUp(ctx context.Context, commandID, token, followUpCommandID, derivedURI string) error

	// ReleaseFollowUp returns a claimed record to Stage1Done.
	ReleaseFollowUp(ctx context.Context, commandID, token string) error
}
