package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"asset-orchestrator/core/models"
)

// SQLJobRepository stores job records in a relational database.
type SQLJobRepository struct {
	db *DB
}

// NewSQLJobRepository creates a new SQL job repository
func NewSQLJobRepository(db *DB) *SQLJobRepository {
	return &SQLJobRepository{db: db}
}

// CreateRecord inserts a job record
func (r *SQLJobRepository) CreateRecord(ctx context.Context, record *models.JobRecord) error {
	query := `
		INSERT INTO job_records (
			command_id, job_type, model_id, stage_artifact_uri, follow_up_format,
			stage, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (command_id) DO NOTHING
	`

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Stage == "" {
		record.Stage = models.Stage1Pending
	}

	res, err := r.db.ExecContext(ctx, query,
		record.CommandID,
		record.JobType,
		record.ModelID,
		record.StageArtifactURI,
		record.FollowUpFormat,
		record.Stage,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job record %s: %w", record.CommandID, err)
	}
	return expectOneRow(res, ErrConditionFailed)
}

// GetRecord retrieves a job record by command id
func (r *SQLJobRepository) GetRecord(ctx context.Context, commandID string) (*models.JobRecord, error) {
	query := `
		SELECT command_id, job_type, model_id, stage_artifact_uri, follow_up_format,
			stage, derived_artifact_uri, follow_up_command_id, follow_up_claim,
			follow_up_claimed_at, created_at, updated_at
		FROM job_records
		WHERE command_id = $1
	`

	var record models.JobRecord
	var derivedURI sql.NullString
	var followUpCommandID sql.NullString
	var claim sql.NullString
	var claimedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, commandID).Scan(
		&record.CommandID,
		&record.JobType,
		&record.ModelID,
		&record.StageArtifactURI,
		&record.FollowUpFormat,
		&record.Stage,
		&derivedURI,
		&followUpCommandID,
		&claim,
		&claimedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job record %s: %w", commandID, err)
	}
	if !record.Stage.Valid() {
		return nil, fmt.Errorf("job record %s has unknown stage %q", commandID, record.Stage)
	}

	if derivedURI.Valid {
		record.DerivedArtifactURI = derivedURI.String
	}
	if followUpCommandID.Valid {
		record.FollowUpCommandID = followUpCommandID.String
	}
	if claim.Valid {
		record.FollowUpClaim = claim.String
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		record.FollowUpClaimedAt = &t
	}

	return &record, nil
}

// AdvanceStage moves a record between stages if it is still at from
func (r *SQLJobRepository) AdvanceStage(ctx context.Context, commandID string, from, to models.Stage) error {
	query := `UPDATE job_records SET stage = $1, updated_at = $2 WHERE command_id = $3 AND stage = $4`
	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), commandID, from)
	if err != nil {
		return fmt.Errorf("failed to advance job record %s: %w", commandID, err)
	}
	return r.checkConditional(ctx, res, commandID)
}

// ClaimFollowUp claims the follow-up dispatch for token
func (r *SQLJobRepository) ClaimFollowUp(ctx context.Context, commandID, token string, now time.Time, lease time.Duration) error {
	query := `
		UPDATE job_records
		SET stage = $1, follow_up_claim = $2, follow_up_claimed_at = $3, updated_at = $4
		WHERE command_id = $5
			AND derived_artifact_uri IS NULL
			AND (stage = $6 OR (stage = $7 AND follow_up_claimed_at < $8))
	`
	now = now.UTC()
	res, err := r.db.ExecContext(ctx, query,
		models.Stage2Dispatching,
		token,
		now,
		now,
		commandID,
		models.Stage1Done,
		models.Stage2Dispatching,
		now.Add(-lease),
	)
	if err != nil {
		return fmt.Errorf("failed to claim follow-up for %s: %w", commandID, err)
	}
	return r.checkConditional(ctx, res, commandID)
}

// RecordFollowUp stores the follow-up dispatch on a claimed record
func (r *SQLJobRepository) RecordFollowUp(ctx context.Context, commandID, token, followUpCommandID, derivedURI string) error {
	query := `
		UPDATE job_records
		SET stage = $1, derived_artifact_uri = $2, follow_up_command_id = $3, updated_at = $4
		WHERE command_id = $5 AND stage = $6 AND follow_up_claim = $7 AND derived_artifact_uri IS NULL
	`
	res, err := r.db.ExecContext(ctx, query,
		models.Stage2Pending,
		derivedURI,
		followUpCommandID,
		time.Now().UTC(),
		commandID,
		models.Stage2Dispatching,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to record follow-up for %s: %w", commandID, err)
	}
	return r.checkConditional(ctx, res, commandID)
}

// ReleaseFollowUp drops a claim after a failed dispatch
func (r *SQLJobRepository) ReleaseFollowUp(ctx context.Context, commandID, token string) error {
	query := `
		UPDATE job_records
		SET stage = $1, follow_up_claim = NULL, follow_up_claimed_at = NULL, updated_at = $2
		WHERE command_id = $3 AND stage = $4 AND follow_up_claim = $5
	`
	res, err := r.db.ExecContext(ctx, query, models.Stage1Done, time.Now().UTC(), commandID, models.Stage2Dispatching, token)
	if err != nil {
		return fmt.Errorf("failed to release follow-up for %s: %w", commandID, err)
	}
	return r.checkConditional(ctx, res, commandID)
}

// checkConditional maps a zero-row update to ErrNotFound or ErrConditionFailed.
func (r *SQLJobRepository) checkConditional(ctx context.Context, res sql.Result, commandID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM job_records WHERE command_id = $1`, commandID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConditionFailed
}

func expectOneRow(res sql.Result, otherwise error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return otherwise
	}
	return nil
}

var _ JobRepository = (*SQLJobRepository)(nil)
