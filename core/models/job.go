package models

import "time"

// JobRecord tracks one orchestrated reconstruction job across its stages.
// It is keyed by the command id the remote executor assigned to stage 1.
type JobRecord struct {
	CommandID        string
	JobType          string
	ModelID          string // Shared by every artifact derived from this job
	StageArtifactURI string // Output of stage 1 (e.g. s3://bucket/generated-3d-assets/<modelId>.glb)
	FollowUpFormat   string // Target format of the follow-up stage, empty when stage 1 is final
	Stage            Stage
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Set once by the status service after the follow-up command is dispatched.
	DerivedArtifactURI string
	FollowUpCommandID  string

	// Claim held while a poller dispatches the follow-up command.
	FollowUpClaim     string
	FollowUpClaimedAt *time.Time
}

// HasFollowUp reports whether a conversion stage is defined for this record.
func (r *JobRecord) HasFollowUp() bool {
	return r.FollowUpFormat != ""
}

// Stage is the persisted position of a job in its stage chain.
type Stage string

const (
	Stage1Pending     Stage = "stage1_pending"
	Stage1Done        Stage = "stage1_done"
	Stage2Dispatching Stage = "stage2_dispatching"
	Stage2Pending     Stage = "stage2_pending"
	Stage2Done        Stage = "stage2_done"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case Stage1Pending, Stage1Done, Stage2Dispatching, Stage2Pending, Stage2Done:
		return true
	}
	return false
}

// CommandStatus is the status of a remote command as reported by the executor.
// Values are passed through verbatim to callers.
type CommandStatus string

const (
	CommandPending    CommandStatus = "Pending"
	CommandInProgress CommandStatus = "InProgress"
	CommandDelayed    CommandStatus = "Delayed"
	CommandSuccess    CommandStatus = "Success"
	CommandCancelled  CommandStatus = "Cancelled"
	CommandCancelling CommandStatus = "Cancelling"
	CommandTimedOut   CommandStatus = "TimedOut"
	CommandFailed     CommandStatus = "Failed"
)

// Terminal reports whether the executor will not move the command any further.
func (s CommandStatus) Terminal() bool {
	switch s {
	case CommandSuccess, CommandCancelled, CommandTimedOut, CommandFailed:
		return true
	}
	return false
}
