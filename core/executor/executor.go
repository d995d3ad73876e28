package executor

import (
	"context"

	"asset-orchestrator/core/models"
)

// RemoteExecutor runs commands asynchronously on named targets.
// Dispatch never waits for completion; Status reports what the executor
// currently knows about a command on a target.
type RemoteExecutor interface {
	Dispatch(ctx context.Context, cmd models.RemoteCommand) (models.Dispatch, error)
	Status(ctx context.Context, commandID, target string) (models.CommandStatus, error)
}
