package aws

import (
	"context"
	"errors"
	"fmt"

	"asset-orchestrator/core/executor"
	"asset-orchestrator/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSM rejects comments longer than this.
const maxCommentLength = 100

// SSMAPI is the subset of the SSM client used by SSMExecutor.
type SSMAPI interface {
	SendCommand(ctx context.Context, params *ssm.SendCommandInput, optFns ...func(*ssm.Options)) (*ssm.SendCommandOutput, error)
	GetCommandInvocation(ctx context.Context, params *ssm.GetCommandInvocationInput, optFns ...func(*ssm.Options)) (*ssm.GetCommandInvocationOutput, error)
}

// SSMExecutor runs remote commands on managed instances through Run Command.
type SSMExecutor struct {
	client SSMAPI
}

var _ executor.RemoteExecutor = (*SSMExecutor)(nil)

// NewSSMExecutor creates a new SSM executor
func NewSSMExecutor(client SSMAPI) *SSMExecutor {
	return &SSMExecutor{client: client}
}

// Dispatch sends cmd to its target instance and returns the assigned command id.
func (e *SSMExecutor) Dispatch(ctx context.Context, cmd models.RemoteCommand) (models.Dispatch, error) {
	document := cmd.Document
	if document == "" {
		document = executor.DefaultDocument
	}

	input := &ssm.SendCommandInput{
		InstanceIds:  []string{cmd.Target},
		DocumentName: aws.String(document),
		Parameters: map[string][]string{
			"commands": cmd.Commands,
		},
	}
	if cmd.Comment != "" {
		comment := cmd.Comment
		if len(comment) > maxCommentLength {
			comment = comment[:maxCommentLength]
		}
		input.Comment = aws.String(comment)
	}

	out, err := e.client.SendCommand(ctx, input)
	if err != nil {
		return models.Dispatch{}, fmt.Errorf("failed to send command to %s: %w", cmd.Target, err)
	}
	if out.Command == nil || aws.ToString(out.Command.CommandId) == "" {
		return models.Dispatch{}, fmt.Errorf("send command to %s: response has no command id", cmd.Target)
	}

	return models.Dispatch{
		CommandID: aws.ToString(out.Command.CommandId),
		Target:    cmd.Target,
	}, nil
}

// Status returns the invocation status of commandID on target. An invocation
// that is not registered yet is reported as Pending.
func (e *SSMExecutor) Status(ctx context.Context, commandID, target string) (models.CommandStatus, error) {
	out, err := e.client.GetCommandInvocation(ctx, &ssm.GetCommandInvocationInput{
		CommandId:  aws.String(commandID),
		InstanceId: aws.String(target),
	})
	if err != nil {
		var missing *types.InvocationDoesNotExist
		if errors.As(err, &missing) {
			return models.CommandPending, nil
		}
		return "", fmt.Errorf("failed to get command invocation %s: %w", commandID, err)
	}
	return models.CommandStatus(out.Status), nil
}
