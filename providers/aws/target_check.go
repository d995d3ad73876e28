package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// EC2API is the subset of the EC2 client used for target checks.
type EC2API interface {
	DescribeInstanceStatus(ctx context.Context, params *ec2.DescribeInstanceStatusInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceStatusOutput, error)
}

// TargetHealth is the observed state of one executor target.
type TargetHealth struct {
	InstanceID string `json:"instanceId"`
	State      string `json:"state"`
	Available  bool   `json:"available"`
}

// TargetChecker verifies that executor targets are running.
type TargetChecker struct {
	client  EC2API
	targets []string
}

// NewTargetChecker creates a checker for the given instance ids.
func NewTargetChecker(client EC2API, targets []string) *TargetChecker {
	return &TargetChecker{client: client, targets: targets}
}

// Check returns one entry per configured target, in configuration order.
// Targets EC2 does not report are marked "not-found".
func (c *TargetChecker) Check(ctx context.Context) ([]TargetHealth, error) {
	if len(c.targets) == 0 {
		return nil, nil
	}

	out, err := c.client.DescribeInstanceStatus(ctx, &ec2.DescribeInstanceStatusInput{
		InstanceIds:         c.targets,
		IncludeAllInstances: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe executor targets: %w", err)
	}

	states := make(map[string]types.InstanceStateName, len(out.InstanceStatuses))
	for _, status := range out.InstanceStatuses {
		if status.InstanceState == nil {
			continue
		}
		states[aws.ToString(status.InstanceId)] = status.InstanceState.Name
	}

	health := make([]TargetHealth, 0, len(c.targets))
	for _, id := range c.targets {
		state, ok := states[id]
		h := TargetHealth{InstanceID: id, State: "not-found"}
		if ok {
			h.State = string(state)
			h.Available = state == types.InstanceStateNameRunning
		}
		health = append(health, h)
	}
	return health, nil
}

// Unavailable filters health down to targets that cannot run commands.
func Unavailable(health []TargetHealth) []TargetHealth {
	var down []TargetHealth
	for _, h := range health {
		if !h.Available {
			down = append(down, h)
		}
	}
	return down
}
