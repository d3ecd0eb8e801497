package stack

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudformation"
	"github.com/aws/aws-sdk-go/service/cloudformation/cloudformationiface"
	"github.com/rs/zerolog"

	"github.com/cuemby/ecsdeploy/pkg/log"
)

// Resolver reads the outputs of a CloudFormation stack once per run
type Resolver struct {
	client    cloudformationiface.CloudFormationAPI
	stackName string
	keys      OutputKeys
	logger    zerolog.Logger

	mu       sync.Mutex
	snapshot *Snapshot
}

// NewResolver creates a resolver for stackName
func NewResolver(client cloudformationiface.CloudFormationAPI, stackName string, keys OutputKeys) *Resolver {
	return &Resolver{
		client:    client,
		stackName: stackName,
		keys:      keys.WithDefaults(),
		logger:    log.WithComponent("stack"),
	}
}

// Resolve returns the stack outputs. The first successful result is
// memoized; later calls return it without querying CloudFormation again.
func (r *Resolver) Resolve(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshot != nil {
		return r.snapshot, nil
	}

	r.logger.Info().Str("stack", r.stackName).Msg("Querying CloudFormation stack")

	out, err := r.client.DescribeStacksWithContext(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(r.stackName),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query stack %s: %w", ErrConfigurationUnavailable, r.stackName, err)
	}
	if len(out.Stacks) == 0 {
		return nil, fmt.Errorf("%w: stack %s not found", ErrConfigurationUnavailable, r.stackName)
	}

	stack := out.Stacks[0]
	status := aws.StringValue(stack.StackStatus)
	if !ready(status) {
		return nil, fmt.Errorf("%w: stack %s is in %s state, expected %s or %s",
			ErrConfigurationUnavailable, r.stackName, status,
			cloudformation.StackStatusCreateComplete, cloudformation.StackStatusUpdateComplete)
	}

	values := make(map[string]string, len(stack.Outputs))
	for _, o := range stack.Outputs {
		values[aws.StringValue(o.OutputKey)] = aws.StringValue(o.OutputValue)
	}

	r.snapshot = NewSnapshot(r.keys, values)
	r.logger.Info().Int("outputs", r.snapshot.Len()).Msg("Retrieved stack outputs")
	return r.snapshot, nil
}

func ready(status string) bool {
	switch status {
	case cloudformation.StackStatusCreateComplete, cloudformation.StackStatusUpdateComplete:
		return true
	default:
		return false
	}
}
