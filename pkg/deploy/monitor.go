package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/rs/zerolog"

	"github.com/cuemby/ecsdeploy/pkg/log"
	"github.com/cuemby/ecsdeploy/pkg/metrics"
	"github.com/cuemby/ecsdeploy/pkg/stack"
	"github.com/cuemby/ecsdeploy/pkg/types"
)

// PollInterval is the fixed delay between stabilization checks
const PollInterval = 15 * time.Second

// StabilizationResult is the outcome of waiting on one service rollout
type StabilizationResult struct {
	Service  types.ServiceType
	Outcome  types.Outcome
	Elapsed  time.Duration
	Attempts int
	Err      error
}

// MaxAttempts converts a timeout into a poll count. A timeout shorter than
// one interval still gets a single check.
func MaxAttempts(timeout time.Duration) int {
	attempts := int(timeout / PollInterval)
	if attempts < 1 {
		return 1
	}
	return attempts
}

// Monitor waits for ECS services to reach a steady state
type Monitor struct {
	ecs      ecsiface.ECSAPI
	snapshot *stack.Snapshot
	dryRun   bool
	logger   zerolog.Logger
}

// NewMonitor creates a stabilization monitor
func NewMonitor(client ecsiface.ECSAPI, snapshot *stack.Snapshot, dryRun bool) *Monitor {
	return &Monitor{
		ecs:      client,
		snapshot: snapshot,
		dryRun:   dryRun,
		logger:   log.WithComponent("monitor"),
	}
}

// AwaitStable blocks until st is stable, the attempts derived from timeout
// run out, or ctx is cancelled.
func (m *Monitor) AwaitStable(ctx context.Context, st types.ServiceType, timeout time.Duration) (result StabilizationResult) {
	logger := log.WithService(m.logger, st.String())
	result = StabilizationResult{Service: st, Attempts: MaxAttempts(timeout)}

	if m.dryRun {
		log.DryRun(&logger).Dur("timeout", timeout).Msg("Would wait for service to stabilize")
		result.Outcome = types.OutcomeStabilized
		return result
	}

	timer := metrics.NewTimer()
	defer func() {
		result.Elapsed = timer.Duration()
		timer.ObserveDurationVec(metrics.StabilizationDuration, st.String(), string(result.Outcome))
	}()

	cluster, service, err := m.snapshot.ServiceTarget(st)
	if err != nil {
		result.Outcome = types.OutcomeTimedOut
		result.Err = fmt.Errorf("%w: %w", ErrStabilizationTimeout, err)
		return result
	}

	logger.Info().
		Str("ecs_service", service).
		Int("max_attempts", result.Attempts).
		Dur("interval", PollInterval).
		Msg("Waiting for service to stabilize")

	err = m.ecs.WaitUntilServicesStableWithContext(ctx,
		&ecs.DescribeServicesInput{
			Cluster:  aws.String(cluster),
			Services: aws.StringSlice([]string{service}),
		},
		request.WithWaiterDelay(request.ConstantWaiterDelay(PollInterval)),
		request.WithWaiterMaxAttempts(result.Attempts),
	)
	if err != nil {
		result.Outcome = types.OutcomeTimedOut
		result.Err = fmt.Errorf("%w: %s after %d attempts: %w", ErrStabilizationTimeout, service, result.Attempts, err)
		logger.Error().Err(err).Msg("Service failed to stabilize")
		return result
	}

	result.Outcome = types.OutcomeStabilized
	logger.Info().Dur("elapsed", timer.Duration()).Msg("Service is stable")
	return result
}
