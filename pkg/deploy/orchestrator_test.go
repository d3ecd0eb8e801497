package deploy

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ecsdeploy/pkg/awsmock"
	"github.com/cuemby/ecsdeploy/pkg/health"
	"github.com/cuemby/ecsdeploy/pkg/registry"
	"github.com/cuemby/ecsdeploy/pkg/revision"
	"github.com/cuemby/ecsdeploy/pkg/stack"
	"github.com/cuemby/ecsdeploy/pkg/types"
)

const testRepository = "123456789012.dkr.ecr.us-east-2.amazonaws.com/portyfoul"

type fakePublisher struct {
	calls []string
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, repository, tag string) (types.ImageReference, error) {
	p.calls = append(p.calls, tag)
	if p.err != nil {
		return "", p.err
	}
	return types.NewImageReference(repository, tag), nil
}

type fixture struct {
	cf        *awsmock.CloudFormation
	ecs       *awsmock.ECS
	elb       *awsmock.ELBv2
	publisher *fakePublisher
}

func newFixture() *fixture {
	cf := awsmock.NewCloudFormation(map[string]string{
		"ECRRepositoryUri":  testRepository,
		"ECSClusterName":    "portyfoul-dev",
		"WebServiceName":    "portyfoul-dev-web",
		"WorkerServiceName": "portyfoul-dev-worker",
	})

	ecsClient := awsmock.NewECS()
	ecsClient.AddTaskDefinition("portyfoul-dev-web", 10, map[string]string{"web": testRepository + ":old"})
	ecsClient.AddTaskDefinition("portyfoul-dev-worker", 20, map[string]string{"worker": testRepository + ":old"})
	ecsClient.Services["portyfoul-dev-web"] = awsmock.Counts{Running: 2, Desired: 2}
	ecsClient.Services["portyfoul-dev-worker"] = awsmock.Counts{Running: 3, Desired: 3}

	return &fixture{cf: cf, ecs: ecsClient, elb: awsmock.NewELBv2(), publisher: &fakePublisher{}}
}

func (f *fixture) orchestrator(opts Options) *Orchestrator {
	opts.Product = "portyfoul"
	opts.Environment = "dev"
	opts.Region = awsmock.Region
	if opts.Timeout == 0 {
		opts.Timeout = 600 * time.Second
	}
	resolver := stack.NewResolver(f.cf, "portyfoul-infra", stack.DefaultOutputKeys())
	return NewOrchestrator(resolver, Clients{ECS: f.ecs, ELBv2: f.elb}, f.publisher, opts).
		WithTagSource(func(context.Context) (string, error) { return "abc12345", nil })
}

func TestRunDryRunMakesNoMutatingCalls(t *testing.T) {
	f := newFixture()

	report, err := f.orchestrator(Options{DryRun: true}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.RunSuccess, report.Result)
	assert.Equal(t, 0, report.ExitCode())
	assert.Equal(t, 0, f.ecs.MutatingCalls())
	assert.Empty(t, f.ecs.WaitCalls)
	// Health reads still run against the live services
	assert.Equal(t, 2, f.ecs.DescribeServicesCalls)
	assert.Equal(t, 1, f.cf.Calls)

	require.Len(t, report.Units, 2)
	assert.Equal(t, revision.PlaceholderARN(awsmock.Region, "portyfoul-dev-web"), report.Units[0].ARN)
	assert.Equal(t, PhaseSummarize, report.Phase)
}

func TestRunDryRunFailsOnMissingService(t *testing.T) {
	for _, dryRun := range []bool{true, false} {
		f := newFixture()
		delete(f.ecs.Services, "portyfoul-dev-worker")

		report, err := f.orchestrator(Options{DryRun: dryRun}).Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, types.RunPartialFailure, report.Result, "dry run %v", dryRun)
		assert.Equal(t, 1, report.ExitCode())
		assert.ErrorIs(t, report.HealthErrors, health.ErrCheckFailed)
	}
}

func TestRunDeploysBothServices(t *testing.T) {
	f := newFixture()

	report, err := f.orchestrator(Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.RunSuccess, report.Result)
	assert.Equal(t, types.ImageReference(testRepository+":abc12345"), report.Image)
	assert.Equal(t, []string{"abc12345"}, f.publisher.calls)

	require.Len(t, f.ecs.Updates, 2)
	assert.Equal(t, "portyfoul-dev-web", aws.StringValue(f.ecs.Updates[0].Service))
	assert.Equal(t, awsmock.TaskDefinitionARN("portyfoul-dev-web", 11), aws.StringValue(f.ecs.Updates[0].TaskDefinition))
	assert.True(t, aws.BoolValue(f.ecs.Updates[0].ForceNewDeployment))
	assert.Equal(t, "portyfoul-dev-worker", aws.StringValue(f.ecs.Updates[1].Service))

	require.Len(t, f.ecs.WaitCalls, 2)
	assert.Equal(t, 40, f.ecs.WaitCalls[0].MaxAttempts)
	assert.Equal(t, PollInterval, f.ecs.WaitCalls[0].Delay)

	for _, st := range types.AllServiceTypes() {
		outcome, ok := report.Outcome(st)
		require.True(t, ok)
		assert.Equal(t, types.OutcomeStabilized, outcome.Outcome)
	}
}

func TestRunStabilizationTimeoutRollsBack(t *testing.T) {
	f := newFixture()
	f.ecs.StableErr = map[string]error{
		"portyfoul-dev-web": errors.New("ResourceNotReady: exceeded wait attempts"),
	}

	report, err := f.orchestrator(Options{
		Services: []types.ServiceType{types.ServiceFront},
		Timeout:  30 * time.Second,
	}).Run(context.Background())

	require.ErrorIs(t, err, ErrStabilizationTimeout)
	assert.ErrorIs(t, report.Err, ErrStabilizationTimeout)
	assert.Equal(t, 1, report.ExitCode())
	assert.Equal(t, PhaseMonitorStabilization, report.Phase)

	require.Len(t, f.ecs.WaitCalls, 1)
	assert.Equal(t, 2, f.ecs.WaitCalls[0].MaxAttempts)

	// The deploy update followed by the rollback update
	require.Len(t, f.ecs.Updates, 2)
	rollback := f.ecs.Updates[1]
	assert.Equal(t, awsmock.TaskDefinitionARN("portyfoul-dev-web", 10), aws.StringValue(rollback.TaskDefinition))
	assert.True(t, aws.BoolValue(rollback.ForceNewDeployment))

	require.NotNil(t, report.Rollback)
	assert.True(t, report.Rollback.Succeeded())
	assert.Equal(t, types.ServiceFront, report.Rollback.Service)

	outcome, ok := report.Outcome(types.ServiceFront)
	require.True(t, ok)
	assert.Equal(t, types.OutcomeTimedOut, outcome.Outcome)

	// Health verification never ran
	assert.Zero(t, f.ecs.DescribeServicesCalls)
}

func TestRunStopsAtFirstTimeout(t *testing.T) {
	f := newFixture()
	f.ecs.StableErr = map[string]error{
		"portyfoul-dev-web": errors.New("ResourceNotReady: exceeded wait attempts"),
	}

	_, err := f.orchestrator(Options{}).Run(context.Background())
	require.ErrorIs(t, err, ErrStabilizationTimeout)

	require.Len(t, f.ecs.WaitCalls, 1)
	// Two deploy updates and one rollback of the front service only
	require.Len(t, f.ecs.Updates, 3)
	assert.Equal(t, "portyfoul-dev-web", aws.StringValue(f.ecs.Updates[2].Service))
}

func TestRunRollbackSurvivesCancellation(t *testing.T) {
	f := newFixture()
	f.ecs.StableErr = map[string]error{
		"portyfoul-dev-web": context.Canceled,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.orchestrator(Options{Services: []types.ServiceType{types.ServiceFront}}).Run(ctx)
	require.ErrorIs(t, err, ErrStabilizationTimeout)

	require.Len(t, f.ecs.UpdateCtxErrs, 2)
	assert.NoError(t, f.ecs.UpdateCtxErrs[1], "rollback must not inherit the cancelled context")
	require.NotNil(t, report.Rollback)
	assert.True(t, report.Rollback.Succeeded())
}

func TestRunRollbackFailureDoesNotMaskTimeout(t *testing.T) {
	f := newFixture()
	f.ecs.StableErr = map[string]error{
		"portyfoul-dev-web": errors.New("ResourceNotReady: exceeded wait attempts"),
	}
	f.ecs.UpdateServiceFn = func(in *ecs.UpdateServiceInput) error {
		if aws.StringValue(in.TaskDefinition) == awsmock.TaskDefinitionARN("portyfoul-dev-web", 10) {
			return errors.New("AccessDenied")
		}
		return nil
	}

	report, err := f.orchestrator(Options{Services: []types.ServiceType{types.ServiceFront}}).Run(context.Background())

	require.ErrorIs(t, err, ErrStabilizationTimeout)
	assert.NotErrorIs(t, err, ErrRollbackFailed)
	require.NotNil(t, report.Rollback)
	assert.ErrorIs(t, report.Rollback.Err, ErrRollbackFailed)
	assert.Equal(t, 1, report.ExitCode())
}

func TestRunHealthDegradedIsPartialFailure(t *testing.T) {
	f := newFixture()
	f.ecs.Services["portyfoul-dev-worker"] = awsmock.Counts{Running: 2, Desired: 3}

	report, err := f.orchestrator(Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.RunPartialFailure, report.Result)
	assert.Equal(t, 1, report.ExitCode())
	require.NotNil(t, report.HealthErrors)
	assert.Len(t, report.HealthErrors.Errors, 1)
	assert.ErrorIs(t, report.HealthErrors, health.ErrCapacityMismatch)

	worker, ok := report.Outcome(types.ServiceWorker)
	require.True(t, ok)
	assert.Equal(t, types.OutcomeHealthDegraded, worker.Outcome)

	front, ok := report.Outcome(types.ServiceFront)
	require.True(t, ok)
	assert.Equal(t, types.OutcomeStabilized, front.Outcome)

	// No rollback on health failures
	assert.Nil(t, report.Rollback)
	assert.Len(t, f.ecs.Updates, 2)
}

func TestRunBuildOnly(t *testing.T) {
	f := newFixture()

	report, err := f.orchestrator(Options{BuildOnly: true, Tag: "v1.2.3"}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.RunSuccess, report.Result)
	assert.Equal(t, []string{"v1.2.3"}, f.publisher.calls)
	assert.Equal(t, PhasePublishImage, report.Phase)
	assert.Equal(t, 0, f.ecs.MutatingCalls())
	assert.Empty(t, report.Units)
}

func TestRunUpdateServicesUsesLatestImage(t *testing.T) {
	f := newFixture()

	report, err := f.orchestrator(Options{
		UpdateServicesOnly: true,
		Services:           []types.ServiceType{types.ServiceWorker},
	}).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.publisher.calls)
	assert.Equal(t, types.ImageReference(testRepository+":latest"), report.Image)

	require.Len(t, f.ecs.Registered, 1)
	assert.Equal(t, testRepository+":latest", aws.StringValue(f.ecs.Registered[0].ContainerDefinitions[0].Image))
}

func TestRunPublishFailureAborts(t *testing.T) {
	f := newFixture()
	f.publisher.err = registry.ErrImagePublishFailed

	report, err := f.orchestrator(Options{}).Run(context.Background())
	require.ErrorIs(t, err, registry.ErrImagePublishFailed)
	assert.Equal(t, PhasePublishImage, report.Phase)
	assert.Equal(t, 0, f.ecs.MutatingCalls())
	assert.Equal(t, 1, report.ExitCode())
}

func TestRunTagSourceFailureAborts(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(Options{}).WithTagSource(func(context.Context) (string, error) {
		return "", errors.New("not a git repository")
	})

	_, err := o.Run(context.Background())
	require.ErrorIs(t, err, registry.ErrImagePublishFailed)
	assert.Empty(t, f.publisher.calls)
}

func TestRunConfigurationUnavailable(t *testing.T) {
	f := newFixture()
	f.cf.Status = "UPDATE_IN_PROGRESS"

	report, err := f.orchestrator(Options{}).Run(context.Background())
	require.ErrorIs(t, err, stack.ErrConfigurationUnavailable)
	assert.Equal(t, PhaseInit, report.Phase)
	assert.Equal(t, 1, report.ExitCode())
}

func TestRunRevisionFailureAborts(t *testing.T) {
	f := newFixture()
	f.ecs.RegisterErr = errors.New("ClientException")

	report, err := f.orchestrator(Options{}).Run(context.Background())
	require.ErrorIs(t, err, revision.ErrRegistrationFailed)
	assert.Equal(t, PhaseReviseAndUpdate, report.Phase)
	assert.Empty(t, f.ecs.Updates)
	assert.Empty(t, f.ecs.WaitCalls)
}

func TestRunServiceUpdateFailureAborts(t *testing.T) {
	f := newFixture()
	f.ecs.UpdateServiceFn = func(*ecs.UpdateServiceInput) error {
		return errors.New("ServiceNotActiveException")
	}

	report, err := f.orchestrator(Options{}).Run(context.Background())
	require.ErrorIs(t, err, ErrServiceUpdateFailed)
	assert.Equal(t, PhaseReviseAndUpdate, report.Phase)
	// Worker never revised once front failed to update
	assert.Len(t, f.ecs.Registered, 1)
	assert.Nil(t, report.Rollback)
}

func TestWriteSummary(t *testing.T) {
	color.NoColor = true
	f := newFixture()
	f.ecs.Services["portyfoul-dev-worker"] = awsmock.Counts{Running: 2, Desired: 3}

	report, err := f.orchestrator(Options{}).Run(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	report.WriteSummary(&buf)
	out := buf.String()

	assert.Contains(t, out, report.RunID)
	assert.Contains(t, out, testRepository+":abc12345")
	assert.Contains(t, out, "portyfoul-dev-web:11")
	assert.Contains(t, out, "health-degraded")
	assert.Contains(t, out, "Deployment completed with failures")
}
