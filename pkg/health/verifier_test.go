package health

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/service/elbv2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ecsdeploy/pkg/awsmock"
	"github.com/cuemby/ecsdeploy/pkg/metrics"
	"github.com/cuemby/ecsdeploy/pkg/stack"
	"github.com/cuemby/ecsdeploy/pkg/types"
)

const testTargetGroup = "arn:aws:elasticloadbalancing:us-east-2:123456789012:targetgroup/portyfoul-web/abc"

func testSnapshot(withTargetGroup bool) *stack.Snapshot {
	values := map[string]string{
		"ECSClusterName":    "portyfoul-dev",
		"WebServiceName":    "portyfoul-dev-web",
		"WorkerServiceName": "portyfoul-dev-worker",
	}
	if withTargetGroup {
		values["WebTargetGroupArn"] = testTargetGroup
	}
	return stack.NewSnapshot(stack.DefaultOutputKeys(), values)
}

func TestVerifyCapacityMismatch(t *testing.T) {
	ecsClient := awsmock.NewECS()
	ecsClient.Services["portyfoul-dev-web"] = awsmock.Counts{Running: 2, Desired: 2}
	ecsClient.Services["portyfoul-dev-worker"] = awsmock.Counts{Running: 1, Desired: 2}
	elbClient := awsmock.NewELBv2()
	elbClient.States[testTargetGroup] = []string{"healthy", "healthy"}

	v := NewVerifier(ecsClient, elbClient, testSnapshot(true))

	front := v.Verify(context.Background(), types.ServiceFront)
	assert.True(t, front.Healthy)
	assert.NoError(t, front.Err)

	worker := v.Verify(context.Background(), types.ServiceWorker)
	assert.False(t, worker.Healthy)
	assert.ErrorIs(t, worker.Err, ErrCapacityMismatch)
	assert.Equal(t, int64(1), worker.Tasks.Passing)
	assert.Equal(t, int64(2), worker.Tasks.Total)
}

func TestVerifyChecksLoadBalancerForFrontOnly(t *testing.T) {
	ecsClient := awsmock.NewECS()
	ecsClient.Services["portyfoul-dev-web"] = awsmock.Counts{Running: 1, Desired: 1}
	ecsClient.Services["portyfoul-dev-worker"] = awsmock.Counts{Running: 1, Desired: 1}
	elbClient := awsmock.NewELBv2()
	elbClient.States[testTargetGroup] = []string{"healthy"}

	v := NewVerifier(ecsClient, elbClient, testSnapshot(true))

	worker := v.Verify(context.Background(), types.ServiceWorker)
	assert.Nil(t, worker.Targets)
	assert.Equal(t, 0, elbClient.Calls)

	front := v.Verify(context.Background(), types.ServiceFront)
	require.NotNil(t, front.Targets)
	assert.Equal(t, 1, elbClient.Calls)
}

func TestVerifyPartialTargetHealthIsAdvisory(t *testing.T) {
	ecsClient := awsmock.NewECS()
	ecsClient.Services["portyfoul-dev-web"] = awsmock.Counts{Running: 3, Desired: 3}
	elbClient := awsmock.NewELBv2()
	elbClient.States[testTargetGroup] = []string{
		elbv2.TargetHealthStateEnumHealthy,
		elbv2.TargetHealthStateEnumHealthy,
		elbv2.TargetHealthStateEnumUnhealthy,
	}

	v := NewVerifier(ecsClient, elbClient, testSnapshot(true))
	res := v.Verify(context.Background(), types.ServiceFront)

	assert.True(t, res.Healthy)
	require.NotNil(t, res.Targets)
	assert.False(t, res.Targets.Healthy)
	assert.Equal(t, int64(2), res.Targets.Passing)
	assert.Equal(t, int64(3), res.Targets.Total)
	assert.Equal(t, "2/3 targets healthy", res.Targets.Message)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.TargetsHealthy.WithLabelValues("web")))
}

func TestVerifyLoadBalancerErrorIsAdvisory(t *testing.T) {
	ecsClient := awsmock.NewECS()
	ecsClient.Services["portyfoul-dev-web"] = awsmock.Counts{Running: 1, Desired: 1}
	elbClient := awsmock.NewELBv2()
	elbClient.Err = errors.New("AccessDenied")

	res := NewVerifier(ecsClient, elbClient, testSnapshot(true)).Verify(context.Background(), types.ServiceFront)
	assert.True(t, res.Healthy)
	require.NotNil(t, res.Targets)
	assert.ErrorIs(t, res.Targets.Err, ErrCheckFailed)
}

func TestVerifySkipsLoadBalancerWithoutTargetGroup(t *testing.T) {
	ecsClient := awsmock.NewECS()
	ecsClient.Services["portyfoul-dev-web"] = awsmock.Counts{Running: 1, Desired: 1}
	elbClient := awsmock.NewELBv2()

	res := NewVerifier(ecsClient, elbClient, testSnapshot(false)).Verify(context.Background(), types.ServiceFront)
	assert.True(t, res.Healthy)
	assert.Nil(t, res.Targets)
	assert.Equal(t, 0, elbClient.Calls)
}

func TestVerifyDescribeFailure(t *testing.T) {
	ecsClient := awsmock.NewECS()
	ecsClient.DescribeServicesErr = errors.New("throttled")

	res := NewVerifier(ecsClient, awsmock.NewELBv2(), testSnapshot(true)).Verify(context.Background(), types.ServiceWorker)
	assert.False(t, res.Healthy)
	assert.ErrorIs(t, res.Err, ErrCheckFailed)
}

func TestVerifyMissingService(t *testing.T) {
	ecsClient := awsmock.NewECS()

	res := NewVerifier(ecsClient, awsmock.NewELBv2(), testSnapshot(true)).Verify(context.Background(), types.ServiceWorker)
	assert.False(t, res.Healthy)
	assert.ErrorIs(t, res.Err, ErrCheckFailed)
	assert.Contains(t, res.Err.Error(), "MISSING")
}

func TestVerifyMissingClusterOutput(t *testing.T) {
	snapshot := stack.NewSnapshot(stack.DefaultOutputKeys(), map[string]string{})

	res := NewVerifier(awsmock.NewECS(), awsmock.NewELBv2(), snapshot).Verify(context.Background(), types.ServiceWorker)
	assert.False(t, res.Healthy)
	assert.ErrorIs(t, res.Err, stack.ErrConfigurationMissing)
}

func TestCheckersReportTheirType(t *testing.T) {
	checks := []Checker{
		&TaskCountChecker{Client: awsmock.NewECS()},
		&TargetGroupChecker{Client: awsmock.NewELBv2()},
	}
	assert.Equal(t, CheckTypeTasks, checks[0].Type())
	assert.Equal(t, CheckTypeTargets, checks[1].Type())
}

func TestTargetGroupCheckerEmptyGroup(t *testing.T) {
	checker := &TargetGroupChecker{Client: awsmock.NewELBv2(), TargetGroupARN: testTargetGroup}
	res := checker.Check(context.Background())

	assert.False(t, res.Healthy)
	assert.Equal(t, int64(0), res.Total)
	assert.Equal(t, CheckTypeTargets, checker.Type())
}
