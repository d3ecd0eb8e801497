package health

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/aws/aws-sdk-go/service/elbv2"
	"github.com/aws/aws-sdk-go/service/elbv2/elbv2iface"
)

var (
	_ Checker = (*TaskCountChecker)(nil)
	_ Checker = (*TargetGroupChecker)(nil)
)

// TaskCountChecker compares the running task count of an ECS service with its desired count
type TaskCountChecker struct {
	Client  ecsiface.ECSAPI
	Cluster string
	Service string
}

// Check performs the task count check
func (c *TaskCountChecker) Check(ctx context.Context) Result {
	start := time.Now()
	result := newResult(start)

	out, err := c.Client.DescribeServicesWithContext(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(c.Cluster),
		Services: aws.StringSlice([]string{c.Service}),
	})
	if err != nil {
		result.Err = fmt.Errorf("%w: describe service %s: %w", ErrCheckFailed, c.Service, err)
		result.Message = result.Err.Error()
		return result.finish(start)
	}
	if len(out.Services) == 0 {
		reason := "not found"
		if len(out.Failures) > 0 {
			reason = aws.StringValue(out.Failures[0].Reason)
		}
		result.Err = fmt.Errorf("%w: service %s: %s", ErrCheckFailed, c.Service, reason)
		result.Message = result.Err.Error()
		return result.finish(start)
	}

	svc := out.Services[0]
	result.Passing = aws.Int64Value(svc.RunningCount)
	result.Total = aws.Int64Value(svc.DesiredCount)

	if result.Passing != result.Total {
		result.Err = fmt.Errorf("%w: running=%d, desired=%d", ErrCapacityMismatch, result.Passing, result.Total)
		result.Message = result.Err.Error()
		return result.finish(start)
	}

	result.Healthy = true
	result.Message = fmt.Sprintf("%d/%d tasks running", result.Passing, result.Total)
	return result.finish(start)
}

// Type returns the health check type
func (c *TaskCountChecker) Type() CheckType {
	return CheckTypeTasks
}

// TargetGroupChecker counts healthy targets in a load balancer target group.
// It is healthy only when every registered target is healthy and at least one exists.
type TargetGroupChecker struct {
	Client         elbv2iface.ELBV2API
	TargetGroupARN string
}

// Check performs the target health check
func (c *TargetGroupChecker) Check(ctx context.Context) Result {
	start := time.Now()
	result := newResult(start)

	out, err := c.Client.DescribeTargetHealthWithContext(ctx, &elbv2.DescribeTargetHealthInput{
		TargetGroupArn: aws.String(c.TargetGroupARN),
	})
	if err != nil {
		result.Err = fmt.Errorf("%w: describe target health: %w", ErrCheckFailed, err)
		result.Message = result.Err.Error()
		return result.finish(start)
	}

	result.Total = int64(len(out.TargetHealthDescriptions))
	for _, desc := range out.TargetHealthDescriptions {
		if desc.TargetHealth != nil && aws.StringValue(desc.TargetHealth.State) == elbv2.TargetHealthStateEnumHealthy {
			result.Passing++
		}
	}

	result.Healthy = result.Total > 0 && result.Passing == result.Total
	result.Message = fmt.Sprintf("%d/%d targets healthy", result.Passing, result.Total)
	return result.finish(start)
}

// Type returns the health check type
func (c *TargetGroupChecker) Type() CheckType {
	return CheckTypeTargets
}
