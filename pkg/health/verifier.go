package health

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/aws/aws-sdk-go/service/elbv2/elbv2iface"
	"github.com/rs/zerolog"

	"github.com/cuemby/ecsdeploy/pkg/log"
	"github.com/cuemby/ecsdeploy/pkg/metrics"
	"github.com/cuemby/ecsdeploy/pkg/stack"
	"github.com/cuemby/ecsdeploy/pkg/types"
)

// Verification is the post-deployment health of one service
type Verification struct {
	Service types.ServiceType
	Healthy bool
	Err     error

	Tasks Result
	// Targets is nil when the load balancer was not probed
	Targets *Result
}

// Verifier checks deployed services after they stabilize.
// Only the task count decides the verdict; target health is advisory.
// Every check is a read, so dry runs verify exactly like real runs.
type Verifier struct {
	ecs      ecsiface.ECSAPI
	elb      elbv2iface.ELBV2API
	snapshot *stack.Snapshot
	logger   zerolog.Logger
}

// NewVerifier creates a health verifier bound to a resolved stack snapshot
func NewVerifier(ecsClient ecsiface.ECSAPI, elbClient elbv2iface.ELBV2API, snapshot *stack.Snapshot) *Verifier {
	return &Verifier{
		ecs:      ecsClient,
		elb:      elbClient,
		snapshot: snapshot,
		logger:   log.WithComponent("health"),
	}
}

// Verify checks that st runs its desired task count. The front service also
// gets a load balancer probe whose outcome is only logged.
func (v *Verifier) Verify(ctx context.Context, st types.ServiceType) Verification {
	logger := log.WithService(v.logger, st.String())
	result := Verification{Service: st}

	cluster, service, err := v.snapshot.ServiceTarget(st)
	if err != nil {
		result.Err = err
		result.Tasks = Result{Message: err.Error(), CheckedAt: time.Now(), Err: err}
		logger.Error().Err(err).Msg("Health verification failed")
		v.record(st, false)
		return result
	}

	result.Tasks = v.run(ctx, logger, &TaskCountChecker{Client: v.ecs, Cluster: cluster, Service: service})
	result.Healthy = result.Tasks.Healthy
	result.Err = result.Tasks.Err

	if result.Healthy {
		logger.Info().
			Int64("running", result.Tasks.Passing).
			Int64("desired", result.Tasks.Total).
			Msg("Task count healthy")
	} else {
		logger.Error().Err(result.Err).Msg("Health verification failed")
	}

	if st == types.ServiceFront {
		result.Targets = v.probeTargets(ctx, logger, st)
	}

	v.record(st, result.Healthy)
	return result
}

func (v *Verifier) run(ctx context.Context, logger zerolog.Logger, c Checker) Result {
	res := c.Check(ctx)
	logger.Debug().
		Str("check", string(c.Type())).
		Dur("duration", res.Duration).
		Bool("healthy", res.Healthy).
		Msg(res.Message)
	return res
}

func (v *Verifier) probeTargets(ctx context.Context, logger zerolog.Logger, st types.ServiceType) *Result {
	arn, err := v.snapshot.TargetGroupARN()
	if err != nil {
		logger.Warn().Err(err).Msg("No target group configured, skipping load balancer check")
		return nil
	}

	targets := v.run(ctx, logger, &TargetGroupChecker{Client: v.elb, TargetGroupARN: arn})

	switch {
	case targets.Err != nil:
		logger.Warn().Err(targets.Err).Msg("Load balancer health check failed")
	case !targets.Healthy:
		logger.Warn().
			Int64("healthy", targets.Passing).
			Int64("total", targets.Total).
			Msg("Not all load balancer targets are healthy")
	default:
		logger.Info().
			Int64("healthy", targets.Passing).
			Int64("total", targets.Total).
			Msg("Load balancer targets healthy")
	}
	metrics.TargetsHealthy.WithLabelValues(st.String()).Set(float64(targets.Passing))
	return &targets
}

func (v *Verifier) record(st types.ServiceType, healthy bool) {
	outcome := "healthy"
	if !healthy {
		outcome = "unhealthy"
	}
	metrics.HealthChecksTotal.WithLabelValues(st.String(), outcome).Inc()
}
