/*
Package health verifies deployed ECS services once their rollout has stabilized.

Two checkers implement the Checker interface:

	TaskCountChecker    running task count == desired task count (decides the verdict)
	TargetGroupChecker  every registered load balancer target is healthy (advisory)

Verifier combines them per service type. Every service gets the task count
check. The front service is additionally probed through its target group;
a partially healthy or empty target group is logged as a warning and never
changes the verdict. When the stack exposes no target group the probe is
skipped.

# Usage

	v := health.NewVerifier(ecsClient, elbClient, snapshot)
	res := v.Verify(ctx, types.ServiceFront)
	if !res.Healthy {
		// res.Err wraps ErrCapacityMismatch or ErrCheckFailed
	}

Verify only reads, so a dry run performs the same queries as a real run
and fails the same way against a misconfigured environment.
*/
package health
