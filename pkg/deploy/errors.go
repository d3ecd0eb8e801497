package deploy

import "errors"

var (
	// ErrServiceUpdateFailed means ECS rejected pointing a service at a new revision
	ErrServiceUpdateFailed = errors.New("service update failed")

	// ErrStabilizationTimeout means a rollout did not settle within the allowed attempts
	ErrStabilizationTimeout = errors.New("service did not stabilize")

	// ErrRollbackFailed means restoring the previous revision was rejected
	ErrRollbackFailed = errors.New("rollback failed")

	// ErrNothingToRollBack means no prior revision was recorded for the service
	ErrNothingToRollBack = errors.New("no previous task definition recorded")
)
