package deploy

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/rs/zerolog"

	"github.com/cuemby/ecsdeploy/pkg/log"
	"github.com/cuemby/ecsdeploy/pkg/metrics"
	"github.com/cuemby/ecsdeploy/pkg/stack"
	"github.com/cuemby/ecsdeploy/pkg/types"
)

// PreviousRevisions looks up the definition a service ran before this run
type PreviousRevisions interface {
	Previous(st types.ServiceType) (string, bool)
}

// RollbackResult describes a rollback attempt. Err is nil on success.
type RollbackResult struct {
	Service    types.ServiceType
	RestoredTo string
	Err        error
}

// Succeeded reports whether the previous revision was restored
func (r RollbackResult) Succeeded() bool {
	return r.Err == nil
}

// Rollbacker restores a service to the revision recorded before the run
type Rollbacker struct {
	updater  *Updater
	previous PreviousRevisions
	logger   zerolog.Logger
}

// NewRollbacker creates a rollbacker that reads prior revisions from previous
func NewRollbacker(client ecsiface.ECSAPI, snapshot *stack.Snapshot, previous PreviousRevisions, dryRun bool) *Rollbacker {
	return &Rollbacker{
		updater:  NewUpdater(client, snapshot, dryRun),
		previous: previous,
		logger:   log.WithComponent("rollback"),
	}
}

// Rollback points st back at its recorded prior revision. Failures are
// logged and reported in the result, never returned.
func (r *Rollbacker) Rollback(ctx context.Context, st types.ServiceType) RollbackResult {
	logger := log.WithService(r.logger, st.String())
	result := RollbackResult{Service: st}

	prev, ok := r.previous.Previous(st)
	if !ok {
		result.Err = fmt.Errorf("%w: %s", ErrNothingToRollBack, st)
		logger.Error().Err(result.Err).Msg("Cannot roll back")
		metrics.RollbacksTotal.WithLabelValues(st.String(), "skipped").Inc()
		return result
	}

	logger.Warn().Str("task_definition", prev).Msg("Rolling back service")

	if err := r.updater.Update(ctx, st, prev); err != nil {
		result.Err = fmt.Errorf("%w: %w", ErrRollbackFailed, err)
		logger.Error().Err(result.Err).Msg("Rollback failed")
		metrics.RollbacksTotal.WithLabelValues(st.String(), "failed").Inc()
		return result
	}

	result.RestoredTo = prev
	logger.Info().Str("task_definition", prev).Msg("Rollback initiated")
	metrics.RollbacksTotal.WithLabelValues(st.String(), "succeeded").Inc()
	return result
}
