package deploy

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/rs/zerolog"

	"github.com/cuemby/ecsdeploy/pkg/log"
	"github.com/cuemby/ecsdeploy/pkg/stack"
	"github.com/cuemby/ecsdeploy/pkg/types"
)

// Updater points live ECS services at a task definition revision
type Updater struct {
	ecs      ecsiface.ECSAPI
	snapshot *stack.Snapshot
	dryRun   bool
	logger   zerolog.Logger
}

// NewUpdater creates a service updater
func NewUpdater(client ecsiface.ECSAPI, snapshot *stack.Snapshot, dryRun bool) *Updater {
	return &Updater{
		ecs:      client,
		snapshot: snapshot,
		dryRun:   dryRun,
		logger:   log.WithComponent("updater"),
	}
}

// Update switches st to unitARN and forces a new deployment so tasks are
// replaced even when the definition content is unchanged.
func (u *Updater) Update(ctx context.Context, st types.ServiceType, unitARN string) error {
	cluster, service, err := u.snapshot.ServiceTarget(st)
	if err != nil {
		return err
	}
	return u.pointAt(ctx, st, cluster, service, unitARN)
}

func (u *Updater) pointAt(ctx context.Context, st types.ServiceType, cluster, service, unitARN string) error {
	logger := log.WithService(u.logger, st.String())

	if u.dryRun {
		log.DryRun(&logger).
			Str("cluster", cluster).
			Str("ecs_service", service).
			Str("task_definition", unitARN).
			Msg("Would update service")
		return nil
	}

	logger.Info().
		Str("ecs_service", service).
		Str("task_definition", unitARN).
		Msg("Updating service")

	_, err := u.ecs.UpdateServiceWithContext(ctx, &ecs.UpdateServiceInput{
		Cluster:            aws.String(cluster),
		Service:            aws.String(service),
		TaskDefinition:     aws.String(unitARN),
		ForceNewDeployment: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrServiceUpdateFailed, service, err)
	}

	logger.Info().Str("ecs_service", service).Msg("Service update initiated")
	return nil
}
