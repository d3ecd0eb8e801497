package revision

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/rs/zerolog"

	"github.com/cuemby/ecsdeploy/pkg/log"
	"github.com/cuemby/ecsdeploy/pkg/metrics"
	"github.com/cuemby/ecsdeploy/pkg/types"
)

// DryRunRevision is the revision number reported for placeholder units
const DryRunRevision = 99

var (
	// ErrContainerNotFound means the task definition has no container named after the service
	ErrContainerNotFound = errors.New("container not found")

	// ErrRegistrationFailed means the current definition could not be read or the new one was rejected
	ErrRegistrationFailed = errors.New("task definition registration failed")
)

// Options configures a Manager
type Options struct {
	Product     string
	Environment string
	Region      string
	DryRun      bool
}

// Manager creates new task definition revisions that differ from the
// current one only by the service container image.
type Manager struct {
	ecs    ecsiface.ECSAPI
	ledger *Ledger
	opts   Options
	logger zerolog.Logger
}

// NewManager creates a revision manager with an empty ledger
func NewManager(client ecsiface.ECSAPI, opts Options) *Manager {
	return &Manager{
		ecs:    client,
		ledger: NewLedger(),
		opts:   opts,
		logger: log.WithComponent("revision"),
	}
}

// Ledger returns the definitions recorded before each replacement
func (m *Manager) Ledger() *Ledger {
	return m.ledger
}

// CreateRevision registers a copy of the active task definition for st with
// the service container pointed at image.
func (m *Manager) CreateRevision(ctx context.Context, st types.ServiceType, image types.ImageReference) (types.DeploymentUnit, error) {
	if err := image.Validate(); err != nil {
		return types.DeploymentUnit{}, err
	}

	family := st.Family(m.opts.Product, m.opts.Environment)
	logger := log.WithService(m.logger, st.String())
	logger.Info().Str("family", family).Msg("Creating new task definition revision")

	out, err := m.ecs.DescribeTaskDefinitionWithContext(ctx, &ecs.DescribeTaskDefinitionInput{
		TaskDefinition: aws.String(family),
		Include:        aws.StringSlice([]string{ecs.TaskDefinitionFieldTags}),
	})
	if err != nil {
		return types.DeploymentUnit{}, fmt.Errorf("%w: describe %s: %w", ErrRegistrationFailed, family, err)
	}
	current := out.TaskDefinition
	if current == nil {
		return types.DeploymentUnit{}, fmt.Errorf("%w: describe %s returned no task definition", ErrRegistrationFailed, family)
	}

	// Recorded before anything else can fail so a rollback target always exists
	m.ledger.Record(st, aws.StringValue(current.TaskDefinitionArn))

	input := registrationInput(current, out.Tags)
	containers, oldImage, err := replaceImage(current.ContainerDefinitions, st.ContainerName(), image.String())
	if err != nil {
		return types.DeploymentUnit{}, fmt.Errorf("%w: %s in %s", err, st.ContainerName(), family)
	}
	input.ContainerDefinitions = containers

	logger.Info().
		Str("container", st.ContainerName()).
		Str("from", oldImage).
		Str("to", image.String()).
		Msg("Updated container image")

	if m.opts.DryRun {
		unit := types.DeploymentUnit{
			ARN:      PlaceholderARN(m.opts.Region, family),
			Family:   family,
			Revision: DryRunRevision,
		}
		log.DryRun(&logger).Str("family", family).Msg("Would register new task definition")
		return unit, nil
	}

	registered, err := m.ecs.RegisterTaskDefinitionWithContext(ctx, input)
	if err != nil {
		return types.DeploymentUnit{}, fmt.Errorf("%w: register %s: %w", ErrRegistrationFailed, family, err)
	}
	if registered.TaskDefinition == nil {
		return types.DeploymentUnit{}, fmt.Errorf("%w: register %s returned no task definition", ErrRegistrationFailed, family)
	}

	unit := types.DeploymentUnit{
		ARN:      aws.StringValue(registered.TaskDefinition.TaskDefinitionArn),
		Family:   aws.StringValue(registered.TaskDefinition.Family),
		Revision: aws.Int64Value(registered.TaskDefinition.Revision),
	}
	metrics.RevisionsRegistered.WithLabelValues(st.String()).Inc()
	logger.Info().Str("unit", unit.Name()).Msg("Registered new task definition")
	return unit, nil
}

// PlaceholderARN is the unit reported in dry-run mode instead of a registered one
func PlaceholderARN(region, family string) string {
	return fmt.Sprintf("arn:aws:ecs:%s:000000000000:task-definition/%s:%d", region, family, DryRunRevision)
}

// registrationInput copies the fields a caller may supply on registration.
// Identity, revision, status, compatibilities, required attributes and
// registration timestamps are assigned by ECS and never sent back.
func registrationInput(td *ecs.TaskDefinition, tags []*ecs.Tag) *ecs.RegisterTaskDefinitionInput {
	input := &ecs.RegisterTaskDefinitionInput{
		Cpu:                     td.Cpu,
		EphemeralStorage:        td.EphemeralStorage,
		ExecutionRoleArn:        td.ExecutionRoleArn,
		Family:                  td.Family,
		InferenceAccelerators:   td.InferenceAccelerators,
		IpcMode:                 td.IpcMode,
		Memory:                  td.Memory,
		NetworkMode:             td.NetworkMode,
		PidMode:                 td.PidMode,
		PlacementConstraints:    td.PlacementConstraints,
		ProxyConfiguration:      td.ProxyConfiguration,
		RequiresCompatibilities: td.RequiresCompatibilities,
		RuntimePlatform:         td.RuntimePlatform,
		TaskRoleArn:             td.TaskRoleArn,
		Volumes:                 td.Volumes,
	}
	if len(tags) > 0 {
		input.Tags = tags
	}
	return input
}

// replaceImage returns a copy of defs with the image of the named container
// replaced. defs itself is left untouched.
func replaceImage(defs []*ecs.ContainerDefinition, container, image string) ([]*ecs.ContainerDefinition, string, error) {
	out := make([]*ecs.ContainerDefinition, len(defs))
	copy(out, defs)

	for i, def := range defs {
		if def == nil || aws.StringValue(def.Name) != container {
			continue
		}
		updated := *def
		updated.Image = aws.String(image)
		out[i] = &updated
		return out, aws.StringValue(def.Image), nil
	}
	return nil, "", ErrContainerNotFound
}
