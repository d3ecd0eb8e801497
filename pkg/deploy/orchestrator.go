package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/aws/aws-sdk-go/service/elbv2/elbv2iface"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/cuemby/ecsdeploy/pkg/health"
	"github.com/cuemby/ecsdeploy/pkg/log"
	"github.com/cuemby/ecsdeploy/pkg/metrics"
	"github.com/cuemby/ecsdeploy/pkg/registry"
	"github.com/cuemby/ecsdeploy/pkg/revision"
	"github.com/cuemby/ecsdeploy/pkg/stack"
	"github.com/cuemby/ecsdeploy/pkg/types"
)

// SnapshotSource resolves the stack configuration of the run
type SnapshotSource interface {
	Resolve(ctx context.Context) (*stack.Snapshot, error)
}

// ImagePublisher builds and pushes the product image
type ImagePublisher interface {
	Publish(ctx context.Context, repository, tag string) (types.ImageReference, error)
}

// TagSource yields the image tag used when none is given
type TagSource func(ctx context.Context) (string, error)

// Options controls a single orchestration run
type Options struct {
	Services           []types.ServiceType
	Tag                string
	Timeout            time.Duration
	BuildOnly          bool
	UpdateServicesOnly bool
	DryRun             bool

	Product     string
	Environment string
	Region      string
}

// Clients are the AWS APIs used after the stack is resolved
type Clients struct {
	ECS   ecsiface.ECSAPI
	ELBv2 elbv2iface.ELBV2API
}

// Orchestrator runs the deployment state machine
type Orchestrator struct {
	source    SnapshotSource
	clients   Clients
	publisher ImagePublisher
	tagSource TagSource
	opts      Options
	runID     string
	logger    zerolog.Logger

	snapshot   *stack.Snapshot
	revisions  *revision.Manager
	updater    *Updater
	monitor    *Monitor
	rollbacker *Rollbacker
	verifier   *health.Verifier
}

// NewOrchestrator creates an orchestrator. The image tag defaults to the
// short git revision of the working directory.
func NewOrchestrator(source SnapshotSource, clients Clients, publisher ImagePublisher, opts Options) *Orchestrator {
	if len(opts.Services) == 0 {
		opts.Services = types.AllServiceTypes()
	}
	runID := uuid.New().String()
	return &Orchestrator{
		source:    source,
		clients:   clients,
		publisher: publisher,
		tagSource: func(ctx context.Context) (string, error) {
			return registry.GitRevision(ctx, ".")
		},
		opts:   opts,
		runID:  runID,
		logger: log.WithRunID(runID).With().Str("component", "orchestrator").Logger(),
	}
}

// WithTagSource replaces the default git tag source
func (o *Orchestrator) WithTagSource(fn TagSource) *Orchestrator {
	o.tagSource = fn
	return o
}

// Run executes the deployment. The returned report is never nil; the error
// is the fatal error that aborted the run, also stored in the report.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := newReport(o.runID, o.opts)
	defer func() {
		report.finish()
		metrics.RunsTotal.WithLabelValues(string(report.Result)).Inc()
		o.logger.Info().
			Str("result", string(report.Result)).
			Dur("duration", report.Duration).
			Msg("Deployment run finished")
	}()

	if o.opts.DryRun {
		log.DryRun(&o.logger).Msg("Dry run mode, no changes will be made")
	}
	o.logger.Info().
		Strs("services", serviceNames(o.opts.Services)).
		Dur("timeout", o.opts.Timeout).
		Msg("Starting deployment")

	imagePhase, imageStep := PhasePublishImage, o.publishImage
	if o.opts.UpdateServicesOnly {
		imagePhase, imageStep = PhaseSkipPublish, o.latestImage
	}

	steps := []struct {
		phase Phase
		run   func(context.Context, *Report) error
	}{
		{PhaseInit, o.initialize},
		{imagePhase, imageStep},
		{PhaseReviseAndUpdate, o.reviseAndUpdate},
		{PhaseMonitorStabilization, o.awaitStabilization},
		{PhaseVerifyHealth, o.verifyHealth},
	}
	for _, step := range steps {
		if err := o.phase(ctx, report, step.phase, step.run); err != nil {
			report.Err = err
			return report, err
		}
		if step.phase == PhasePublishImage && o.opts.BuildOnly {
			o.logger.Info().Msg("Build-only mode, skipping service updates")
			return report, nil
		}
	}

	report.Phase = PhaseSummarize
	return report, nil
}

func (o *Orchestrator) phase(ctx context.Context, report *Report, phase Phase, run func(context.Context, *Report) error) error {
	report.Phase = phase
	o.logger.Info().Str("phase", string(phase)).Msg("Entering phase")

	timer := metrics.NewTimer()
	err := run(ctx, report)
	timer.ObserveDurationVec(metrics.PhaseDuration, string(phase))

	if err != nil {
		o.logger.Error().Err(err).Str("phase", string(phase)).Msg("Phase failed")
	}
	return err
}

// initialize resolves the stack once and binds every component to the snapshot
func (o *Orchestrator) initialize(ctx context.Context, _ *Report) error {
	snapshot, err := o.source.Resolve(ctx)
	if err != nil {
		return err
	}

	o.revisions = revision.NewManager(o.clients.ECS, revision.Options{
		Product:     o.opts.Product,
		Environment: o.opts.Environment,
		Region:      o.opts.Region,
		DryRun:      o.opts.DryRun,
	})
	o.updater = NewUpdater(o.clients.ECS, snapshot, o.opts.DryRun)
	o.monitor = NewMonitor(o.clients.ECS, snapshot, o.opts.DryRun)
	o.rollbacker = NewRollbacker(o.clients.ECS, snapshot, o.revisions.Ledger(), o.opts.DryRun)
	o.verifier = health.NewVerifier(o.clients.ECS, o.clients.ELBv2, snapshot)
	o.snapshot = snapshot
	return nil
}

func (o *Orchestrator) publishImage(ctx context.Context, report *Report) error {
	repository, err := o.snapshot.RegistryURI()
	if err != nil {
		return err
	}

	tag := o.opts.Tag
	if tag == "" {
		tag, err = o.tagSource(ctx)
		if err != nil {
			return fmt.Errorf("%w: resolve tag: %w", registry.ErrImagePublishFailed, err)
		}
		o.logger.Info().Str("tag", tag).Msg("Using git revision as image tag")
	}

	image, err := o.publisher.Publish(ctx, repository, tag)
	if err != nil {
		return err
	}
	report.Image = image
	return nil
}

// latestImage addresses an already pushed image without building
func (o *Orchestrator) latestImage(_ context.Context, report *Report) error {
	repository, err := o.snapshot.RegistryURI()
	if err != nil {
		return err
	}
	tag := o.opts.Tag
	if tag == "" {
		tag = registry.LatestTag
	}
	report.Image = types.NewImageReference(repository, tag)
	o.logger.Info().Str("image", report.Image.String()).Msg("Skipping image build, using existing image")
	return nil
}

func (o *Orchestrator) reviseAndUpdate(ctx context.Context, report *Report) error {
	for _, st := range o.opts.Services {
		unit, err := o.revisions.CreateRevision(ctx, st, report.Image)
		if err != nil {
			return err
		}
		report.Units = append(report.Units, unit)

		if err := o.updater.Update(ctx, st, unit.ARN); err != nil {
			return err
		}
	}
	return nil
}

// awaitStabilization stops at the first service that times out and rolls
// back that service only. Services updated before it are left as they are.
func (o *Orchestrator) awaitStabilization(ctx context.Context, report *Report) error {
	for _, st := range o.opts.Services {
		res := o.monitor.AwaitStable(ctx, st, o.opts.Timeout)
		outcome := types.ServiceOutcome{Service: st, Outcome: res.Outcome, Elapsed: res.Elapsed}
		if res.Err != nil {
			outcome.Message = res.Err.Error()
		}
		report.setOutcome(outcome)

		if res.Outcome == types.OutcomeTimedOut {
			// An interrupted run still restores the service
			rb := o.rollbacker.Rollback(context.WithoutCancel(ctx), st)
			report.Rollback = &rb
			return res.Err
		}
	}
	return nil
}

// verifyHealth checks every service and collects failures without aborting
func (o *Orchestrator) verifyHealth(ctx context.Context, report *Report) error {
	for _, st := range o.opts.Services {
		res := o.verifier.Verify(ctx, st)
		if res.Healthy {
			continue
		}
		report.HealthErrors = multierror.Append(report.HealthErrors, fmt.Errorf("%s: %w", st, res.Err))

		outcome, _ := report.Outcome(st)
		outcome.Service = st
		outcome.Outcome = types.OutcomeHealthDegraded
		if res.Err != nil {
			outcome.Message = res.Err.Error()
		}
		report.setOutcome(outcome)
	}
	return nil
}

func serviceNames(services []types.ServiceType) []string {
	return lo.Map(services, func(st types.ServiceType, _ int) string {
		return st.String()
	})
}
