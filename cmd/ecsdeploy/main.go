package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudformation"
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/elbv2"
	"github.com/spf13/cobra"

	"github.com/cuemby/ecsdeploy/pkg/deploy"
	"github.com/cuemby/ecsdeploy/pkg/log"
	"github.com/cuemby/ecsdeploy/pkg/metrics"
	"github.com/cuemby/ecsdeploy/pkg/registry"
	"github.com/cuemby/ecsdeploy/pkg/stack"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const metricsJob = "ecsdeploy"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// execute runs the root command and returns the process exit code
func execute(ctx context.Context, args []string) int {
	cmd, state := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return state.exitCode
}

type runState struct {
	exitCode int
}

func newRootCmd() (*cobra.Command, *runState) {
	f := &rootFlags{}
	state := &runState{}

	cmd := &cobra.Command{
		Use:   "ecsdeploy",
		Short: "ecsdeploy - Roll a container image out to ECS services",
		Long: `ecsdeploy builds the product image, pushes it to ECR and rolls it out
to the web and worker ECS services of a CloudFormation stack.

Each service gets a new task definition revision that differs only by its
container image. A service that does not stabilize within the timeout is
rolled back to the revision it ran before.

Examples:
  # Build, push and deploy both services
  ecsdeploy

  # Deploy only the worker with an existing image
  ecsdeploy --service worker --update-services --tag v1.4.2

  # Show what would happen
  ecsdeploy --dry-run`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, opts, err := buildSettings(cmd, f)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			log.Init(log.Config{
				Level:      log.ParseLevel(cfg.Log.Level),
				JSONOutput: cfg.Log.JSON,
			})

			sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Region)})
			if err != nil {
				return fmt.Errorf("failed to create AWS session: %w", err)
			}
			ecsClient := ecs.New(sess)

			publisher := registry.NewPublisher(ecr.New(sess), registry.Options{
				Product:      cfg.Product,
				BuildContext: cfg.BuildContext,
				DryRun:       opts.DryRun,
			})
			resolver := stack.NewResolver(cloudformation.New(sess), cfg.Stack, cfg.Outputs)

			orch := deploy.NewOrchestrator(resolver, deploy.Clients{
				ECS:   ecsClient,
				ELBv2: elbv2.New(sess),
			}, publisher, opts).WithTagSource(func(ctx context.Context) (string, error) {
				return registry.GitRevision(ctx, cfg.BuildContext)
			})

			report, runErr := orch.Run(cmd.Context())
			if runErr != nil {
				log.Errorf("Deployment aborted", runErr)
			}
			report.WriteSummary(cmd.OutOrStdout())

			if err := metrics.Push(cmd.Context(), cfg.Pushgateway, metricsJob); err != nil {
				log.Logger.Warn().Err(err).Msg("Failed to push metrics")
			}

			state.exitCode = report.ExitCode()
			return nil
		},
	}

	cmd.SetVersionTemplate(fmt.Sprintf(
		"ecsdeploy version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	f.register(cmd)
	return cmd, state
}
