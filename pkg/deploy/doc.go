/*
Package deploy runs the ECS rollout state machine for the web and worker services.

	Init → PublishImage | SkipPublish → ReviseAndUpdate → MonitorStabilization → VerifyHealth → Summarize

Components:

	Updater       points a service at a task definition revision with a forced new deployment
	Monitor       waits on the ECS services-stable waiter, polling every 15s
	Rollbacker    restores the revision recorded before the run
	Orchestrator  drives the phases and produces a Report

Services are processed in order. Revision and update errors abort the run.
The first service that fails to stabilize is rolled back on its own and the
run stops there; services already updated keep their new revision. Health
verification checks every service and collects failures instead of
aborting.

The rollback outcome is stored in Report.Rollback and never replaces the
stabilization error that triggered it.

# Usage

	orch := deploy.NewOrchestrator(resolver, deploy.Clients{ECS: ecsClient, ELBv2: elbClient}, publisher, deploy.Options{
		Services: types.AllServiceTypes(),
		Timeout:  10 * time.Minute,
		Product:  "portyfoul",
	})
	report, _ := orch.Run(ctx)
	report.WriteSummary(os.Stdout)
	os.Exit(report.ExitCode())
*/
package deploy
