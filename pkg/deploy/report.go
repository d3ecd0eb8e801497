package deploy

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"

	"github.com/cuemby/ecsdeploy/pkg/types"
)

// Phase is a step of the orchestration state machine
type Phase string

const (
	PhaseInit                 Phase = "init"
	PhasePublishImage         Phase = "publish-image"
	PhaseSkipPublish          Phase = "skip-publish"
	PhaseReviseAndUpdate      Phase = "revise-and-update"
	PhaseMonitorStabilization Phase = "monitor-stabilization"
	PhaseVerifyHealth         Phase = "verify-health"
	PhaseSummarize            Phase = "summarize"
)

// Report is the complete record of one orchestration run
type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	DryRun    bool
	BuildOnly bool

	// Phase is the last phase entered
	Phase Phase
	Image types.ImageReference
	Units []types.DeploymentUnit

	Outcomes []types.ServiceOutcome
	Rollback *RollbackResult

	// Err is the fatal error that aborted the run, if any
	Err          error
	HealthErrors *multierror.Error

	Result types.RunResult
}

func newReport(runID string, opts Options) *Report {
	return &Report{
		RunID:     runID,
		StartedAt: time.Now(),
		DryRun:    opts.DryRun,
		BuildOnly: opts.BuildOnly,
		Phase:     PhaseInit,
	}
}

// ExitCode is 0 when the run succeeded and 1 otherwise
func (r *Report) ExitCode() int {
	if r.Result == types.RunSuccess {
		return 0
	}
	return 1
}

// Outcome returns the recorded outcome of st
func (r *Report) Outcome(st types.ServiceType) (types.ServiceOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Service == st {
			return o, true
		}
	}
	return types.ServiceOutcome{}, false
}

func (r *Report) setOutcome(outcome types.ServiceOutcome) {
	for i, o := range r.Outcomes {
		if o.Service == outcome.Service {
			r.Outcomes[i] = outcome
			return
		}
	}
	r.Outcomes = append(r.Outcomes, outcome)
}

// finish derives the run result from the fatal and health errors
func (r *Report) finish() {
	r.Duration = time.Since(r.StartedAt)
	if r.Err == nil && r.HealthErrors.ErrorOrNil() == nil {
		r.Result = types.RunSuccess
		return
	}
	r.Result = types.RunPartialFailure
}

// WriteSummary prints a human readable summary of the run
func (r *Report) WriteSummary(w io.Writer) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(w)
	bold.Fprintln(w, "==========================================")
	bold.Fprintln(w, "  Deployment Summary")
	bold.Fprintln(w, "==========================================")
	fmt.Fprintf(w, "Run:      %s\n", r.RunID)
	if r.DryRun {
		yellow.Fprintln(w, "Mode:     dry run (no changes made)")
	}
	if r.Image != "" {
		fmt.Fprintf(w, "Image:    %s\n", r.Image)
	}
	for _, u := range r.Units {
		fmt.Fprintf(w, "Revision: %s\n", u.Name())
	}
	fmt.Fprintf(w, "Duration: %s\n", r.Duration.Round(time.Second))

	for _, o := range r.Outcomes {
		line := fmt.Sprintf("  %-7s %-16s %s", o.Service.Title(), o.Outcome, o.Elapsed.Round(time.Second))
		if o.Message != "" {
			line += "  " + o.Message
		}
		if o.Outcome == types.OutcomeStabilized {
			green.Fprintln(w, line)
		} else {
			red.Fprintln(w, line)
		}
	}

	if r.Rollback != nil {
		if r.Rollback.Succeeded() {
			yellow.Fprintf(w, "Rolled back %s to %s\n", r.Rollback.Service, r.Rollback.RestoredTo)
		} else {
			red.Fprintf(w, "Rollback of %s failed: %v\n", r.Rollback.Service, r.Rollback.Err)
		}
	}
	if r.Err != nil {
		red.Fprintf(w, "Aborted during %s: %v\n", r.Phase, r.Err)
	}
	if err := r.HealthErrors.ErrorOrNil(); err != nil {
		red.Fprintf(w, "Health verification: %v\n", err)
	}

	switch {
	case r.Result == types.RunSuccess && r.BuildOnly:
		green.Fprintln(w, "Image published successfully")
	case r.Result == types.RunSuccess:
		green.Fprintln(w, "All services deployed successfully")
	default:
		red.Fprintln(w, "Deployment completed with failures")
	}
}
