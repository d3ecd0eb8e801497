package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Orchestration metrics
	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecsdeploy_phase_duration_seconds",
			Help:    "Time spent in each orchestration phase in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"phase"},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecsdeploy_runs_total",
			Help: "Total number of deployment runs by result",
		},
		[]string{"result"},
	)

	// Per-service metrics
	StabilizationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecsdeploy_stabilization_duration_seconds",
			Help:    "Time taken for a service rollout to stabilize in seconds",
			Buckets: []float64{15, 30, 60, 120, 300, 600, 900},
		},
		[]string{"service", "outcome"},
	)

	RevisionsRegistered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecsdeploy_revisions_registered_total",
			Help: "Total number of task definition revisions registered",
		},
		[]string{"service"},
	)

	HealthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecsdeploy_health_checks_total",
			Help: "Total number of post-deployment health checks by result",
		},
		[]string{"service", "result"},
	)

	TargetsHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ecsdeploy_lb_targets_healthy",
			Help: "Healthy load balancer targets seen by the last health check",
		},
		[]string{"service"},
	)

	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecsdeploy_rollbacks_total",
			Help: "Total number of rollback attempts by result",
		},
		[]string{"service", "result"},
	)
)

func init() {
	prometheus.MustRegister(PhaseDuration)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(StabilizationDuration)
	prometheus.MustRegister(RevisionsRegistered)
	prometheus.MustRegister(HealthChecksTotal)
	prometheus.MustRegister(TargetsHealthy)
	prometheus.MustRegister(RollbacksTotal)
}

// Push sends every registered metric to a Prometheus Pushgateway.
// A deployment run is too short-lived to be scraped.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
