/*
Package metrics defines the Prometheus collectors of a deployment run.

All collectors are registered with the default registry at package init.
A deploy run is a short-lived process with nothing to scrape, so Push
sends the gathered metrics to a Pushgateway at the end of the run when a
URL is configured.

# Metrics

	ecsdeploy_phase_duration_seconds{phase}
	ecsdeploy_runs_total{result}
	ecsdeploy_stabilization_duration_seconds{service, outcome}
	ecsdeploy_revisions_registered_total{service}
	ecsdeploy_health_checks_total{service, result}
	ecsdeploy_lb_targets_healthy{service}
	ecsdeploy_rollbacks_total{service, result}

# Usage

	timer := metrics.NewTimer()
	// ... phase work ...
	timer.ObserveDurationVec(metrics.PhaseDuration, "publish-image")

	if err := metrics.Push(ctx, pushgatewayURL, "ecsdeploy"); err != nil {
		log.Logger.Warn().Err(err).Msg("Failed to push metrics")
	}
*/
package metrics
