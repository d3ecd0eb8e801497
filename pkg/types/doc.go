/*
Package types defines the core data structures shared by every ecsdeploy package.

The deployment model is deliberately small:

  - ServiceType: closed enumeration of the services a product runs (web, worker)
  - ImageReference: registry path plus tag of the image being rolled out
  - DeploymentUnit: one registered ECS task definition revision
  - ServiceOutcome / RunResult: per-service and aggregate results of a run

# Naming Conventions

ServiceType drives every name the control plane sees. The canonical token
("web" or "worker") is used verbatim as:

  - the container name inside the task definition
  - the suffix of the task definition family: <product>-<environment>-<token>

	family := types.ServiceWorker.Family("portyfoul", "dev") // "portyfoul-dev-worker"

Because ServiceType is an int enumeration with exhaustive switches, an
unrecognized service string is rejected by ParseServiceType at the CLI
boundary and can never reach the control plane.
*/
package types
