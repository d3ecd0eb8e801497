/*
Ecsdeploy rolls a container image out to the web and worker ECS services.

Usage:

	ecsdeploy [flags]

The flags are:

	--region string       AWS region (default "us-east-2")
	--stack string        CloudFormation stack name (default "portyfoul-infra")
	--service string      deploy only web or worker (default both)
	--tag string          image tag (default short git revision)
	--timeout int         stabilization timeout in seconds (default 600)
	--build-only          build and push the image only
	--update-services     deploy an existing image without building
	--dry-run             perform reads and log intended changes only
	--config string       YAML config file
	--product string      product name (default "portyfoul")
	--log-level string    debug, info, warn or error
	--log-json            JSON log output
	--pushgateway string  Prometheus Pushgateway URL

Flags override config file values only when set. The process exits 0 when
every service deployed and verified healthy, and 1 otherwise.
*/
package main
