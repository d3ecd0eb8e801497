/*
Package stack resolves the deployment configuration from CloudFormation stack outputs.

The infrastructure stack publishes everything a deployment needs to address
the live environment: the ECR repository, the ECS cluster, the service names
and the front target group. Resolver reads them once per run into an
immutable Snapshot that every other component receives explicitly.

# Resolution

	DescribeStacks(stack) ──► status CREATE_COMPLETE / UPDATE_COMPLETE?
	                              │ no  ──► ErrConfigurationUnavailable
	                              │ yes
	                              ▼
	                     copy outputs into Snapshot (memoized)

A query error, an empty stack list or a stack in any other status is
ErrConfigurationUnavailable. Failed resolutions are not memoized, so a retry
queries again; after the first success Resolve returns the same Snapshot
without another call.

# Output keys

OutputKeys names the outputs read by the typed accessors. The defaults are

	ECRRepositoryUri   RegistryURI()
	ECSClusterName     ClusterName()
	WebServiceName     ServiceName(types.ServiceFront)
	WorkerServiceName  ServiceName(types.ServiceWorker)
	WebTargetGroupArn  TargetGroupARN()

and can be overridden from the config file. An absent or empty output is
ErrConfigurationMissing.
*/
package stack
