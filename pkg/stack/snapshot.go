package stack

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/cuemby/ecsdeploy/pkg/types"
)

var (
	// ErrConfigurationUnavailable means the stack could not be read or is not in a complete state
	ErrConfigurationUnavailable = errors.New("configuration unavailable")

	// ErrConfigurationMissing means a required stack output is absent
	ErrConfigurationMissing = errors.New("configuration missing")
)

// OutputKeys names the stack outputs the deployer reads
type OutputKeys struct {
	RegistryURI       string `yaml:"registryUri"`
	ClusterName       string `yaml:"clusterName"`
	FrontServiceName  string `yaml:"frontServiceName"`
	WorkerServiceName string `yaml:"workerServiceName"`
	FrontTargetGroup  string `yaml:"frontTargetGroup"`
}

// DefaultOutputKeys returns the output names exported by the infrastructure stack
func DefaultOutputKeys() OutputKeys {
	return OutputKeys{
		RegistryURI:       "ECRRepositoryUri",
		ClusterName:       "ECSClusterName",
		FrontServiceName:  "WebServiceName",
		WorkerServiceName: "WorkerServiceName",
		FrontTargetGroup:  "WebTargetGroupArn",
	}
}

// WithDefaults fills empty key names from DefaultOutputKeys
func (k OutputKeys) WithDefaults() OutputKeys {
	d := DefaultOutputKeys()
	if k.RegistryURI == "" {
		k.RegistryURI = d.RegistryURI
	}
	if k.ClusterName == "" {
		k.ClusterName = d.ClusterName
	}
	if k.FrontServiceName == "" {
		k.FrontServiceName = d.FrontServiceName
	}
	if k.WorkerServiceName == "" {
		k.WorkerServiceName = d.WorkerServiceName
	}
	if k.FrontTargetGroup == "" {
		k.FrontTargetGroup = d.FrontTargetGroup
	}
	return k
}

// ServiceName returns the output key holding the ECS service name for st
func (k OutputKeys) ServiceName(st types.ServiceType) string {
	switch st {
	case types.ServiceFront:
		return k.FrontServiceName
	case types.ServiceWorker:
		return k.WorkerServiceName
	default:
		return ""
	}
}

// Snapshot is an immutable copy of the stack outputs taken once per run
type Snapshot struct {
	keys   OutputKeys
	values map[string]string
}

// NewSnapshot copies values so later changes to the map are not observed
func NewSnapshot(keys OutputKeys, values map[string]string) *Snapshot {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Snapshot{keys: keys.WithDefaults(), values: copied}
}

// Get returns the value of an output key
func (s *Snapshot) Get(key string) (string, error) {
	v, ok := s.values[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: stack output %s not found", ErrConfigurationMissing, key)
	}
	return v, nil
}

// Len returns the number of outputs
func (s *Snapshot) Len() int {
	return len(s.values)
}

// Keys returns the output names in sorted order
func (s *Snapshot) Keys() []string {
	keys := lo.Keys(s.values)
	sort.Strings(keys)
	return keys
}

// RegistryURI returns the ECR repository URI
func (s *Snapshot) RegistryURI() (string, error) {
	return s.Get(s.keys.RegistryURI)
}

// ClusterName returns the ECS cluster name
func (s *Snapshot) ClusterName() (string, error) {
	return s.Get(s.keys.ClusterName)
}

// ServiceName returns the live ECS service name for st
func (s *Snapshot) ServiceName(st types.ServiceType) (string, error) {
	return s.Get(s.keys.ServiceName(st))
}

// TargetGroupARN returns the load balancer target group of the front service
func (s *Snapshot) TargetGroupARN() (string, error) {
	return s.Get(s.keys.FrontTargetGroup)
}

// ServiceTarget returns the cluster and service names needed to address st
func (s *Snapshot) ServiceTarget(st types.ServiceType) (cluster, service string, err error) {
	cluster, err = s.ClusterName()
	if err != nil {
		return "", "", err
	}
	service, err = s.ServiceName(st)
	if err != nil {
		return "", "", err
	}
	return cluster, service, nil
}
