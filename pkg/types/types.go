package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyImageReference is returned when an image reference has no content
var ErrEmptyImageReference = errors.New("image reference is empty")

// ServiceType identifies one of the long-running services of a product
type ServiceType int

const (
	ServiceFront ServiceType = iota // Front-facing service behind the load balancer
	ServiceWorker                   // Background worker service
)

// AllServiceTypes returns every service type in deployment order
func AllServiceTypes() []ServiceType {
	return []ServiceType{ServiceFront, ServiceWorker}
}

// ParseServiceType converts a CLI token into a ServiceType.
// "front" is accepted as an alias of the canonical "web" token.
func ParseServiceType(s string) (ServiceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "web", "front":
		return ServiceFront, nil
	case "worker":
		return ServiceWorker, nil
	default:
		return 0, fmt.Errorf("unknown service %q (expected web or worker)", s)
	}
}

// String returns the canonical token. The token doubles as the container
// name inside the task definition and the suffix of the task definition
// family, so it must never change.
func (s ServiceType) String() string {
	switch s {
	case ServiceFront:
		return "web"
	case ServiceWorker:
		return "worker"
	default:
		return fmt.Sprintf("ServiceType(%d)", int(s))
	}
}

// ContainerName returns the name of the container carrying the service image
func (s ServiceType) ContainerName() string {
	return s.String()
}

// Title returns the capitalized token, used in log lines and stack output keys
func (s ServiceType) Title() string {
	switch s {
	case ServiceFront:
		return "Web"
	case ServiceWorker:
		return "Worker"
	default:
		return s.String()
	}
}

// Family returns the task definition family: <product>-<environment>-<token>
func (s ServiceType) Family(product, environment string) string {
	return fmt.Sprintf("%s-%s-%s", product, environment, s.String())
}

// ImageReference is a registry path plus tag, e.g. "123.dkr.ecr.us-east-2.amazonaws.com/app:abc123"
type ImageReference string

// NewImageReference joins a repository URI and a tag
func NewImageReference(repository, tag string) ImageReference {
	return ImageReference(repository + ":" + tag)
}

// Validate checks the reference is not empty
func (r ImageReference) Validate() error {
	if strings.TrimSpace(string(r)) == "" {
		return ErrEmptyImageReference
	}
	return nil
}

func (r ImageReference) String() string {
	return string(r)
}

// DeploymentUnit is one registered, immutable task definition revision
type DeploymentUnit struct {
	ARN      string
	Family   string
	Revision int64
}

// Name returns the short family:revision form
func (u DeploymentUnit) Name() string {
	return fmt.Sprintf("%s:%d", u.Family, u.Revision)
}

// Outcome is the result of rolling out a single service
type Outcome string

const (
	OutcomeStabilized     Outcome = "stabilized"
	OutcomeTimedOut       Outcome = "timed-out"
	OutcomeHealthDegraded Outcome = "health-degraded"
)

// ServiceOutcome records what happened to one service during a run
type ServiceOutcome struct {
	Service ServiceType
	Outcome Outcome
	Elapsed time.Duration
	Message string
}

// RunResult is the aggregate result of an orchestration run
type RunResult string

const (
	RunSuccess        RunResult = "success"
	RunPartialFailure RunResult = "partial-failure"
)
