package health

import (
	"context"
	"errors"
	"time"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeTasks   CheckType = "tasks"
	CheckTypeTargets CheckType = "targets"
)

var (
	// ErrCapacityMismatch means running tasks differ from the desired count
	ErrCapacityMismatch = errors.New("capacity mismatch")

	// ErrCheckFailed means the health state could not be queried
	ErrCheckFailed = errors.New("health check failed")
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
	Err       error

	// Passing and Total are task counts (running/desired) or target counts (healthy/registered)
	Passing int64
	Total   int64
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

func newResult(start time.Time) Result {
	return Result{CheckedAt: start}
}

func (r Result) finish(start time.Time) Result {
	r.Duration = time.Since(start)
	return r
}
