package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for optimization runs.
var (
	// ErrInvalidState indicates a state vector with invalid dimensions or values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrStepTooSmall indicates adaptive timestep became too small.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")

	// ErrStepBudget indicates the integrator used up its step allowance.
	ErrStepBudget = errors.New("dynamo: integrator step budget exceeded")

	// ErrDimensionMismatch indicates mismatched state/control dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrIntegrationDivergence indicates a rollout or Riccati integration could not be completed.
	ErrIntegrationDivergence = errors.New("dynamo: integration diverged")

	// ErrRiccatiDivergence indicates the value function lost symmetry or positive semi-definiteness.
	ErrRiccatiDivergence = errors.New("dynamo: riccati recursion diverged")

	// ErrModelDerivative indicates a non-finite linear-quadratic model at one or more nodes.
	ErrModelDerivative = errors.New("dynamo: non-finite model derivative")

	// ErrInvalidConfiguration indicates settings or schedules rejected before any work.
	ErrInvalidConfiguration = errors.New("dynamo: invalid configuration")
)

// DivergenceError wraps an error with the place where a pass failed.
type DivergenceError struct {
	Stage     string
	Partition int
	Time      float64
	Wrapped   error
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("%s: partition %d (t=%.6f): %v", e.Stage, e.Partition, e.Time, e.Wrapped)
}

func (e *DivergenceError) Unwrap() error {
	return e.Wrapped
}

// Diverged builds a DivergenceError whose chain matches both kind and cause.
func Diverged(stage string, partition int, t float64, kind, cause error) error {
	wrapped := kind
	if cause != nil && !errors.Is(cause, kind) {
		wrapped = fmt.Errorf("%w: %w", kind, cause)
	}
	return &DivergenceError{Stage: stage, Partition: partition, Time: t, Wrapped: wrapped}
}
