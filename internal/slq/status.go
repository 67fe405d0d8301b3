package slq

import (
	"errors"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

// State is the phase of the outer iteration.
type State int

const (
	Initializing State = iota
	BuildingModel
	BackwardPass
	ForwardPass
	Converged
	Failed
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case BuildingModel:
		return "building_model"
	case BackwardPass:
		return "backward_pass"
	case ForwardPass:
		return "forward_pass"
	case Converged:
		return "converged"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureKind classifies why a run ended in Failed.
type FailureKind int

const (
	NoFailure FailureKind = iota
	IntegrationDivergence
	RiccatiDivergence
	ModelDerivative
	// InternalFailure covers errors outside the algorithm, such as a
	// panicking task.
	InternalFailure
)

func (f FailureKind) String() string {
	switch f {
	case NoFailure:
		return "none"
	case IntegrationDivergence:
		return "integration_divergence"
	case RiccatiDivergence:
		return "riccati_divergence"
	case ModelDerivative:
		return "model_derivative"
	case InternalFailure:
		return "internal"
	default:
		return "unknown"
	}
}

// Reasons a run converged.
const (
	ReasonCostChange         = "cost change below threshold"
	ReasonLineSearch         = "line search exhausted"
	ReasonMaxIterations      = "iteration limit reached"
	ReasonNoIterations       = "no iterations requested"
	ReasonAlgorithmicFailure = "algorithmic failure"
)

// Status is the terminal state of a run.
type Status struct {
	State   State
	Failure FailureKind
	Reason  string
	// Err is the error that caused a failure, nil otherwise.
	Err error
}

func converged(reason string) Status {
	return Status{State: Converged, Reason: reason}
}

func failed(err error) Status {
	return Status{State: Failed, Failure: classify(err), Reason: ReasonAlgorithmicFailure, Err: err}
}

func classify(err error) FailureKind {
	switch {
	case errors.Is(err, dynamo.ErrModelDerivative):
		return ModelDerivative
	case errors.Is(err, dynamo.ErrRiccatiDivergence):
		return RiccatiDivergence
	case errors.Is(err, dynamo.ErrIntegrationDivergence):
		return IntegrationDivergence
	default:
		return InternalFailure
	}
}
