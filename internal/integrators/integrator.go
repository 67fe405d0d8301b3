// Package integrators implements the ODE solvers used by rollouts and by the
// backward Riccati sweep.
//
// All integrators share the [Integrator] interface: they advance a state
// vector from t0 to t1 (t1 may lie before t0) and report every accepted step
// to an observer. Integrators keep scratch buffers and are therefore not safe
// for concurrent use; create one per goroutine with [New].
package integrators

import (
	"fmt"
	"math"
)

// Func evaluates dy/dt = f(t, y) into dy.
type Func func(t float64, y, dy []float64)

// Observer is called after every accepted step. y must not be retained.
// Returning an error stops the integration with that error.
type Observer func(t float64, y []float64) error

// Options controls accuracy and effort.
type Options struct {
	AbsTol float64
	RelTol float64
	// MaxStep bounds the step length; fixed-step methods use it as their step.
	MaxStep float64
	// MaxSteps bounds the number of attempted steps (0 means unbounded).
	MaxSteps int
}

type Integrator interface {
	Integrate(f Func, y []float64, t0, t1 float64, opts Options, observe Observer) error
}

const (
	DormandPrince = "ode45"
	RungeKutta4   = "rk4"
	ExplicitEuler = "euler"
)

// New returns a fresh integrator by name.
func New(name string) (Integrator, error) {
	switch name {
	case DormandPrince, "rk45", "":
		return NewRK45(), nil
	case RungeKutta4:
		return NewRK4(), nil
	case ExplicitEuler:
		return NewEuler(), nil
	default:
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
}

// Names lists the registered integrators.
func Names() []string {
	return []string{DormandPrince, RungeKutta4, ExplicitEuler}
}

// StepBudget converts a steps-per-second allowance into a step count for an interval.
func StepBudget(stepsPerSecond, span float64) int {
	if stepsPerSecond <= 0 {
		return 0
	}
	n := int(math.Ceil(stepsPerSecond * math.Abs(span)))
	if n < 1 {
		n = 1
	}
	return n
}

const machineEps = 2.220446049250313e-16

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func ensure(buf []float64, n int) []float64 {
	if len(buf) != n {
		return make([]float64, n)
	}
	return buf
}
