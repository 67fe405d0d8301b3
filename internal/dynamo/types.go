package dynamo

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// Vec views the state as a gonum vector sharing the same backing array.
func (s State) Vec() *mat.VecDense {
	if len(s) == 0 {
		return nil
	}
	return mat.NewVecDense(len(s), s)
}

type Control []float64

func (c Control) Clone() Control {
	out := make(Control, len(c))
	copy(out, c)
	return out
}

func (c Control) IsValid() bool {
	return State(c).IsValid()
}

// Vec views the input as a gonum vector sharing the same backing array.
func (c Control) Vec() *mat.VecDense {
	if len(c) == 0 {
		return nil
	}
	return mat.NewVecDense(len(c), c)
}

// Dynamics is a switched controlled system dx/dt = f_mode(t, x, u).
//
// Implementations are not required to be safe for concurrent use. The solver
// calls Clone once per worker and never shares an instance between goroutines.
type Dynamics interface {
	StateDim() int
	InputDim() int
	// Flow returns dx/dt for the given subsystem.
	Flow(mode int, t float64, x State, u Control) State
	// Linearize returns the Jacobians A = df/dx and B = df/du.
	Linearize(mode int, t float64, x State, u Control) (a, b *mat.Dense)
	Clone() Dynamics
}

// JumpMapper is implemented by dynamics whose state jumps at a switching event.
// Without it the state is continuous across events.
type JumpMapper interface {
	// Jump maps the pre-event state of the subsystem that was active before the event.
	Jump(mode int, t float64, x State) State
	// JumpJacobian returns dJump/dx.
	JumpJacobian(mode int, t float64, x State) *mat.Dense
}

// QuadraticApproximation is the second order expansion of a scalar function
// around (x, u). Input terms are nil for terminal costs.
type QuadraticApproximation struct {
	Value float64
	Dx    *mat.VecDense
	Du    *mat.VecDense
	Dxx   *mat.Dense
	Duu   *mat.Dense
	Dux   *mat.Dense
}

// Cost is an intermediate plus terminal cost functional. All methods are pure.
type Cost interface {
	Intermediate(mode int, t float64, x State, u Control) float64
	IntermediateApprox(mode int, t float64, x State, u Control) QuadraticApproximation
	Terminal(mode int, t float64, x State) float64
	TerminalApprox(mode int, t float64, x State) QuadraticApproximation
	Clone() Cost
}

// LinearApproximation is a first order expansion g(x, u) ≈ Value + Dx δx + Du δu.
// A nil Value means no constraint is active.
type LinearApproximation struct {
	Value *mat.VecDense
	Dx    *mat.Dense
	Du    *mat.Dense
}

// Len reports the number of constraint rows.
func (l LinearApproximation) Len() int {
	if l.Value == nil {
		return 0
	}
	return l.Value.Len()
}

// Constraints holds equality constraints of the optimal control problem.
//
// Type-1 constraints depend on state and input and are eliminated by
// projection. Type-2 constraints depend on the state only and are handled
// with a quadratic penalty.
type Constraints interface {
	StateInput(mode int, t float64, x State, u Control) LinearApproximation
	StateOnly(mode int, t float64, x State) LinearApproximation
	Clone() Constraints
}

// OperatingTrajectories provides the input used for the very first rollout.
type OperatingTrajectories interface {
	Input(t float64) Control
}

// OperatingPoint is a constant input operating trajectory.
type OperatingPoint struct {
	U Control
}

func (o OperatingPoint) Input(t float64) Control {
	return o.U.Clone()
}

// Metric accumulates a scalar along a trajectory.
type Metric interface {
	Name() string
	Observe(mode int, t float64, x State, u Control)
	Value() float64
	Reset()
}

// Finite reports whether every entry of m is a finite number.
func Finite(m mat.Matrix) bool {
	if m == nil {
		return true
	}
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
