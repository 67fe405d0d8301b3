package problems

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/schedule"
)

// EXP0 is a two-mode switched linear system
//
//	mode 0: ẋ = [0.6 1.2; -0.8 3.4] x + [1; 1] u
//	mode 1: ẋ = [4 3; -1 0] x + [2; -1] u
type EXP0 struct{}

var (
	exp0A = []*mat.Dense{
		mat.NewDense(2, 2, []float64{0.6, 1.2, -0.8, 3.4}),
		mat.NewDense(2, 2, []float64{4, 3, -1, 0}),
	}
	exp0B = []*mat.Dense{
		mat.NewDense(2, 1, []float64{1, 1}),
		mat.NewDense(2, 1, []float64{2, -1}),
	}
)

func NewEXP0Dynamics() *EXP0 { return &EXP0{} }

func (e *EXP0) StateDim() int { return 2 }
func (e *EXP0) InputDim() int { return 1 }

func (e *EXP0) Flow(mode int, t float64, x dynamo.State, u dynamo.Control) dynamo.State {
	a, b := exp0A[mode], exp0B[mode]
	return dynamo.State{
		a.At(0, 0)*x[0] + a.At(0, 1)*x[1] + b.At(0, 0)*u[0],
		a.At(1, 0)*x[0] + a.At(1, 1)*x[1] + b.At(1, 0)*u[0],
	}
}

func (e *EXP0) Linearize(mode int, t float64, x dynamo.State, u dynamo.Control) (*mat.Dense, *mat.Dense) {
	return mat.DenseCopyOf(exp0A[mode]), mat.DenseCopyOf(exp0B[mode])
}

func (e *EXP0) Clone() dynamo.Dynamics { return &EXP0{} }

// EXP0Cost tracks x2 = 2 with unit input weight and ends near (4, 2).
func EXP0Cost() *QuadraticCost {
	return NewQuadraticCost(
		mat.NewDense(2, 2, []float64{0, 0, 0, 1}),
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		dynamo.State{0, 2},
		dynamo.Control{0},
		dynamo.State{4, 2},
	)
}

// EXP0SwitchingTime is where the system changes from mode 0 to mode 1.
const EXP0SwitchingTime = 0.1897

func NewEXP0() *Problem {
	modes, _ := schedule.NewModeSchedule([]float64{EXP0SwitchingTime}, []int{0, 1})
	return &Problem{
		Name:        "exp0",
		Description: "2-state switched linear system, one switch at t=0.1897",
		Dynamics:    NewEXP0Dynamics(),
		Cost:        EXP0Cost(),
		Modes:       modes,
		Operating:   dynamo.OperatingPoint{U: dynamo.Control{0}},
		X0:          dynamo.State{0, 2},
		Start:       0,
		Final:       2,
	}
}

// NewEXP0Constrained adds the state-input constraint u = 0.5·x1.
func NewEXP0Constrained() *Problem {
	p := NewEXP0()
	p.Name = "exp0_constrained"
	p.Description = "exp0 with the state-input constraint u - 0.5 x1 = 0"
	p.Constraints = &LinearConstraints{
		C: mat.NewDense(1, 2, []float64{-0.5, 0}),
		D: mat.NewDense(1, 1, []float64{1}),
		E: mat.NewVecDense(1, []float64{0}),
	}
	return p
}
