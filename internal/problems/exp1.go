package problems

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/schedule"
)

// EXP1 is a nonlinear system switching through three subsystems.
//
//	mode 0: ẋ = [ x1 + u sin x1, -x2 - u cos x2]
//	mode 1: ẋ = [ x2 + u sin x2, -x1 - u cos x1]
//	mode 2: ẋ = [-x1 - u sin x1,  x2 + u cos x2]
type EXP1 struct{}

func NewEXP1Dynamics() *EXP1 { return &EXP1{} }

func (e *EXP1) StateDim() int { return 2 }
func (e *EXP1) InputDim() int { return 1 }

func (e *EXP1) Flow(mode int, t float64, x dynamo.State, u dynamo.Control) dynamo.State {
	x1, x2, v := x[0], x[1], u[0]
	switch mode {
	case 0:
		return dynamo.State{x1 + v*math.Sin(x1), -x2 - v*math.Cos(x2)}
	case 1:
		return dynamo.State{x2 + v*math.Sin(x2), -x1 - v*math.Cos(x1)}
	default:
		return dynamo.State{-x1 - v*math.Sin(x1), x2 + v*math.Cos(x2)}
	}
}

func (e *EXP1) Linearize(mode int, t float64, x dynamo.State, u dynamo.Control) (*mat.Dense, *mat.Dense) {
	x1, x2, v := x[0], x[1], u[0]
	switch mode {
	case 0:
		return mat.NewDense(2, 2, []float64{1 + v*math.Cos(x1), 0, 0, -1 + v*math.Sin(x2)}),
			mat.NewDense(2, 1, []float64{math.Sin(x1), -math.Cos(x2)})
	case 1:
		return mat.NewDense(2, 2, []float64{0, 1 + v*math.Cos(x2), -1 + v*math.Sin(x1), 0}),
			mat.NewDense(2, 1, []float64{math.Sin(x2), -math.Cos(x1)})
	default:
		return mat.NewDense(2, 2, []float64{-1 - v*math.Cos(x1), 0, 0, 1 - v*math.Sin(x2)}),
			mat.NewDense(2, 1, []float64{-math.Sin(x1), math.Cos(x2)})
	}
}

func (e *EXP1) Clone() dynamo.Dynamics { return &EXP1{} }

func EXP1Cost() *QuadraticCost {
	identity := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	return NewQuadraticCost(
		identity,
		mat.NewDense(1, 1, []float64{1}),
		mat.DenseCopyOf(identity),
		dynamo.State{1, -1},
		dynamo.Control{0},
		dynamo.State{1, -1},
	)
}

func NewEXP1() *Problem {
	modes, _ := schedule.NewModeSchedule([]float64{0.2262, 1.0176}, []int{0, 1, 2})
	return &Problem{
		Name:        "exp1",
		Description: "2-state nonlinear system, three subsystems over [0, 3]",
		Dynamics:    NewEXP1Dynamics(),
		Cost:        EXP1Cost(),
		Modes:       modes,
		Operating:   dynamo.OperatingPoint{U: dynamo.Control{0}},
		X0:          dynamo.State{2, 3},
		Start:       0,
		Final:       3,
	}
}
