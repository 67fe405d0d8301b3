package problems

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

// LinearConstraints are affine equality constraints
//
//	g(x, u) = C x + D u + e = 0   (state-input)
//	h(x)    = F x + f = 0         (state-only)
//
// Either group may be left nil.
type LinearConstraints struct {
	C, D *mat.Dense
	E    *mat.VecDense
	F    *mat.Dense
	Fv   *mat.VecDense
}

func (l *LinearConstraints) StateInput(mode int, t float64, x dynamo.State, u dynamo.Control) dynamo.LinearApproximation {
	if l.E == nil {
		return dynamo.LinearApproximation{}
	}
	var cx, du mat.VecDense
	cx.MulVec(l.C, x.Vec())
	du.MulVec(l.D, u.Vec())
	value := mat.VecDenseCopyOf(l.E)
	value.AddVec(value, &cx)
	value.AddVec(value, &du)
	return dynamo.LinearApproximation{Value: value, Dx: mat.DenseCopyOf(l.C), Du: mat.DenseCopyOf(l.D)}
}

func (l *LinearConstraints) StateOnly(mode int, t float64, x dynamo.State) dynamo.LinearApproximation {
	if l.Fv == nil {
		return dynamo.LinearApproximation{}
	}
	var fx mat.VecDense
	fx.MulVec(l.F, x.Vec())
	value := mat.VecDenseCopyOf(l.Fv)
	value.AddVec(value, &fx)
	return dynamo.LinearApproximation{Value: value, Dx: mat.DenseCopyOf(l.F)}
}

func (l *LinearConstraints) Clone() dynamo.Constraints {
	out := *l
	return &out
}
