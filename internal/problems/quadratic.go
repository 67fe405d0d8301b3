package problems

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

// QuadraticCost is the mode-independent tracking cost
//
//	L = ½(x-xn)ᵀQ(x-xn) + ½(u-un)ᵀR(u-un)
//	Φ = ½(x-xf)ᵀQf(x-xf)
type QuadraticCost struct {
	Q, R, Qf *mat.Dense
	XNominal dynamo.State
	UNominal dynamo.Control
	XFinal   dynamo.State
	stateDim int
	inputDim int
}

func NewQuadraticCost(q, r, qf *mat.Dense, xn dynamo.State, un dynamo.Control, xf dynamo.State) *QuadraticCost {
	return &QuadraticCost{
		Q: q, R: r, Qf: qf,
		XNominal: xn, UNominal: un, XFinal: xf,
		stateDim: len(xn), inputDim: len(un),
	}
}

func quadForm(m *mat.Dense, d []float64) (float64, *mat.VecDense) {
	v := mat.NewVecDense(len(d), append([]float64(nil), d...))
	var md mat.VecDense
	md.MulVec(m, v)
	return 0.5 * mat.Dot(v, &md), &md
}

func (c *QuadraticCost) Intermediate(mode int, t float64, x dynamo.State, u dynamo.Control) float64 {
	lx, _ := quadForm(c.Q, x.Sub(c.XNominal))
	lu, _ := quadForm(c.R, dynamo.State(u).Sub(dynamo.State(c.UNominal)))
	return lx + lu
}

func (c *QuadraticCost) IntermediateApprox(mode int, t float64, x dynamo.State, u dynamo.Control) dynamo.QuadraticApproximation {
	lx, gx := quadForm(c.Q, x.Sub(c.XNominal))
	lu, gu := quadForm(c.R, dynamo.State(u).Sub(dynamo.State(c.UNominal)))
	return dynamo.QuadraticApproximation{
		Value: lx + lu,
		Dx:    gx,
		Du:    gu,
		Dxx:   mat.DenseCopyOf(c.Q),
		Duu:   mat.DenseCopyOf(c.R),
		Dux:   mat.NewDense(c.inputDim, c.stateDim, nil),
	}
}

func (c *QuadraticCost) Terminal(mode int, t float64, x dynamo.State) float64 {
	v, _ := quadForm(c.Qf, x.Sub(c.XFinal))
	return v
}

func (c *QuadraticCost) TerminalApprox(mode int, t float64, x dynamo.State) dynamo.QuadraticApproximation {
	v, g := quadForm(c.Qf, x.Sub(c.XFinal))
	return dynamo.QuadraticApproximation{Value: v, Dx: g, Dxx: mat.DenseCopyOf(c.Qf)}
}

// Clone shares the weight matrices, which are never written.
func (c *QuadraticCost) Clone() dynamo.Cost {
	out := *c
	return &out
}
