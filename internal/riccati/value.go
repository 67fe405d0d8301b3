// Package riccati integrates the quadratic value function of the LQ model
// backward in time and derives the feedback and feedforward gains.
package riccati

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

// Value is the quadratic value function V(δx) = S0 + sᵀδx + ½δxᵀSδx.
type Value struct {
	S  *mat.Dense
	Sv *mat.VecDense
	S0 float64
}

// TerminalValue builds the boundary condition from the terminal cost expansion.
func TerminalValue(q dynamo.QuadraticApproximation) Value {
	return Value{S: mat.DenseCopyOf(q.Dxx), Sv: mat.VecDenseCopyOf(q.Dx), S0: q.Value}
}

func (v Value) Clone() Value {
	return Value{S: mat.DenseCopyOf(v.S), Sv: mat.VecDenseCopyOf(v.Sv), S0: v.S0}
}

// packedLen is the length of the ODE state holding (S, s, s0).
func packedLen(n int) int { return n*n + n + 1 }

func (v Value) pack(y []float64) {
	n := v.Sv.Len()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			y[i*n+j] = v.S.At(i, j)
		}
		y[n*n+i] = v.Sv.AtVec(i)
	}
	y[n*n+n] = v.S0
}

// unpack copies y into a fresh value and symmetrizes S.
func unpack(n int, y []float64) Value {
	s := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s.Set(i, j, 0.5*(y[i*n+j]+y[j*n+i]))
		}
	}
	return Value{
		S:  s,
		Sv: mat.NewVecDense(n, append([]float64(nil), y[n*n:n*n+n]...)),
		S0: y[n*n+n],
	}
}

// transport maps a post-event value to the pre-event side of a state jump
// x⁺ = J(x⁻) with Jacobian G: S⁻ = GᵀS⁺G, s⁻ = Gᵀs⁺.
func (v Value) transport(g *mat.Dense) Value {
	var s, tmp mat.Dense
	tmp.Mul(v.S, g)
	s.Mul(g.T(), &tmp)
	var sv mat.VecDense
	sv.MulVec(g.T(), v.Sv)
	return Value{S: &s, Sv: &sv, S0: v.S0}
}

// CheckStability verifies that S is finite, symmetric and positive
// semi-definite within tol, relative to the magnitude of S.
func (v Value) CheckStability(tol float64) error {
	if !dynamo.Finite(v.S) || !dynamo.Finite(v.Sv) || math.IsNaN(v.S0) || math.IsInf(v.S0, 0) {
		return fmt.Errorf("non-finite value function")
	}
	n, _ := v.S.Dims()
	scale := math.Max(1, mat.Norm(v.S, math.Inf(1)))
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(v.S.At(i, j)-v.S.At(j, i)) > tol*scale {
				return fmt.Errorf("S not symmetric at (%d,%d)", i, j)
			}
		}
	}
	shifted := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			shifted.SetSym(i, j, 0.5*(v.S.At(i, j)+v.S.At(j, i)))
		}
		shifted.SetSym(i, i, shifted.At(i, i)+tol*scale)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(shifted); !ok {
		return fmt.Errorf("S not positive semi-definite")
	}
	return nil
}
