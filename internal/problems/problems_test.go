package problems

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

const fdStep = 1e-6

// checkJacobians compares Linearize against central differences of Flow.
func checkJacobians(t *testing.T, dyn dynamo.Dynamics, mode int, x dynamo.State, u dynamo.Control) {
	t.Helper()
	a, b := dyn.Linearize(mode, 0, x, u)
	n, m := dyn.StateDim(), dyn.InputDim()

	for j := 0; j < n; j++ {
		xp, xm := x.Clone(), x.Clone()
		xp[j] += fdStep
		xm[j] -= fdStep
		fp, fm := dyn.Flow(mode, 0, xp, u), dyn.Flow(mode, 0, xm, u)
		for i := 0; i < n; i++ {
			fd := (fp[i] - fm[i]) / (2 * fdStep)
			assert.InDelta(t, fd, a.At(i, j), 1e-6, "mode %d A[%d,%d]", mode, i, j)
		}
	}
	for j := 0; j < m; j++ {
		up, um := u.Clone(), u.Clone()
		up[j] += fdStep
		um[j] -= fdStep
		fp, fm := dyn.Flow(mode, 0, x, up), dyn.Flow(mode, 0, x, um)
		for i := 0; i < n; i++ {
			fd := (fp[i] - fm[i]) / (2 * fdStep)
			assert.InDelta(t, fd, b.At(i, j), 1e-6, "mode %d B[%d,%d]", mode, i, j)
		}
	}
}

func TestEXP0Jacobians(t *testing.T) {
	for mode := 0; mode < 2; mode++ {
		checkJacobians(t, NewEXP0Dynamics(), mode, dynamo.State{0.3, -1.2}, dynamo.Control{0.7})
	}
}

func TestEXP1Jacobians(t *testing.T) {
	for mode := 0; mode < 3; mode++ {
		checkJacobians(t, NewEXP1Dynamics(), mode, dynamo.State{2, 3}, dynamo.Control{-0.4})
		checkJacobians(t, NewEXP1Dynamics(), mode, dynamo.State{-0.5, 0.1}, dynamo.Control{1.3})
	}
}

func TestQuadraticCostApproximation(t *testing.T) {
	c := EXP0Cost()
	x, u := dynamo.State{1, 3}, dynamo.Control{2}

	// ½(3-2)² + ½·2²
	assert.InDelta(t, 2.5, c.Intermediate(0, 0, x, u), 1e-12)
	approx := c.IntermediateApprox(0, 0, x, u)
	assert.InDelta(t, 2.5, approx.Value, 1e-12)
	assert.Equal(t, []float64{0, 1}, approx.Dx.RawVector().Data)
	assert.Equal(t, []float64{2}, approx.Du.RawVector().Data)
	assert.True(t, mat.Equal(approx.Dxx, mat.NewDense(2, 2, []float64{0, 0, 0, 1})))

	// ½(1-4)² + ½(3-2)²
	assert.InDelta(t, 5.0, c.Terminal(1, 2, x), 1e-12)
	term := c.TerminalApprox(1, 2, x)
	assert.Equal(t, []float64{-3, 1}, term.Dx.RawVector().Data)
	assert.Nil(t, term.Du)
}

func TestQuadraticCostGradientMatchesFiniteDifference(t *testing.T) {
	c := EXP1Cost()
	x, u := dynamo.State{0.4, 2.2}, dynamo.Control{-1.1}
	approx := c.IntermediateApprox(2, 0, x, u)
	for j := range x {
		xp, xm := x.Clone(), x.Clone()
		xp[j] += fdStep
		xm[j] -= fdStep
		fd := (c.Intermediate(2, 0, xp, u) - c.Intermediate(2, 0, xm, u)) / (2 * fdStep)
		assert.InDelta(t, fd, approx.Dx.AtVec(j), 1e-6)
	}
}

func TestLinearConstraints(t *testing.T) {
	p := NewEXP0Constrained()
	g := p.Constraints.StateInput(0, 0, dynamo.State{2, 0}, dynamo.Control{1})
	require.Equal(t, 1, g.Len())
	assert.InDelta(t, 0, g.Value.AtVec(0), 1e-12)

	g = p.Constraints.StateInput(0, 0, dynamo.State{2, 0}, dynamo.Control{3})
	assert.InDelta(t, 2, g.Value.AtVec(0), 1e-12)

	h := p.Constraints.StateOnly(0, 0, dynamo.State{2, 0})
	assert.Equal(t, 0, h.Len())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"exp0", "exp0_constrained", "exp1"}, r.List())

	for _, name := range r.List() {
		p, err := r.Get(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name)
		assert.NoError(t, p.Modes.Validate())
		assert.Len(t, p.X0, p.Dynamics.StateDim())
		assert.Less(t, p.Start, p.Final)
		assert.False(t, math.IsNaN(p.Cost.Terminal(0, p.Final, p.X0)))
	}

	_, err := r.Get("pendulum")
	assert.Error(t, err)
}
