package riccati

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/lq"
)

func scalar(v float64) *mat.Dense { return mat.NewDense(1, 1, []float64{v}) }

func vec(v float64) *mat.VecDense { return mat.NewVecDense(1, []float64{v}) }

// integratorNodes builds nodes of ẋ = u with L = q0 + ½·q·x² + ½u².
func integratorNodes(t0, t1 float64, n int, q, q0 float64) []lq.Node {
	nodes := make([]lq.Node, n+1)
	for i := range nodes {
		nodes[i] = lq.Node{
			Index: i,
			Time:  t0 + (t1-t0)*float64(i)/float64(n),
			X:     dynamo.State{0},
			U:     dynamo.Control{0},
			A:     scalar(0),
			B:     scalar(1),
			Q:     scalar(q),
			R:     scalar(1),
			P:     scalar(0),
			Qv:    vec(0),
			Rv:    vec(0),
			Q0:    q0,
		}
	}
	return nodes
}

func zeroValue() Value {
	return Value{S: scalar(0), Sv: vec(0), S0: 0}
}

func defaultOptions() Options {
	return Options{AbsTol: 1e-12, RelTol: 1e-10, CheckStability: true, StabilityTolerance: 1e-9}
}

func TestSweepScalarRiccati(t *testing.T) {
	s, err := NewSweeper(1, defaultOptions(), nil)
	require.NoError(t, err)

	// -Ṡ = 1 - S², S(1) = 0  =>  S(t) = tanh(1 - t)
	nodes := integratorNodes(0, 1, 20, 1, 0)
	values, err := s.Sweep(context.Background(), nodes, zeroValue())
	require.NoError(t, err)
	require.Len(t, values, len(nodes))

	for i, v := range values {
		want := math.Tanh(1 - nodes[i].Time)
		assert.InDelta(t, want, v.S.At(0, 0), 1e-8, "S at t=%v", nodes[i].Time)
		assert.InDelta(t, 0, v.Sv.AtVec(0), 1e-12)
	}

	gains, err := Gains(nodes, values, false)
	require.NoError(t, err)
	assert.InDelta(t, -math.Tanh(1), gains[0].K.At(0, 0), 1e-8)
	assert.InDelta(t, 0, gains[0].L.AtVec(0), 1e-12)
}

func TestSweepAccumulatesConstantCost(t *testing.T) {
	s, err := NewSweeper(1, defaultOptions(), nil)
	require.NoError(t, err)

	nodes := integratorNodes(0.5, 2, 15, 0, 1)
	values, err := s.Sweep(context.Background(), nodes, zeroValue())
	require.NoError(t, err)
	assert.InDelta(t, 1.5, values[0].S0, 1e-9)
}

func TestSweepLinearTerm(t *testing.T) {
	s, err := NewSweeper(1, defaultOptions(), nil)
	require.NoError(t, err)

	// With S = 0 the slope stays constant, l = -s, and -ṡ0 = ½l² + s·l = -½s².
	nodes := integratorNodes(0, 1, 10, 0, 0)
	terminal := Value{S: scalar(0), Sv: vec(1), S0: 0}
	values, err := s.Sweep(context.Background(), nodes, terminal)
	require.NoError(t, err)
	assert.InDelta(t, 1, values[0].Sv.AtVec(0), 1e-10)
	assert.InDelta(t, -0.5, values[0].S0, 1e-9)

	gains, err := Gains(nodes, values, false)
	require.NoError(t, err)
	assert.InDelta(t, -1, gains[0].L.AtVec(0), 1e-10)
}

type doubling struct{}

func (doubling) Jump(mode int, t float64, x dynamo.State) dynamo.State {
	return dynamo.State{2 * x[0]}
}

func (doubling) JumpJacobian(mode int, t float64, x dynamo.State) *mat.Dense {
	return scalar(2)
}

func TestSweepTransportsAcrossEvent(t *testing.T) {
	s, err := NewSweeper(1, defaultOptions(), doubling{})
	require.NoError(t, err)

	nodes := integratorNodes(0, 1, 2, 0, 0)
	// insert an event between node 1 (pre) and a post-event copy
	post := nodes[1]
	post.Time = math.Nextafter(post.Time, 2)
	post.PostEvent = true
	nodes = []lq.Node{nodes[0], nodes[1], post, nodes[2]}

	terminal := Value{S: scalar(0.5), Sv: vec(0.25), S0: 3}
	values, err := s.Sweep(context.Background(), nodes, terminal)
	require.NoError(t, err)

	assert.InDelta(t, 4*values[2].S.At(0, 0), values[1].S.At(0, 0), 1e-12)
	assert.InDelta(t, 2*values[2].Sv.AtVec(0), values[1].Sv.AtVec(0), 1e-12)
	assert.Equal(t, values[2].S0, values[1].S0)
}

func TestSweepDetectsIndefiniteValue(t *testing.T) {
	s, err := NewSweeper(1, defaultOptions(), nil)
	require.NoError(t, err)

	nodes := integratorNodes(0, 1, 5, 1, 0)
	for i := range nodes {
		nodes[i].Partition = 2
	}
	terminal := Value{S: scalar(-1), Sv: vec(0), S0: 0}
	_, err = s.Sweep(context.Background(), nodes, terminal)
	require.Error(t, err)
	assert.ErrorIs(t, err, dynamo.ErrRiccatiDivergence)

	var de *dynamo.DivergenceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 2, de.Partition)
	assert.Equal(t, 1.0, de.Time)

	// without the check the same sweep runs through
	opts := defaultOptions()
	opts.CheckStability = false
	s, _ = NewSweeper(1, opts, nil)
	_, err = s.Sweep(context.Background(), nodes, terminal)
	assert.NoError(t, err)
}

func TestConstrainedGains(t *testing.T) {
	nodes := integratorNodes(0, 1, 1, 1, 0)
	for i := range nodes {
		nodes[i].C = mat.NewDense(1, 1, []float64{-0.5})
		nodes[i].D = scalar(1)
		nodes[i].E = vec(0.3)
	}
	values := []Value{{S: scalar(2), Sv: vec(1), S0: 0}, zeroValue()}

	gains, err := Gains(nodes, values, true)
	require.NoError(t, err)
	// D δu + C δx + e = 0 with D = 1 fixes δu = 0.5 δx - 0.3
	assert.InDelta(t, 0.5, gains[0].K.At(0, 0), 1e-12)
	assert.InDelta(t, -0.3, gains[0].L.AtVec(0), 1e-12)

	unconstrained, err := Gains(nodes, values, false)
	require.NoError(t, err)
	assert.InDelta(t, -2, unconstrained[0].K.At(0, 0), 1e-12)
	assert.InDelta(t, -1, unconstrained[0].L.AtVec(0), 1e-12)
}

func TestConstrainedSweepMatchesClosedLoop(t *testing.T) {
	opts := defaultOptions()
	opts.Constrained = true
	s, err := NewSweeper(1, opts, nil)
	require.NoError(t, err)

	// u = 0 is forced; with ẋ = u and L = ½x² the value is S(t) = T - t.
	nodes := integratorNodes(0, 1, 10, 1, 0)
	for i := range nodes {
		nodes[i].C = scalar(0)
		nodes[i].D = scalar(1)
		nodes[i].E = vec(0)
	}
	values, err := s.Sweep(context.Background(), nodes, zeroValue())
	require.NoError(t, err)
	assert.InDelta(t, 1, values[0].S.At(0, 0), 1e-9)
}

func TestCheckStability(t *testing.T) {
	tests := []struct {
		name string
		s    []float64
		ok   bool
	}{
		{"identity", []float64{1, 0, 0, 1}, true},
		{"singular psd", []float64{1, 1, 1, 1}, true},
		{"zero", []float64{0, 0, 0, 0}, true},
		{"indefinite", []float64{1, 2, 2, 1}, false},
		{"asymmetric", []float64{1, 0.5, 0, 1}, false},
		{"nan", []float64{1, 0, 0, math.NaN()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Value{S: mat.NewDense(2, 2, tt.s), Sv: mat.NewVecDense(2, nil)}
			err := v.CheckStability(1e-9)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestTerminalValue(t *testing.T) {
	q := dynamo.QuadraticApproximation{Value: 2, Dx: vec(3), Dxx: scalar(4)}
	v := TerminalValue(q)
	q.Dxx.Set(0, 0, 100)
	assert.Equal(t, 4.0, v.S.At(0, 0))
	assert.Equal(t, 3.0, v.Sv.AtVec(0))
	assert.Equal(t, 2.0, v.S0)
}
