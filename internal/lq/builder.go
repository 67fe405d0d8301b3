package lq

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/pool"
	"github.com/san-kum/hybridslq/internal/rollout"
)

// Collaborators bundles the user-supplied problem functions. Constraints may be nil.
type Collaborators struct {
	Dynamics    dynamo.Dynamics
	Cost        dynamo.Cost
	Constraints dynamo.Constraints
}

func (c Collaborators) Clone() Collaborators {
	out := Collaborators{Dynamics: c.Dynamics.Clone(), Cost: c.Cost.Clone()}
	if c.Constraints != nil {
		out.Constraints = c.Constraints.Clone()
	}
	return out
}

// NodeError reports a node whose derivatives are not finite.
type NodeError struct {
	Partition int
	Index     int
	Time      float64
	What      string
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %d of partition %d (t=%.6f): non-finite %s", e.Index, e.Partition, e.Time, e.What)
}

// Builder maps trajectory samples to LQ nodes on a worker pool.
type Builder struct {
	pool        *pool.Pool
	workers     []Collaborators
	constrained bool
}

// NewBuilder clones proto once per pool worker plus once for the
// coordinating goroutine. Type-1 constraints are linearized only when
// constrained is true.
func NewBuilder(p *pool.Pool, proto Collaborators, constrained bool) *Builder {
	workers := make([]Collaborators, p.Size()+1)
	for i := range workers {
		workers[i] = proto.Clone()
	}
	return &Builder{pool: p, workers: workers, constrained: constrained}
}

// Build approximates every sample of trajs. penalty weighs the type-2
// (state-only) constraints folded into the cost. All node failures are
// collected and returned wrapped in dynamo.ErrModelDerivative.
func (b *Builder) Build(ctx context.Context, trajs []*rollout.Trajectory, penalty float64) (*Model, error) {
	model := &Model{Partitions: make([][]Node, len(trajs))}
	offsets := make([]int, len(trajs)+1)
	for k, tr := range trajs {
		model.Partitions[k] = make([]Node, tr.Len())
		offsets[k+1] = offsets[k] + tr.Len()
	}

	err := b.pool.ParallelForAll(ctx, offsets[len(trajs)], func(ctx context.Context, worker, flat int) error {
		k := 0
		for offsets[k+1] <= flat {
			k++
		}
		i := flat - offsets[k]
		node, err := b.approximate(b.workers[worker], trajs[k], i, penalty)
		if err != nil {
			return err
		}
		model.Partitions[k][i] = node
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", dynamo.ErrModelDerivative, err)
	}

	last := trajs[len(trajs)-1]
	n := last.Len() - 1
	c := b.workers[b.pool.CoordinatorSlot()]
	model.Terminal = c.Cost.TerminalApprox(last.Modes[n], last.Times[n], last.States[n])
	if !finiteApprox(model.Terminal) {
		return nil, fmt.Errorf("%w: %w", dynamo.ErrModelDerivative,
			&NodeError{Partition: last.Partition, Index: n, Time: last.Times[n], What: "terminal cost"})
	}
	return model, nil
}

func (b *Builder) approximate(c Collaborators, tr *rollout.Trajectory, i int, penalty float64) (Node, error) {
	t, x, u, mode := tr.Times[i], tr.States[i], tr.Inputs[i], tr.Modes[i]
	node := Node{
		Partition: tr.Partition,
		Index:     i,
		Time:      t,
		Mode:      mode,
		PostEvent: tr.IsPostEvent(i),
		X:         x,
		U:         u,
	}
	fail := func(what string) error {
		return &NodeError{Partition: tr.Partition, Index: i, Time: t, What: what}
	}

	node.A, node.B = c.Dynamics.Linearize(mode, t, x, u)
	if !dynamo.Finite(node.A) || !dynamo.Finite(node.B) {
		return node, fail("dynamics derivative")
	}

	cost := c.Cost.IntermediateApprox(mode, t, x, u)
	if !finiteApprox(cost) {
		return node, fail("cost derivative")
	}
	node.Q0 = cost.Value
	node.Qv = mat.VecDenseCopyOf(cost.Dx)
	node.Rv = mat.VecDenseCopyOf(cost.Du)
	node.Q = mat.DenseCopyOf(cost.Dxx)
	node.R = mat.DenseCopyOf(cost.Duu)
	node.P = mat.DenseCopyOf(cost.Dux)

	if c.Constraints == nil {
		return node, nil
	}

	if b.constrained {
		lin := c.Constraints.StateInput(mode, t, x, u)
		if lin.Len() > 0 {
			if !dynamo.Finite(lin.Value) || !dynamo.Finite(lin.Dx) || !dynamo.Finite(lin.Du) {
				return node, fail("state-input constraint derivative")
			}
			node.C, node.D, node.E = lin.Dx, lin.Du, lin.Value
		}
	}

	if penalty > 0 {
		h := c.Constraints.StateOnly(mode, t, x)
		if h.Len() > 0 {
			if !dynamo.Finite(h.Value) || !dynamo.Finite(h.Dx) {
				return node, fail("state-only constraint derivative")
			}
			foldPenalty(&node, h, penalty)
		}
	}
	return node, nil
}

// foldPenalty adds ½·penalty·|h(x)|² to the cost expansion.
func foldPenalty(node *Node, h dynamo.LinearApproximation, penalty float64) {
	node.Q0 += 0.5 * penalty * mat.Dot(h.Value, h.Value)

	var grad mat.VecDense
	grad.MulVec(h.Dx.T(), h.Value)
	node.Qv.AddScaledVec(node.Qv, penalty, &grad)

	var hess mat.Dense
	hess.Mul(h.Dx.T(), h.Dx)
	hess.Scale(penalty, &hess)
	node.Q.Add(node.Q, &hess)
}

func finiteApprox(q dynamo.QuadraticApproximation) bool {
	if math.IsNaN(q.Value) || math.IsInf(q.Value, 0) {
		return false
	}
	for _, m := range []mat.Matrix{q.Dx, q.Du, q.Dxx, q.Duu, q.Dux} {
		if isNil(m) {
			continue
		}
		if !dynamo.Finite(m) {
			return false
		}
	}
	return true
}

// isNil catches typed nil pointers stored in a mat.Matrix.
func isNil(m mat.Matrix) bool {
	switch v := m.(type) {
	case nil:
		return true
	case *mat.Dense:
		return v == nil
	case *mat.VecDense:
		return v == nil
	}
	return false
}

// NodeErrors extracts the per-node failures from an error returned by Build.
func NodeErrors(err error) []*NodeError {
	var out []*NodeError
	var walk func(error)
	walk = func(e error) {
		switch x := e.(type) {
		case nil:
		case *NodeError:
			out = append(out, x)
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(x.Unwrap())
		}
	}
	walk(err)
	return out
}
