package riccati

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/integrators"
	"github.com/san-kum/hybridslq/internal/lq"
	"github.com/san-kum/hybridslq/internal/pool"
)

const stage = "riccati"

// minStepsPerInterval keeps very short node intervals integrable under a
// steps-per-second budget.
const minStepsPerInterval = 100

type Options struct {
	Integrator           string
	AbsTol               float64
	RelTol               float64
	MaxNumStepsPerSecond float64
	// Constrained enables projection onto type-1 constraints.
	Constrained        bool
	CheckStability     bool
	StabilityTolerance float64
}

// Sweeper integrates the value function over the nodes of one partition.
// It keeps integrator scratch space and must not be shared between goroutines.
type Sweeper struct {
	opts    Options
	integ   integrators.Integrator
	jumps   dynamo.JumpMapper
	buffers *pool.Buffers
}

// NewSweeper creates a sweeper for an n-dimensional state. jumps may be nil,
// in which case the state is continuous across switching events.
func NewSweeper(n int, opts Options, jumps dynamo.JumpMapper) (*Sweeper, error) {
	integ, err := integrators.New(opts.Integrator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dynamo.ErrInvalidConfiguration, err)
	}
	return &Sweeper{opts: opts, integ: integ, jumps: jumps, buffers: pool.NewBuffers(packedLen(n))}, nil
}

// AcrossEvent maps a value defined just after a switching event to just
// before it, using the jump Jacobian at the pre-event node.
func (s *Sweeper) AcrossEvent(pre *lq.Node, post Value) Value {
	if s.jumps == nil {
		return post.Clone()
	}
	return post.transport(s.jumps.JumpJacobian(pre.Mode, pre.Time, pre.X))
}

// Sweep returns the value function at every node of a partition given its
// value at the last node. Values are ordered like nodes.
func (s *Sweeper) Sweep(ctx context.Context, nodes []lq.Node, terminal Value) ([]Value, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	last := len(nodes) - 1
	values := make([]Value, len(nodes))
	values[last] = terminal.Clone()
	if err := s.check(&nodes[last], values[last]); err != nil {
		return nil, err
	}

	n := terminal.Sv.Len()
	y := s.buffers.Get()
	defer s.buffers.Put(y)

	for i := last; i > 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi, lo := &nodes[i], &nodes[i-1]

		if hi.PostEvent {
			values[i-1] = s.AcrossEvent(lo, values[i])
		} else {
			values[i].pack(y)
			span := hi.Time - lo.Time
			f := func(t float64, y, dy []float64) {
				m := interpolate(lo, hi, (t-lo.Time)/span)
				v := unpack(n, y)
				h, g := m.hamiltonian(v)
				gain, err := m.minimize(v, h, g, s.opts.Constrained)
				if err != nil {
					for j := range dy {
						dy[j] = math.NaN()
					}
					return
				}
				m.derivative(v, gain, h, g, dy)
			}
			opts := integrators.Options{
				AbsTol:   s.opts.AbsTol,
				RelTol:   s.opts.RelTol,
				MaxSteps: integrators.StepBudget(s.opts.MaxNumStepsPerSecond, span),
			}
			if opts.MaxSteps > 0 && opts.MaxSteps < minStepsPerInterval {
				opts.MaxSteps = minStepsPerInterval
			}
			if err := s.integ.Integrate(f, y, hi.Time, lo.Time, opts, nil); err != nil {
				return nil, dynamo.Diverged(stage, hi.Partition, hi.Time, dynamo.ErrIntegrationDivergence, err)
			}
			values[i-1] = unpack(n, y)
		}

		if err := s.check(lo, values[i-1]); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func (s *Sweeper) check(node *lq.Node, v Value) error {
	var err error
	if s.opts.CheckStability {
		err = v.CheckStability(s.opts.StabilityTolerance)
	} else if !dynamo.Finite(v.S) || !dynamo.Finite(v.Sv) {
		err = fmt.Errorf("non-finite value function")
	}
	if err != nil {
		return dynamo.Diverged(stage, node.Partition, node.Time, dynamo.ErrRiccatiDivergence, err)
	}
	return nil
}

// Gains computes the input correction at every node from its swept value.
// Nodes are independent, so callers may split the range across workers.
func Gains(nodes []lq.Node, values []Value, constrained bool) ([]Gain, error) {
	gains := make([]Gain, len(nodes))
	for i := range nodes {
		m := fromNode(&nodes[i])
		h, g := m.hamiltonian(values[i])
		gain, err := m.minimize(values[i], h, g, constrained)
		if err != nil {
			return nil, dynamo.Diverged(stage, nodes[i].Partition, nodes[i].Time, dynamo.ErrRiccatiDivergence, err)
		}
		if !dynamo.Finite(gain.K) || !dynamo.Finite(gain.L) {
			return nil, dynamo.Diverged(stage, nodes[i].Partition, nodes[i].Time, dynamo.ErrRiccatiDivergence,
				fmt.Errorf("non-finite gain"))
		}
		gains[i] = gain
	}
	return gains, nil
}
