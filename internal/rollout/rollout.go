// Package rollout simulates a switched system under a policy over one
// partition of the horizon.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/integrators"
	"github.com/san-kum/hybridslq/internal/schedule"
)

const stage = "rollout"

type Settings struct {
	Integrator           string
	AbsTol               float64
	RelTol               float64
	MaxStep              float64
	MaxNumStepsPerSecond float64
}

// Segment describes one partition rollout.
type Segment struct {
	Partition int
	Start     float64
	Final     float64
	X0        dynamo.State
	// JumpAtStart applies the switching event located exactly at Start
	// before integrating.
	JumpAtStart bool
}

// Quadrature adds running integrals to a rollout. They are integrated
// alongside the state, so they share its error control.
type Quadrature interface {
	Dim() int
	// Integrand writes Dim() values for the sample into out.
	Integrand(mode int, t float64, x dynamo.State, u dynamo.Control, out []float64)
}

// Rollout owns an integrator and a dynamics instance. It is not safe for
// concurrent use; create one per worker.
type Rollout struct {
	dyn      dynamo.Dynamics
	integ    integrators.Integrator
	modes    schedule.ModeSchedule
	settings Settings
	quad     Quadrature
}

func New(dyn dynamo.Dynamics, modes schedule.ModeSchedule, settings Settings) (*Rollout, error) {
	integ, err := integrators.New(settings.Integrator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dynamo.ErrInvalidConfiguration, err)
	}
	return &Rollout{dyn: dyn, integ: integ, modes: modes, settings: settings}, nil
}

// SetQuadrature attaches running integrals to every later Run. Their
// values over the segment end up in Trajectory.Integrals.
func (r *Rollout) SetQuadrature(q Quadrature) { r.quad = q }

// Run integrates the dynamics over seg under policy. Integration restarts at
// every switching event strictly inside the segment. Failures to integrate
// are reported as *dynamo.DivergenceError wrapping ErrIntegrationDivergence.
func (r *Rollout) Run(ctx context.Context, policy Policy, seg Segment) (*Trajectory, error) {
	n := r.dyn.StateDim()
	if len(seg.X0) != n {
		return nil, fmt.Errorf("%w: initial state has %d entries, want %d", dynamo.ErrDimensionMismatch, len(seg.X0), n)
	}
	if !(seg.Start < seg.Final) {
		return nil, fmt.Errorf("%w: empty rollout interval [%g, %g]", dynamo.ErrInvalidConfiguration, seg.Start, seg.Final)
	}
	if !seg.X0.IsValid() {
		return nil, r.diverged(seg.Partition, seg.Start, dynamo.ErrInvalidState)
	}

	tr := &Trajectory{Partition: seg.Partition}
	x := seg.X0.Clone()

	if seg.JumpAtStart {
		x = r.jump(r.modes.ModeAt(math.Nextafter(seg.Start, math.Inf(-1))), seg.Start, x)
		tr.Events = append(tr.Events, 0)
	}

	// y is the state followed by the quadrature accumulators.
	nq := 0
	if r.quad != nil {
		nq = r.quad.Dim()
	}
	y := make([]float64, n+nq)
	copy(y, x)

	bounds := append([]float64{seg.Start}, r.modes.EventsBetween(seg.Start, seg.Final)...)
	bounds = append(bounds, seg.Final)

	budget := integrators.StepBudget(r.settings.MaxNumStepsPerSecond, seg.Final-seg.Start)
	used := 0

	for s := 0; s+1 < len(bounds); s++ {
		lo, hi := bounds[s], bounds[s+1]
		mode := r.modes.ModeAt(lo)

		// Post-event samples sit just after the event so times stay strictly increasing.
		sampleStart := lo
		if s > 0 {
			sampleStart = math.Nextafter(lo, math.Inf(1))
			tr.Events = append(tr.Events, tr.Len())
		}
		x := dynamo.State(y[:n])
		u := policy.ComputeInput(sampleStart, x)
		if !u.IsValid() {
			return nil, r.diverged(seg.Partition, lo, dynamo.ErrInvalidState)
		}
		tr.append(sampleStart, x, u, mode)

		f := func(t float64, y, dy []float64) {
			tq := t
			if tq < sampleStart {
				tq = sampleStart
			}
			state := dynamo.State(y[:n])
			u := policy.ComputeInput(tq, state)
			copy(dy[:n], r.dyn.Flow(mode, t, state, u))
			if nq > 0 {
				r.quad.Integrand(mode, t, state, u, dy[n:])
			}
		}
		observe := func(t float64, y []float64) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			used++
			state := dynamo.State(y[:n])
			u := policy.ComputeInput(t, state)
			if !dynamo.State(y).IsValid() || !u.IsValid() {
				return r.diverged(seg.Partition, t, dynamo.ErrInvalidState)
			}
			tr.append(t, state, u, mode)
			return nil
		}

		opts := integrators.Options{
			AbsTol:  r.settings.AbsTol,
			RelTol:  r.settings.RelTol,
			MaxStep: r.settings.MaxStep,
		}
		if budget > 0 {
			opts.MaxSteps = budget - used
			if opts.MaxSteps <= 0 {
				return nil, r.diverged(seg.Partition, lo, dynamo.ErrStepBudget)
			}
		}

		if err := r.integ.Integrate(f, y, lo, hi, opts, observe); err != nil {
			var de *dynamo.DivergenceError
			switch {
			case errors.As(err, &de):
				return nil, err
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil, err
			default:
				return nil, r.diverged(seg.Partition, tr.FinalTime(), err)
			}
		}

		if s+2 < len(bounds) {
			copy(y[:n], r.jump(mode, hi, dynamo.State(y[:n]).Clone()))
		}
	}
	if nq > 0 {
		tr.Integrals = append([]float64(nil), y[n:]...)
	}
	return tr, nil
}

func (r *Rollout) jump(mode int, t float64, x dynamo.State) dynamo.State {
	if jm, ok := r.dyn.(dynamo.JumpMapper); ok {
		return jm.Jump(mode, t, x)
	}
	return x
}

func (r *Rollout) diverged(partition int, t float64, cause error) error {
	return dynamo.Diverged(stage, partition, t, dynamo.ErrIntegrationDivergence, cause)
}
