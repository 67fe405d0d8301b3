package slq

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/logging"
	"github.com/san-kum/hybridslq/internal/problems"
)

// exp0OptimalCost is the optimum of the exp0 problem over [0, 2].
const exp0OptimalCost = 9.766548739997795

func fromProblem(p *problems.Problem) Problem {
	return Problem{
		Dynamics:    p.Dynamics,
		Cost:        p.Cost,
		Constraints: p.Constraints,
		Operating:   p.Operating,
		Modes:       p.Modes,
	}
}

// exp0Settings are the defaults with a higher iteration cap and an odd
// worker count, so partitions and workers do not line up.
func exp0Settings() Settings {
	s := DefaultSettings()
	s.NThreads = 3
	s.MaxNumIterations = 30
	return s
}

func newSolver(t testing.TB, p *problems.Problem, settings Settings, opts ...Option) *Solver {
	t.Helper()
	s, err := New(fromProblem(p), settings, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testContext() context.Context {
	return logging.NewTestLoggerIntoContext(context.Background())
}

// nanAfter poisons the flow once an input is applied past a given time.
type nanAfter struct {
	dynamo.Dynamics
	at float64
}

func (d *nanAfter) Flow(mode int, t float64, x dynamo.State, u dynamo.Control) dynamo.State {
	if t >= d.at && u[0] != 0 {
		return dynamo.State{math.NaN(), math.NaN()}
	}
	return d.Dynamics.Flow(mode, t, x, u)
}

func (d *nanAfter) Clone() dynamo.Dynamics {
	return &nanAfter{Dynamics: d.Dynamics.Clone(), at: d.at}
}

// nanJacobianAfter returns a non-finite A from a given time on.
type nanJacobianAfter struct {
	dynamo.Dynamics
	at float64
}

func (d *nanJacobianAfter) Linearize(mode int, t float64, x dynamo.State, u dynamo.Control) (*mat.Dense, *mat.Dense) {
	a, b := d.Dynamics.Linearize(mode, t, x, u)
	if t >= d.at {
		a = mat.DenseCopyOf(a)
		a.Set(0, 0, math.NaN())
	}
	return a, b
}

func (d *nanJacobianAfter) Clone() dynamo.Dynamics {
	return &nanJacobianAfter{Dynamics: d.Dynamics.Clone(), at: d.at}
}

// concaveTerminal reports a negative definite terminal Hessian, so the value
// function starts out indefinite.
type concaveTerminal struct {
	dynamo.Cost
}

func (c *concaveTerminal) TerminalApprox(mode int, t float64, x dynamo.State) dynamo.QuadraticApproximation {
	q := c.Cost.TerminalApprox(mode, t, x)
	n, _ := q.Dxx.Dims()
	dxx := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		dxx.Set(i, i, -100)
	}
	q.Dxx = dxx
	return q
}

func (c *concaveTerminal) Clone() dynamo.Cost {
	return &concaveTerminal{Cost: c.Cost.Clone()}
}

type passEvent struct {
	pass      Pass
	partition int
	done      bool
}

// passRecorder keeps the order of partition events.
type passRecorder struct {
	mu     sync.Mutex
	events []passEvent
}

func (r *passRecorder) OnPartitionStart(pass Pass, partition int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, passEvent{pass: pass, partition: partition})
}

func (r *passRecorder) OnPartitionDone(pass Pass, partition int, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, passEvent{pass: pass, partition: partition, done: true})
}

func (r *passRecorder) backward() []passEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []passEvent
	for _, e := range r.events {
		if e.pass == PassBackward {
			out = append(out, e)
		}
	}
	return out
}

type iterationRecorder struct {
	records []IterationRecord
	status  *Status
}

func (r *iterationRecorder) OnIteration(rec IterationRecord) { r.records = append(r.records, rec) }

func (r *iterationRecorder) OnFinish(st Status) { r.status = &st }
