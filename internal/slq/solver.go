// Package slq implements sequential linear-quadratic optimal control for
// switched systems with a fixed mode schedule.
//
// Every outer iteration linearizes the problem along the nominal trajectory,
// integrates the Riccati equations backward over the time partitions and
// rolls candidate controllers forward in a line search. Work inside a stage
// runs on a fixed worker pool shared by all iterations.
package slq

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/hybridslq/internal/control"
	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/logging"
	"github.com/san-kum/hybridslq/internal/lq"
	"github.com/san-kum/hybridslq/internal/pool"
	"github.com/san-kum/hybridslq/internal/riccati"
	"github.com/san-kum/hybridslq/internal/rollout"
	"github.com/san-kum/hybridslq/internal/schedule"
)

// Problem is the optimal control problem handed to the solver. Constraints
// may be nil.
type Problem struct {
	Dynamics    dynamo.Dynamics
	Cost        dynamo.Cost
	Constraints dynamo.Constraints
	Operating   dynamo.OperatingTrajectories
	Modes       schedule.ModeSchedule
}

func (p Problem) validate() error {
	if p.Dynamics == nil || p.Cost == nil || p.Operating == nil {
		return fmt.Errorf("%w: dynamics, cost and operating trajectories are required", dynamo.ErrInvalidConfiguration)
	}
	return p.Modes.Validate()
}

// Result is the outcome of a run. Controller and Performance always hold the
// last accepted iterate, also when Status reports a failure.
type Result struct {
	Controller   *control.Controller
	Performance  PerformanceIndex
	Status       Status
	Iterations   int
	Trajectories []*rollout.Trajectory
	History      []IterationRecord
	Metrics      map[string]float64
	Elapsed      time.Duration
}

// worker holds the per-goroutine copies of everything that is not safe for
// concurrent use.
type worker struct {
	rollout *rollout.Rollout
	sweeper *riccati.Sweeper
	eval    *evaluator
}

type Solver struct {
	problem  Problem
	settings Settings
	pool     *pool.Pool
	builder  *lq.Builder
	workers  []*worker
	metrics  []dynamo.Metric

	passObservers []PassObserver
	iterObservers []IterationObserver

	mu   sync.Mutex
	last *Result
}

// New validates the problem and settings and starts the worker pool. Close
// releases the pool.
func New(problem Problem, settings Settings, opts ...Option) (*Solver, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := problem.validate(); err != nil {
		return nil, err
	}

	s := &Solver{problem: problem, settings: settings}
	for _, opt := range opts {
		opt(s)
	}

	s.pool = pool.New(settings.NThreads)
	proto := lq.Collaborators{Dynamics: problem.Dynamics, Cost: problem.Cost, Constraints: problem.Constraints}
	s.builder = lq.NewBuilder(s.pool, proto, !settings.NoStateConstraints)

	rs := rollout.Settings{
		Integrator:           settings.Integrator,
		AbsTol:               settings.AbsTolODE,
		RelTol:               settings.RelTolODE,
		MaxStep:              settings.MaxTimeStep,
		MaxNumStepsPerSecond: settings.MaxNumStepsPerSecond,
	}
	ro := riccati.Options{
		Integrator:           settings.Integrator,
		AbsTol:               settings.AbsTolODE,
		RelTol:               settings.RelTolODE,
		MaxNumStepsPerSecond: settings.MaxNumStepsPerSecond,
		Constrained:          !settings.NoStateConstraints,
		CheckStability:       settings.CheckNumericalStability,
		StabilityTolerance:   settings.StabilityTolerance,
	}

	s.workers = make([]*worker, s.pool.Size()+1)
	for i := range s.workers {
		c := proto.Clone()
		r, err := rollout.New(c.Dynamics, problem.Modes, rs)
		if err != nil {
			s.pool.Close()
			return nil, err
		}
		jumps, _ := c.Dynamics.(dynamo.JumpMapper)
		sw, err := riccati.NewSweeper(c.Dynamics.StateDim(), ro, jumps)
		if err != nil {
			s.pool.Close()
			return nil, err
		}
		eval := newEvaluator(c.Cost, c.Constraints)
		r.SetQuadrature(eval)
		s.workers[i] = &worker{rollout: r, sweeper: sw, eval: eval}
	}
	return s, nil
}

// AddMetric registers a metric evaluated on the final nominal trajectory.
func (s *Solver) AddMetric(m dynamo.Metric) { s.metrics = append(s.metrics, m) }

func (s *Solver) Settings() Settings { return s.settings }

func (s *Solver) Close() error {
	return s.pool.Close()
}

func (s *Solver) coordinator() *worker {
	return s.workers[s.pool.CoordinatorSlot()]
}

// run carries the state of one Run call.
type run struct {
	partitions schedule.Partitions
	x0         dynamo.State

	controller *control.Controller
	parts      []*control.Controller
	trajs      []*rollout.Trajectory
	perf       PerformanceIndex
	history    []IterationRecord
}

// Run optimizes the controller over [startTime, finalTime] split at
// partitionBoundaries, which must start at startTime and end at finalTime.
//
// The returned error is non-nil only for invalid input and context
// cancellation. Algorithmic failures are reported in Result.Status together
// with the last accepted controller.
func (s *Solver) Run(ctx context.Context, startTime float64, x0 dynamo.State, finalTime float64, partitionBoundaries []float64) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logging.FromContext(ctx).WithName("slq")
	began := time.Now()

	partitions, err := schedule.NewPartitions(startTime, finalTime, partitionBoundaries)
	if err != nil {
		return nil, err
	}
	if n := s.problem.Dynamics.StateDim(); len(x0) != n {
		return nil, fmt.Errorf("%w: %w: initial state has %d entries, want %d",
			dynamo.ErrInvalidConfiguration, dynamo.ErrDimensionMismatch, len(x0), n)
	}
	if !x0.IsValid() {
		return nil, fmt.Errorf("%w: %w", dynamo.ErrInvalidConfiguration, dynamo.ErrInvalidState)
	}

	r := &run{partitions: partitions, x0: x0.Clone()}
	log.V(logging.DEBUG).Info("Starting run", "partitions", partitions.Len(), "threads", s.settings.NThreads,
		"start", startTime, "final", finalTime)

	status, err := s.initialize(ctx, r)
	if err != nil {
		return nil, err
	}
	if status.State != Failed && s.settings.MaxNumIterations > 0 {
		status, err = s.iterate(ctx, r, log)
		if err != nil {
			return nil, err
		}
	}

	res := &Result{
		Controller:   r.controller,
		Performance:  r.perf,
		Status:       status,
		Iterations:   len(r.history) - 1,
		Trajectories: r.trajs,
		History:      r.history,
		Metrics:      s.collectMetrics(r.trajs),
		Elapsed:      time.Since(began),
	}
	if res.Iterations < 0 {
		res.Iterations = 0
	}
	s.last = res
	s.finished(status)
	s.summarize(log, res)
	return res, nil
}

// initialize rolls out the operating trajectories. A diverging initial
// rollout is a failure with an empty controller.
func (s *Solver) initialize(ctx context.Context, r *run) (Status, error) {
	w := s.coordinator()
	policies := make([]rollout.Policy, r.partitions.Len())
	for k := range policies {
		policies[k] = rollout.Operating{Trajectories: s.problem.Operating}
	}
	trajs, err := s.rolloutAll(ctx, w, policies, r.x0, r.partitions)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Status{}, ctxErr
		}
		r.controller = control.NewFeedforward(s.problem.Dynamics.InputDim())
		return failed(err), nil
	}

	parts := make([]*control.Controller, len(trajs))
	for k, tr := range trajs {
		parts[k] = control.NewFeedforward(s.problem.Dynamics.InputDim())
		for i := range tr.Times {
			if err := parts[k].Append(tr.Times[i], nil, tr.Inputs[i]); err != nil {
				return Status{}, err
			}
		}
	}
	ctrl, err := control.Concat(parts...)
	if err != nil {
		return Status{}, err
	}

	r.controller, r.parts, r.trajs = ctrl, parts, trajs
	r.perf = w.eval.Evaluate(trajs, s.settings.Penalty(0))
	rec := IterationRecord{Iteration: 0, Performance: r.perf}
	r.history = append(r.history, rec)
	s.iterationDone(rec)

	if s.settings.MaxNumIterations == 0 {
		return converged(ReasonNoIterations), nil
	}
	return Status{State: Initializing}, nil
}

func (s *Solver) iterate(ctx context.Context, r *run, log logr.Logger) (Status, error) {
	infoLevel := logging.VERBOSE
	if s.settings.DisplayInfo {
		infoLevel = logging.DEFAULT
	}

	for iter := 1; iter <= s.settings.MaxNumIterations; iter++ {
		started := time.Now()
		penalty := s.settings.Penalty(iter)
		baseline := r.perf.WithPenalty(penalty)

		model, err := s.builder.Build(ctx, r.trajs, penalty)
		if err != nil {
			return s.stageFailed(ctx, log, BuildingModel, iter, err)
		}

		gains, err := s.backward(ctx, model)
		if err != nil {
			return s.stageFailed(ctx, log, BackwardPass, iter, err)
		}

		step, err := s.lineSearch(ctx, r, model, gains, baseline, penalty)
		if err != nil {
			return s.stageFailed(ctx, log, ForwardPass, iter, err)
		}
		if !step.accepted {
			log.V(infoLevel).Info("Line search found no improvement", "iteration", iter, "merit", baseline.Merit)
			return converged(ReasonLineSearch), nil
		}

		ctrl, err := control.Concat(step.parts...)
		if err != nil {
			return Status{}, err
		}
		r.controller, r.parts, r.trajs, r.perf = ctrl, step.parts, step.trajs, step.perf

		rec := IterationRecord{Iteration: iter, Performance: step.perf, LearningRate: step.alpha, Elapsed: time.Since(started)}
		r.history = append(r.history, rec)
		s.iterationDone(rec)

		change := math.Abs(step.perf.Merit - baseline.Merit)
		log.V(infoLevel).Info("Iteration done", "iteration", iter, "cost", step.perf.Cost, "merit", step.perf.Merit,
			"ise1", step.perf.ISE1, "ise2", step.perf.ISE2, "learningRate", step.alpha, "costChange", change,
			"elapsed", rec.Elapsed)

		if s.settings.settled(change, step.perf) {
			return converged(ReasonCostChange), nil
		}
	}
	return converged(ReasonMaxIterations), nil
}

// stageFailed turns a stage error into a failed status. Cancellation is
// returned to the caller instead.
func (s *Solver) stageFailed(ctx context.Context, log logr.Logger, stage State, iter int, err error) (Status, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Status{}, ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Status{}, err
	}
	log.Error(err, "Stage failed, keeping previous controller", "stage", stage.String(), "iteration", iter)
	return failed(err), nil
}

// rolloutAll integrates the partitions in time order, handing the final state
// of each partition to the next.
func (s *Solver) rolloutAll(ctx context.Context, w *worker, policies []rollout.Policy, x0 dynamo.State, partitions schedule.Partitions) ([]*rollout.Trajectory, error) {
	trajs := make([]*rollout.Trajectory, partitions.Len())
	x := x0
	for k := range trajs {
		lo, hi := partitions.Span(k)
		seg := rollout.Segment{
			Partition:   k,
			Start:       lo,
			Final:       hi,
			X0:          x,
			JumpAtStart: k > 0 && s.problem.Modes.IsEvent(lo),
		}
		started := s.partitionStart(PassForward, k)
		tr, err := w.rollout.Run(ctx, policies[k], seg)
		s.partitionDone(PassForward, k, started, err)
		if err != nil {
			return nil, err
		}
		trajs[k] = tr
		x = tr.Final()
	}
	return trajs, nil
}

func (s *Solver) collectMetrics(trajs []*rollout.Trajectory) map[string]float64 {
	out := make(map[string]float64, len(s.metrics))
	if len(s.metrics) == 0 {
		return out
	}
	for _, m := range s.metrics {
		m.Reset()
	}
	for _, tr := range trajs {
		for i := range tr.Times {
			for _, m := range s.metrics {
				m.Observe(tr.Modes[i], tr.Times[i], tr.States[i], tr.Inputs[i])
			}
		}
	}
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

func (s *Solver) summarize(log logr.Logger, res *Result) {
	level := logging.VERBOSE
	if s.settings.DisplayShortSummary {
		level = logging.DEFAULT
	}
	kv := []any{
		"status", res.Status.State.String(), "reason", res.Status.Reason, "iterations", res.Iterations,
		"cost", res.Performance.Cost, "ise1", res.Performance.ISE1, "ise2", res.Performance.ISE2,
		"elapsed", res.Elapsed,
	}
	if res.Status.State == Failed {
		kv = append(kv, "failure", res.Status.Failure.String())
	}
	log.V(level).Info("Run finished", kv...)
}

// GetController returns the controller of the last run, or nil.
func (s *Solver) GetController() *control.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	return s.last.Controller
}

// GetPerformanceIndex returns the performance of the last run.
func (s *Solver) GetPerformanceIndex() PerformanceIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return PerformanceIndex{}
	}
	return s.last.Performance
}

// GetNominalTrajectories returns the trajectories of the last accepted iterate.
func (s *Solver) GetNominalTrajectories() []*rollout.Trajectory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	return s.last.Trajectories
}

// GetIterationsLog returns the performance of every accepted iterate,
// starting with the initial rollout.
func (s *Solver) GetIterationsLog() []PerformanceIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	out := make([]PerformanceIndex, len(s.last.History))
	for i, h := range s.last.History {
		out[i] = h.Performance
	}
	return out
}
