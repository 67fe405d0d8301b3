// Package experiment turns a run configuration into a ready solver.
package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/hybridslq/internal/config"
	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/problems"
	"github.com/san-kum/hybridslq/internal/slq"
)

type Experiment struct {
	cfg    *config.Config
	solver *slq.Solver
}

func New(cfg *config.Config) *Experiment {
	return &Experiment{cfg: cfg}
}

// Setup builds the solver for the configured problem. The configuration's
// mode schedule, when present, replaces the problem's own.
func (e *Experiment) Setup(reg *problems.Registry, metrics []dynamo.Metric, opts ...slq.Option) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	p, err := reg.Get(e.cfg.Problem)
	if err != nil {
		return err
	}
	modes, err := e.cfg.Modes(p.Modes)
	if err != nil {
		return err
	}

	solver, err := slq.New(slq.Problem{
		Dynamics:    p.Dynamics,
		Cost:        p.Cost,
		Constraints: p.Constraints,
		Operating:   p.Operating,
		Modes:       modes,
	}, e.cfg.Settings, opts...)
	if err != nil {
		return err
	}
	for _, m := range metrics {
		solver.AddMetric(m)
	}
	if e.solver != nil {
		e.solver.Close()
	}
	e.solver = solver
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*slq.Result, error) {
	if e.solver == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.solver.Run(ctx, e.cfg.StartTime, e.cfg.GetInitState(), e.cfg.FinalTime, e.cfg.Boundaries())
}

// Close releases the solver's worker pool.
func (e *Experiment) Close() error {
	if e.solver == nil {
		return nil
	}
	err := e.solver.Close()
	e.solver = nil
	return err
}

func (e *Experiment) Config() *config.Config { return e.cfg }

// GetSolver returns the underlying solver for inspecting the last run.
func (e *Experiment) GetSolver() *slq.Solver {
	return e.solver
}

// Solve sets up, runs and closes an experiment in one go.
func Solve(ctx context.Context, cfg *config.Config, reg *problems.Registry, metrics []dynamo.Metric, opts ...slq.Option) (*slq.Result, error) {
	exp := New(cfg)
	if err := exp.Setup(reg, metrics, opts...); err != nil {
		return nil, err
	}
	defer exp.Close()
	return exp.Run(ctx)
}
