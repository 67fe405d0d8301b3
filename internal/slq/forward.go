package slq

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/control"
	"github.com/san-kum/hybridslq/internal/lq"
	"github.com/san-kum/hybridslq/internal/riccati"
	"github.com/san-kum/hybridslq/internal/rollout"
)

// step is one evaluated line-search candidate.
type step struct {
	alpha    float64
	parts    []*control.Controller
	trajs    []*rollout.Trajectory
	perf     PerformanceIndex
	accepted bool
}

// candidate builds u = ū + α·l + K·(x - x̄) on the node grid of every
// partition, stored as a linear controller with bias ū + α·l - K·x̄.
func (s *Solver) candidate(model *lq.Model, gains [][]riccati.Gain, alpha float64) ([]*control.Controller, error) {
	n, m := s.problem.Dynamics.StateDim(), s.problem.Dynamics.InputDim()
	parts := make([]*control.Controller, len(model.Partitions))
	var kx mat.VecDense
	for k, nodes := range model.Partitions {
		c := control.NewLinear(n, m)
		for i := range nodes {
			node, gain := &nodes[i], gains[k][i]
			kx.MulVec(gain.K, node.X.Vec())
			bias := node.U.Clone()
			floats.AddScaled(bias, alpha, gain.L.RawVector().Data)
			floats.Sub(bias, kx.RawVector().Data)
			if err := c.Append(node.Time, gain.K, bias); err != nil {
				return nil, err
			}
		}
		parts[k] = c
	}
	return parts, nil
}

// try rolls a candidate out and scores it.
func (s *Solver) try(ctx context.Context, w *worker, r *run, model *lq.Model, gains [][]riccati.Gain, alpha, penalty float64) (step, error) {
	parts, err := s.candidate(model, gains, alpha)
	if err != nil {
		return step{}, err
	}
	policies := make([]rollout.Policy, len(parts))
	for k, p := range parts {
		policies[k] = p
	}
	trajs, err := s.rolloutAll(ctx, w, policies, r.x0, r.partitions)
	if err != nil {
		return step{}, err
	}
	return step{alpha: alpha, parts: parts, trajs: trajs, perf: w.eval.Evaluate(trajs, penalty)}, nil
}

// lineSearch looks for a step whose merit beats the baseline by more than
// the noise tolerance. The greedy variant takes the first such step from the
// largest down; the exhaustive one scores every step in parallel and keeps
// the best. A diverging candidate fails the search.
func (s *Solver) lineSearch(ctx context.Context, r *run, model *lq.Model, gains [][]riccati.Gain, baseline PerformanceIndex, penalty float64) (step, error) {
	threshold := baseline.Merit - s.settings.LineSearchNoiseTolerance*math.Max(1, math.Abs(baseline.Merit))
	// While type-1 constraints are violated, a step that restores
	// feasibility is accepted even if it costs more.
	restoring := !s.settings.NoStateConstraints && baseline.ISE1 >= s.settings.MinRelConstraint1ISE
	acceptable := func(st step) bool {
		if !st.perf.finite() {
			return false
		}
		if st.perf.Merit < threshold {
			return true
		}
		return restoring && st.perf.ISE1 < baseline.ISE1-s.settings.MinRelConstraint1ISE
	}
	rates := s.settings.LearningRates()

	if s.settings.LSStepsizeGreedy {
		w := s.coordinator()
		for _, alpha := range rates {
			st, err := s.try(ctx, w, r, model, gains, alpha, penalty)
			if err != nil {
				return step{}, err
			}
			if acceptable(st) {
				st.accepted = true
				return st, nil
			}
		}
		return step{}, nil
	}

	steps := make([]step, len(rates))
	err := s.pool.ParallelFor(ctx, len(rates), func(ctx context.Context, slot, i int) error {
		st, err := s.try(ctx, s.workers[slot], r, model, gains, rates[i], penalty)
		if err != nil {
			return err
		}
		steps[i] = st
		return nil
	})
	if err != nil {
		return step{}, err
	}

	best := -1
	for i, st := range steps {
		if acceptable(st) && (best < 0 || st.perf.Merit < steps[best].perf.Merit) {
			best = i
		}
	}
	if best < 0 {
		return step{}, nil
	}
	steps[best].accepted = true
	return steps[best], nil
}
