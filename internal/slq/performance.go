package slq

import (
	"math"

	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/rollout"
)

// PerformanceIndex summarizes a rolled out trajectory.
type PerformanceIndex struct {
	// Cost is the integrated intermediate cost plus the terminal cost.
	Cost float64 `json:"cost" yaml:"cost"`
	// ISE1 is the integral of the squared type-1 (state-input) constraint violation.
	ISE1 float64 `json:"ise1" yaml:"ise1"`
	// ISE2 is the integral of the squared type-2 (state-only) constraint violation.
	ISE2    float64 `json:"ise2" yaml:"ise2"`
	Penalty float64 `json:"penalty" yaml:"penalty"`
	// Merit is Cost + ½·Penalty·ISE2; the line search compares merits.
	Merit float64 `json:"merit" yaml:"merit"`
}

// WithPenalty recomputes the merit for another penalty weight.
func (p PerformanceIndex) WithPenalty(penalty float64) PerformanceIndex {
	p.Penalty = penalty
	p.Merit = p.Cost + 0.5*penalty*p.ISE2
	return p
}

func (p PerformanceIndex) finite() bool {
	for _, v := range []float64{p.Cost, p.ISE1, p.ISE2, p.Merit} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// evaluator scores trajectories. It is the quadrature of the rollouts it
// scores: running cost, ISE1 and ISE2 are integrated together with the
// state. It owns cloned collaborators and must stay on one goroutine.
type evaluator struct {
	cost dynamo.Cost
	cons dynamo.Constraints
}

func newEvaluator(cost dynamo.Cost, cons dynamo.Constraints) *evaluator {
	return &evaluator{cost: cost, cons: cons}
}

const (
	quadCost = iota
	quadISE1
	quadISE2
	quadDim
)

func (e *evaluator) Dim() int { return quadDim }

func (e *evaluator) Integrand(mode int, t float64, x dynamo.State, u dynamo.Control, out []float64) {
	out[quadCost] = e.cost.Intermediate(mode, t, x, u)
	out[quadISE1], out[quadISE2] = 0, 0
	if e.cons == nil {
		return
	}
	out[quadISE1] = squaredNorm(e.cons.StateInput(mode, t, x, u))
	out[quadISE2] = squaredNorm(e.cons.StateOnly(mode, t, x))
}

func squaredNorm(l dynamo.LinearApproximation) float64 {
	var sum float64
	for i := 0; i < l.Len(); i++ {
		v := l.Value.AtVec(i)
		sum += v * v
	}
	return sum
}

// Evaluate adds up the partition integrals and the terminal cost. A
// trajectory rolled out without quadrature scores NaN.
func (e *evaluator) Evaluate(trajs []*rollout.Trajectory, penalty float64) PerformanceIndex {
	var sums [quadDim]float64
	for _, tr := range trajs {
		if len(tr.Integrals) != quadDim {
			nan := math.NaN()
			return PerformanceIndex{Cost: nan, ISE1: nan, ISE2: nan}.WithPenalty(penalty)
		}
		for i, v := range tr.Integrals {
			sums[i] += v
		}
	}

	last := trajs[len(trajs)-1]
	n := last.Len() - 1
	terminal := e.cost.Terminal(last.Modes[n], last.Times[n], last.States[n])

	p := PerformanceIndex{
		Cost: sums[quadCost] + terminal,
		ISE1: sums[quadISE1],
		ISE2: sums[quadISE2],
	}
	return p.WithPenalty(penalty)
}
