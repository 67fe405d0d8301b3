package slq

import (
	"context"
	"fmt"

	"github.com/san-kum/hybridslq/internal/lq"
	"github.com/san-kum/hybridslq/internal/pool"
	"github.com/san-kum/hybridslq/internal/riccati"
)

// backward sweeps the value function over the partitions in reverse time
// order and computes the gains of every node.
//
// The pass is a task graph: the sweep of partition k waits for the sweep of
// partition k+1, which hands over the terminal value of k. Gain computation
// for partition k only needs its own sweep, so it overlaps with the sweep of
// partition k-1.
func (s *Solver) backward(ctx context.Context, model *lq.Model) ([][]riccati.Gain, error) {
	np := len(model.Partitions)
	terminals := make([]riccati.Value, np)
	values := make([][]riccati.Value, np)
	gains := make([][]riccati.Gain, np)
	terminals[np-1] = riccati.TerminalValue(model.Terminal)
	constrained := !s.settings.NoStateConstraints

	var g pool.Graph
	prev := -1
	for k := np - 1; k >= 0; k-- {
		var deps []int
		if prev >= 0 {
			deps = append(deps, prev)
		}
		sweep := g.Add(fmt.Sprintf("riccati/%d", k), func(ctx context.Context, slot int) error {
			started := s.partitionStart(PassBackward, k)
			err := s.sweepPartition(ctx, s.workers[slot], model, k, terminals, values)
			s.partitionDone(PassBackward, k, started, err)
			return err
		}, deps...)

		g.Add(fmt.Sprintf("gains/%d", k), func(ctx context.Context, slot int) error {
			gs, err := riccati.Gains(model.Partitions[k], values[k], constrained)
			if err != nil {
				return err
			}
			gains[k] = gs
			return nil
		}, sweep)
		prev = sweep
	}

	if err := s.pool.Run(ctx, &g); err != nil {
		return nil, err
	}
	return gains, nil
}

// sweepPartition integrates partition k and writes the terminal value of
// partition k-1 before returning.
func (s *Solver) sweepPartition(ctx context.Context, w *worker, model *lq.Model, k int, terminals []riccati.Value, values [][]riccati.Value) error {
	nodes := model.Partitions[k]
	vals, err := w.sweeper.Sweep(ctx, nodes, terminals[k])
	if err != nil {
		return err
	}
	values[k] = vals
	if k == 0 {
		return nil
	}

	prevNodes := model.Partitions[k-1]
	last := &prevNodes[len(prevNodes)-1]
	if nodes[0].PostEvent {
		terminals[k-1] = w.sweeper.AcrossEvent(last, vals[0])
	} else {
		terminals[k-1] = vals[0].Clone()
	}
	return nil
}
