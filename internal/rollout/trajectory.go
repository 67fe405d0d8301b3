package rollout

import "github.com/san-kum/hybridslq/internal/dynamo"

// Trajectory is the sampled result of one partition rollout. Times are
// strictly increasing; a switching event at t_e appears as a pre-event sample
// at t_e followed by a post-event sample at the next float after t_e.
type Trajectory struct {
	Partition int
	Times     []float64
	States    []dynamo.State
	Inputs    []dynamo.Control
	Modes     []int
	// Events holds the indices of post-event samples. Index 0 appears when
	// the partition starts right after a switch at its left boundary.
	Events []int
	// Integrals holds the quadrature values accumulated over the partition,
	// nil when the rollout had no quadrature.
	Integrals []float64
}

func (tr *Trajectory) Len() int { return len(tr.Times) }

func (tr *Trajectory) append(t float64, x dynamo.State, u dynamo.Control, mode int) {
	tr.Times = append(tr.Times, t)
	tr.States = append(tr.States, x.Clone())
	tr.Inputs = append(tr.Inputs, u)
	tr.Modes = append(tr.Modes, mode)
}

// Final returns the last state, or nil for an empty trajectory.
func (tr *Trajectory) Final() dynamo.State {
	if len(tr.States) == 0 {
		return nil
	}
	return tr.States[len(tr.States)-1]
}

func (tr *Trajectory) FinalTime() float64 {
	return tr.Times[len(tr.Times)-1]
}

// IsPostEvent reports whether sample i directly follows a switching event.
func (tr *Trajectory) IsPostEvent(i int) bool {
	for _, e := range tr.Events {
		if e == i {
			return true
		}
	}
	return false
}
