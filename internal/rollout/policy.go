package rollout

import "github.com/san-kum/hybridslq/internal/dynamo"

// Policy maps (t, x) to an input. *control.Controller implements it.
type Policy interface {
	ComputeInput(t float64, x dynamo.State) dynamo.Control
}

// Operating wraps operating trajectories as a state-independent policy.
type Operating struct {
	Trajectories dynamo.OperatingTrajectories
}

func (o Operating) ComputeInput(t float64, _ dynamo.State) dynamo.Control {
	return o.Trajectories.Input(t)
}
