// Package problems ships ready-made optimal control problems: the switched
// systems used for regression runs and demos.
package problems

import (
	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/schedule"
)

// Problem is everything the solver needs besides settings and partitions.
type Problem struct {
	Name        string
	Description string

	Dynamics    dynamo.Dynamics
	Cost        dynamo.Cost
	Constraints dynamo.Constraints
	Modes       schedule.ModeSchedule
	Operating   dynamo.OperatingTrajectories

	X0    dynamo.State
	Start float64
	Final float64
}
