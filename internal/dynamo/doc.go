// Package dynamo provides the core primitives shared by the optimizer.
//
// The package defines the vector types and the collaborator interfaces a
// user implements to describe an optimal control problem on a switched
// system dX/dt = f_mode(t, X, u):
//
//   - [State], [Control]: plain float64 vectors
//   - [Dynamics]: flow map and Jacobians per subsystem
//   - [Cost]: intermediate and terminal cost with quadratic approximations
//   - [Constraints]: state-input and state-only equality constraints
//   - [OperatingTrajectories]: input guess for the first rollout
//
// # Example
//
//	dyn := problems.NewEXP0Dynamics()
//	A, B := dyn.Linearize(0, 0, dynamo.State{0, 2}, dynamo.Control{0})
//
// # Thread Safety
//
// Collaborators are NOT assumed to be thread-safe. Every worker of the
// solver owns its own copy obtained through Clone.
package dynamo
