// Package control provides the time-varying policies produced by the optimizer.
//
// A [Controller] is a tagged variant:
//
//   - [Linear]: u = K(t) x + b(t), the affine feedback law of an SLQ iteration
//   - [Feedforward]: u = b(t), an open-loop input sequence
//
// Samples live on a strictly increasing time grid and are interpolated
// linearly in between; outside the grid the first or last sample is held.
//
// # Serialization
//
// Flatten writes the controller at one time into a flat array, gain rows
// first then bias. UnFlatten rebuilds a controller from a time array and one
// flat array per time:
//
//	times := ctrl.Times
//	rows := make([][]float64, len(times))
//	for i, t := range times {
//		rows[i] = ctrl.Flatten(t)
//	}
//	restored := control.NewLinear(n, m)
//	err := restored.UnFlatten(times, rows)
package control
