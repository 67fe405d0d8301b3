package integrators

// Euler is the explicit first-order method. Mostly useful as a reference in tests.
type Euler struct {
	dy []float64
}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Integrate(f Func, y []float64, t0, t1 float64, opts Options, observe Observer) error {
	e.dy = ensure(e.dy, len(y))
	return fixedStep(y, t0, t1, opts, observe, func(t, dt float64) {
		f(t, y, e.dy)
		for i := range y {
			y[i] += dt * e.dy[i]
		}
	})
}
