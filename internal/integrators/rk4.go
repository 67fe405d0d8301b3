package integrators

import (
	"math"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

// RK4 is the classical fixed-step Runge-Kutta method. The step is
// Options.MaxStep, shortened so that the last step lands on t1.
type RK4 struct {
	k1, k2, k3, k4 []float64
	scratch        []float64
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	r.k1, r.k2 = ensure(r.k1, n), ensure(r.k2, n)
	r.k3, r.k4 = ensure(r.k3, n), ensure(r.k4, n)
	r.scratch = ensure(r.scratch, n)
}

func (r *RK4) Integrate(f Func, y []float64, t0, t1 float64, opts Options, observe Observer) error {
	r.ensureScratch(len(y))
	return fixedStep(y, t0, t1, opts, observe, func(t, dt float64) {
		r.step(f, y, t, dt)
	})
}

func (r *RK4) step(f Func, y []float64, t, dt float64) {
	n := len(y)

	f(t, y, r.k1)

	for i := 0; i < n; i++ {
		r.scratch[i] = y[i] + dt*0.5*r.k1[i]
	}
	f(t+dt*0.5, r.scratch, r.k2)

	for i := 0; i < n; i++ {
		r.scratch[i] = y[i] + dt*0.5*r.k2[i]
	}
	f(t+dt*0.5, r.scratch, r.k3)

	for i := 0; i < n; i++ {
		r.scratch[i] = y[i] + dt*r.k3[i]
	}
	f(t+dt, r.scratch, r.k4)

	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		y[i] += dt6 * (r.k1[i] + 2*r.k2[i] + 2*r.k3[i] + r.k4[i])
	}
}

// fixedStep drives a one-step method from t0 to t1 in either direction.
func fixedStep(y []float64, t0, t1 float64, opts Options, observe Observer, step func(t, dt float64)) error {
	span := math.Abs(t1 - t0)
	if span == 0 {
		return nil
	}
	h := opts.MaxStep
	if h <= 0 || h > span {
		h = span
	}
	n := int(math.Ceil(span/h - 1e-9))
	if opts.MaxSteps > 0 && n > opts.MaxSteps {
		return dynamo.ErrStepBudget
	}
	dt := (t1 - t0) / float64(n)

	for i := 0; i < n; i++ {
		t := t0 + float64(i)*dt
		step(t, dt)
		if !finite(y) {
			return dynamo.ErrInvalidState
		}
		next := t0 + float64(i+1)*dt
		if i == n-1 {
			next = t1
		}
		if observe != nil {
			if err := observe(next, y); err != nil {
				return err
			}
		}
	}
	return nil
}
