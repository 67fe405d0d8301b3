package integrators

import (
	"math"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// RK45 is an adaptive Dormand-Prince 5(4) integrator with FSAL stages.
type RK45 struct {
	safety   float64
	minScale float64
	maxScale float64

	k1, k2, k3, k4, k5, k6, k7 []float64
	scratch, next              []float64
}

func NewRK45() *RK45 {
	return &RK45{
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
	}
}

func (r *RK45) ensureScratch(n int) {
	r.k1, r.k2, r.k3 = ensure(r.k1, n), ensure(r.k2, n), ensure(r.k3, n)
	r.k4, r.k5, r.k6 = ensure(r.k4, n), ensure(r.k5, n), ensure(r.k6, n)
	r.k7 = ensure(r.k7, n)
	r.scratch, r.next = ensure(r.scratch, n), ensure(r.next, n)
}

func (r *RK45) Integrate(f Func, y []float64, t0, t1 float64, opts Options, observe Observer) error {
	if t0 == t1 {
		return nil
	}
	n := len(y)
	r.ensureScratch(n)

	dir := 1.0
	if t1 < t0 {
		dir = -1.0
	}
	span := math.Abs(t1 - t0)
	maxStep := span
	if opts.MaxStep > 0 && opts.MaxStep < span {
		maxStep = opts.MaxStep
	}
	absTol, relTol := opts.AbsTol, opts.RelTol
	if absTol <= 0 {
		absTol = 1e-9
	}
	if relTol <= 0 {
		relTol = 1e-6
	}

	t := t0
	f(t, y, r.k1)
	if !finite(r.k1) {
		return dynamo.ErrInvalidState
	}
	h := r.initialStep(y, r.k1, maxStep, absTol, relTol)

	attempts := 0
	for {
		remaining := math.Abs(t1 - t)
		if remaining <= 0 {
			return nil
		}
		if opts.MaxSteps > 0 && attempts >= opts.MaxSteps {
			return dynamo.ErrStepBudget
		}
		attempts++

		last := false
		if h >= remaining {
			h = remaining
			last = true
		}
		if h <= 16*machineEps*math.Max(1, math.Abs(t)) {
			return dynamo.ErrStepTooSmall
		}

		errNorm := r.step(f, y, t, dir*h, absTol, relTol)

		if errNorm <= 1 {
			if last {
				t = t1
			} else {
				t += dir * h
			}
			copy(y, r.next)
			r.k1, r.k7 = r.k7, r.k1
			if observe != nil {
				if err := observe(t, y); err != nil {
					return err
				}
			}
			scale := r.maxScale
			if errNorm > 0 {
				scale = math.Min(r.maxScale, r.safety*math.Pow(errNorm, -0.2))
			}
			h = math.Min(h*scale, maxStep)
			continue
		}

		scale := r.minScale
		if !math.IsInf(errNorm, 1) && !math.IsNaN(errNorm) {
			scale = math.Max(r.minScale, r.safety*math.Pow(errNorm, -0.25))
		}
		h *= scale
	}
}

// step performs one trial step from (t, y) with signed length dt, writing the
// candidate into r.next and the stage at the candidate into r.k7. It returns
// the scaled error norm; non-finite stages yield +Inf.
func (r *RK45) step(f Func, y []float64, t, dt, absTol, relTol float64) float64 {
	n := len(y)
	x := r.scratch

	for i := 0; i < n; i++ {
		x[i] = y[i] + dt*b21*r.k1[i]
	}
	f(t+a2*dt, x, r.k2)

	for i := 0; i < n; i++ {
		x[i] = y[i] + dt*(b31*r.k1[i]+b32*r.k2[i])
	}
	f(t+a3*dt, x, r.k3)

	for i := 0; i < n; i++ {
		x[i] = y[i] + dt*(b41*r.k1[i]+b42*r.k2[i]+b43*r.k3[i])
	}
	f(t+a4*dt, x, r.k4)

	for i := 0; i < n; i++ {
		x[i] = y[i] + dt*(b51*r.k1[i]+b52*r.k2[i]+b53*r.k3[i]+b54*r.k4[i])
	}
	f(t+a5*dt, x, r.k5)

	for i := 0; i < n; i++ {
		x[i] = y[i] + dt*(b61*r.k1[i]+b62*r.k2[i]+b63*r.k3[i]+b64*r.k4[i]+b65*r.k5[i])
	}
	f(t+dt, x, r.k6)

	for i := 0; i < n; i++ {
		r.next[i] = y[i] + dt*(c1*r.k1[i]+c3*r.k3[i]+c4*r.k4[i]+c5*r.k5[i]+c6*r.k6[i])
	}
	if !finite(r.next) {
		return math.Inf(1)
	}

	f(t+dt, r.next, r.k7)
	if !finite(r.k7) {
		return math.Inf(1)
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		errEst := dt * (dc1*r.k1[i] + dc3*r.k3[i] + dc4*r.k4[i] + dc5*r.k5[i] + dc6*r.k6[i] + dc7*r.k7[i])
		scale := absTol + relTol*math.Max(math.Abs(y[i]), math.Abs(r.next[i]))
		e := errEst / scale
		sum += e * e
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

func (r *RK45) initialStep(y, dy []float64, maxStep, absTol, relTol float64) float64 {
	d0, d1 := 0.0, 0.0
	for i := range y {
		scale := absTol + relTol*math.Abs(y[i])
		d0 += (y[i] / scale) * (y[i] / scale)
		d1 += (dy[i] / scale) * (dy[i] / scale)
	}
	h := 0.01 * maxStep
	if d0 > 1e-10 && d1 > 1e-10 {
		h = 0.01 * math.Sqrt(d0/d1)
	}
	return math.Min(math.Max(h, 1e-6*maxStep), maxStep)
}
