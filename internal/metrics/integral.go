package metrics

import "github.com/san-kum/hybridslq/internal/dynamo"

// SampleFunc evaluates an integrand at one trajectory sample.
type SampleFunc func(mode int, t float64, x dynamo.State, u dynamo.Control) float64

// Integral accumulates ∫ f dt over consecutive samples with the trapezoidal
// rule. Samples must arrive in non-decreasing time order; repeated times add
// nothing, so partition boundaries can be observed twice.
type Integral struct {
	name    string
	f       SampleFunc
	sum     float64
	lastT   float64
	lastV   float64
	started bool
}

func NewIntegral(name string, f SampleFunc) *Integral {
	return &Integral{name: name, f: f}
}

func (m *Integral) Name() string { return m.name }

func (m *Integral) Observe(mode int, t float64, x dynamo.State, u dynamo.Control) {
	v := m.f(mode, t, x, u)
	if m.started {
		m.sum += 0.5 * (v + m.lastV) * (t - m.lastT)
	}
	m.lastT, m.lastV = t, v
	m.started = true
}

func (m *Integral) Value() float64 { return m.sum }

func (m *Integral) Reset() {
	m.sum = 0
	m.started = false
}

// SquaredNorm turns a vector-valued residual into the integrand |r|².
func SquaredNorm(r func(mode int, t float64, x dynamo.State, u dynamo.Control) []float64) SampleFunc {
	return func(mode int, t float64, x dynamo.State, u dynamo.Control) float64 {
		sum := 0.0
		for _, v := range r(mode, t, x, u) {
			sum += v * v
		}
		return sum
	}
}

// Collect reads every metric into a map keyed by name.
func Collect(ms ...dynamo.Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
