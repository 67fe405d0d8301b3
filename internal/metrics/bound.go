package metrics

import (
	"math"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

// Bound is the share of the observed horizon during which some state leaves
// the box |x_i| <= threshold. Time is weighted with the trapezoidal rule, so
// a step with one endpoint outside counts half. 0 means the state never
// left the box.
type Bound struct {
	outside     *Integral
	first, last float64
	started     bool
}

func NewBound(threshold float64) *Bound {
	return &Bound{
		outside: NewIntegral("state_bound", func(_ int, _ float64, x dynamo.State, _ dynamo.Control) float64 {
			for _, v := range x {
				if math.Abs(v) > threshold {
					return 1
				}
			}
			return 0
		}),
	}
}

func (b *Bound) Name() string { return b.outside.Name() }

func (b *Bound) Observe(mode int, t float64, x dynamo.State, u dynamo.Control) {
	if !b.started {
		b.first, b.started = t, true
	}
	b.last = t
	b.outside.Observe(mode, t, x, u)
}

func (b *Bound) Value() float64 {
	span := b.last - b.first
	if span <= 0 {
		return 0
	}
	return b.outside.Value() / span
}

func (b *Bound) Reset() {
	b.outside.Reset()
	b.started = false
}
