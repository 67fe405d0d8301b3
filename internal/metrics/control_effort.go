package metrics

import (
	"math"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

// NewControlEffort integrates the L1 norm of the input, ∫ Σ|u_i| dt.
func NewControlEffort() *Integral {
	return NewIntegral("control_effort", func(_ int, _ float64, _ dynamo.State, u dynamo.Control) float64 {
		sum := 0.0
		for _, v := range u {
			sum += math.Abs(v)
		}
		return sum
	})
}

// NewInputEnergy integrates the squared input norm, ∫ |u|² dt.
func NewInputEnergy() *Integral {
	return NewIntegral("input_energy", func(_ int, _ float64, _ dynamo.State, u dynamo.Control) float64 {
		sum := 0.0
		for _, v := range u {
			sum += v * v
		}
		return sum
	})
}
