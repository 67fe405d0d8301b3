package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

func TestRK4Accuracy(t *testing.T) {
	y := []float64{1.0, 0.0}
	if err := NewRK4().Integrate(harmonicOscillator, y, 0, 1, Options{MaxStep: 0.01}, nil); err != nil {
		t.Fatal(err)
	}

	if math.Abs(y[0]-math.Cos(1)) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", y[0], math.Cos(1))
	}
	if math.Abs(y[1]+math.Sin(1)) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", y[1], -math.Sin(1))
	}
}

func TestFixedStepLandsOnEndpoint(t *testing.T) {
	var last float64
	steps := 0
	observe := func(t float64, _ []float64) error {
		last = t
		steps++
		return nil
	}
	y := []float64{1.0, 0.0}
	if err := NewEuler().Integrate(harmonicOscillator, y, 0.3, 0.0, Options{MaxStep: 0.07}, observe); err != nil {
		t.Fatal(err)
	}
	if last != 0 {
		t.Errorf("last time = %v, want 0", last)
	}
	if steps != 5 {
		t.Errorf("steps = %d, want 5", steps)
	}
}

func TestFixedStepBudgetAndNaN(t *testing.T) {
	y := []float64{1.0, 0.0}
	err := NewRK4().Integrate(harmonicOscillator, y, 0, 1, Options{MaxStep: 0.001, MaxSteps: 10}, nil)
	if !errors.Is(err, dynamo.ErrStepBudget) {
		t.Errorf("expected ErrStepBudget, got %v", err)
	}

	nan := func(t float64, y, dy []float64) { dy[0] = math.NaN() }
	err = NewEuler().Integrate(nan, []float64{0}, 0, 1, Options{MaxStep: 0.1}, nil)
	if !errors.Is(err, dynamo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}
