package dynamo

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{1.0, 2.0, 3.0}, true},
		{"zeros", State{0.0, 0.0}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
		{"with +Inf", State{1.0, math.Inf(1)}, false},
		{"with -Inf", State{1.0, math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestState_Norm(t *testing.T) {
	tests := []struct {
		state    State
		expected float64
	}{
		{State{3, 4}, 5.0},
		{State{1, 0}, 1.0},
		{State{0, 0}, 0.0},
		{State{1, 1, 1, 1}, 2.0},
	}

	for _, tt := range tests {
		if got := tt.state.Norm(); math.Abs(got-tt.expected) > 1e-10 {
			t.Errorf("Norm(%v) = %v, want %v", tt.state, got, tt.expected)
		}
	}
}

func TestState_Arithmetic(t *testing.T) {
	a := State{1, 2, 3}
	b := State{4, 5, 6}

	sum := a.Add(b)
	if sum[0] != 5 || sum[1] != 7 || sum[2] != 9 {
		t.Errorf("Add failed: got %v", sum)
	}

	diff := b.Sub(a)
	if diff[0] != 3 || diff[1] != 3 || diff[2] != 3 {
		t.Errorf("Sub failed: got %v", diff)
	}

	scaled := a.Scale(2)
	if scaled[0] != 2 || scaled[1] != 4 || scaled[2] != 6 {
		t.Errorf("Scale failed: got %v", scaled)
	}
}

func TestState_VecSharesStorage(t *testing.T) {
	s := State{1, 2}
	v := s.Vec()
	v.SetVec(0, 7)
	if s[0] != 7 {
		t.Errorf("Vec should share storage, got %v", s)
	}
	if State(nil).Vec() != nil {
		t.Error("empty state should map to a nil vector")
	}
}

func TestOperatingPointReturnsCopy(t *testing.T) {
	op := OperatingPoint{U: Control{1.5}}
	u := op.Input(0.3)
	u[0] = 9
	if op.U[0] != 1.5 {
		t.Error("Input must not alias the operating point")
	}
}

func TestFinite(t *testing.T) {
	if !Finite(mat.NewDense(2, 2, []float64{1, 2, 3, 4})) {
		t.Error("expected finite matrix")
	}
	if Finite(mat.NewDense(1, 2, []float64{1, math.NaN()})) {
		t.Error("expected NaN to be detected")
	}
	if !Finite(nil) {
		t.Error("nil matrix is treated as finite")
	}
}

func TestDivergedChain(t *testing.T) {
	err := Diverged("rollout", 2, 1.25, ErrIntegrationDivergence, ErrStepBudget)

	if !errors.Is(err, ErrIntegrationDivergence) {
		t.Error("expected chain to contain ErrIntegrationDivergence")
	}
	if !errors.Is(err, ErrStepBudget) {
		t.Error("expected chain to contain the cause")
	}

	var de *DivergenceError
	if !errors.As(err, &de) {
		t.Fatal("expected a *DivergenceError")
	}
	if de.Partition != 2 || de.Time != 1.25 {
		t.Errorf("unexpected location: partition %d time %f", de.Partition, de.Time)
	}

	expected := "rollout: partition 2 (t=1.250000): dynamo: integration diverged: dynamo: integrator step budget exceeded"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}
