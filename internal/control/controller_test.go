package control

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

func sampleLinear(t *testing.T) *Controller {
	t.Helper()
	c := NewLinear(2, 1)
	for i := 0; i < 5; i++ {
		ti := 0.25 * float64(i)
		k := mat.NewDense(1, 2, []float64{-1 - ti, 0.5 * ti})
		if err := c.Append(ti, k, dynamo.Control{math.Sin(ti)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return c
}

func TestComputeInput(t *testing.T) {
	c := sampleLinear(t)
	x := dynamo.State{1, 2}

	// u = K x + b at a sample
	u := c.ComputeInput(0.5, x)
	want := (-1.5)*1 + 0.25*2 + math.Sin(0.5)
	if math.Abs(u[0]-want) > 1e-12 {
		t.Errorf("ComputeInput(0.5) = %v, want %v", u[0], want)
	}

	// halfway between samples 0.5 and 0.75
	u = c.ComputeInput(0.625, x)
	k0 := -1.625*1 + 0.5*0.625*2
	b0 := 0.5*math.Sin(0.5) + 0.5*math.Sin(0.75)
	if math.Abs(u[0]-(k0+b0)) > 1e-12 {
		t.Errorf("ComputeInput(0.625) = %v, want %v", u[0], k0+b0)
	}

	// clamped outside the grid
	if got, want := c.ComputeInput(-3, x), c.ComputeInput(0, x); got[0] != want[0] {
		t.Errorf("expected clamp before grid: %v vs %v", got, want)
	}
	if got, want := c.ComputeInput(9, x), c.ComputeInput(1, x); got[0] != want[0] {
		t.Errorf("expected clamp after grid: %v vs %v", got, want)
	}
}

func TestFlattenRoundTrip(t *testing.T) {
	for _, kind := range []Kind{Linear, Feedforward} {
		t.Run(kind.String(), func(t *testing.T) {
			src := sampleLinear(t)
			if kind == Feedforward {
				ff := NewFeedforward(1)
				for i, ti := range src.Times {
					if err := ff.Append(ti, nil, src.Biases[i]); err != nil {
						t.Fatal(err)
					}
				}
				src = ff
			}

			rows := make([][]float64, src.Len())
			for i, ti := range src.Times {
				rows[i] = src.Flatten(ti)
				if len(rows[i]) != src.FlatSize() {
					t.Fatalf("Flatten length %d, want %d", len(rows[i]), src.FlatSize())
				}
			}

			restored := &Controller{Kind: kind, stateDim: src.stateDim, inputDim: src.inputDim}
			if err := restored.UnFlatten(src.Times, rows); err != nil {
				t.Fatalf("UnFlatten: %v", err)
			}

			x := dynamo.State{0.3, -1.7}
			for _, ti := range src.Times {
				got := restored.ComputeInput(ti, x)
				want := src.ComputeInput(ti, x)
				if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
					t.Errorf("t=%v mismatch (-want +got):\n%s", ti, diff)
				}
			}
		})
	}
}

func TestFlattenLayout(t *testing.T) {
	c := NewLinear(2, 2)
	k := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if err := c.Append(0, k, dynamo.Control{5, 6}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1, 2, 3, 4, 5, 6}, c.Flatten(0)); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestUnFlattenErrors(t *testing.T) {
	c := NewLinear(2, 1)
	err := c.UnFlatten([]float64{0, 1}, [][]float64{{1, 2, 3}})
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
	err = c.UnFlatten([]float64{0}, [][]float64{{1, 2}})
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
	err = c.UnFlatten([]float64{1, 1}, [][]float64{{1, 2, 3}, {1, 2, 3}})
	if err == nil {
		t.Error("expected error for non-increasing times")
	}
	if !c.Empty() {
		t.Error("failed UnFlatten must leave the controller empty")
	}
}

func TestAppendRejectsNonIncreasingTime(t *testing.T) {
	c := NewFeedforward(1)
	if err := c.Append(1, nil, dynamo.Control{0}); err != nil {
		t.Fatal(err)
	}
	if err := c.Append(1, nil, dynamo.Control{0}); err == nil {
		t.Error("expected error for repeated time")
	}
	if err := c.Append(2, nil, dynamo.Control{0, 1}); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}

func TestClearSetZeroClone(t *testing.T) {
	c := sampleLinear(t)
	clone := c.Clone()

	c.SetZero()
	if c.Len() != 5 {
		t.Errorf("SetZero changed the grid: %d samples", c.Len())
	}
	if u := c.ComputeInput(0.5, dynamo.State{1, 1}); u[0] != 0 {
		t.Errorf("expected zero input after SetZero, got %v", u)
	}
	if u := clone.ComputeInput(0.5, dynamo.State{1, 1}); u[0] == 0 {
		t.Error("clone must not share storage")
	}

	c.Clear()
	if !c.Empty() {
		t.Error("expected empty controller after Clear")
	}
	if u := c.ComputeInput(0.5, dynamo.State{1, 1}); len(u) != 1 || u[0] != 0 {
		t.Errorf("empty controller should return zero input, got %v", u)
	}
}

func TestConcat(t *testing.T) {
	first := NewFeedforward(1)
	second := NewFeedforward(1)
	for _, ti := range []float64{0, 0.5, 1} {
		_ = first.Append(ti, nil, dynamo.Control{ti})
	}
	for _, ti := range []float64{1, 1.5, 2} {
		_ = second.Append(ti, nil, dynamo.Control{10 + ti})
	}

	joined, err := Concat(first, second)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{0, 0.5, 1, 1.5, 2}, joined.Times); diff != "" {
		t.Errorf("times mismatch (-want +got):\n%s", diff)
	}
	if u := joined.ComputeInput(1, nil); u[0] != 11 {
		t.Errorf("boundary must belong to the later part, got %v", u)
	}

	if _, err := Concat(first, NewLinear(2, 1)); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected mismatch joining different kinds, got %v", err)
	}
	if _, err := Concat(second, first); err == nil {
		t.Error("expected error for overlapping parts")
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{Linear, Feedforward} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("pid"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
