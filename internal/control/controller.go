package control

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

// Kind discriminates the controller representations.
type Kind int

const (
	Linear Kind = iota
	Feedforward
)

func (k Kind) String() string {
	switch k {
	case Linear:
		return "linear"
	case Feedforward:
		return "feedforward"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "linear":
		return Linear, nil
	case "feedforward":
		return Feedforward, nil
	}
	return 0, fmt.Errorf("unknown controller kind %q", s)
}

// Controller is a sampled policy over a horizon. Gains is nil for
// Feedforward controllers.
type Controller struct {
	Kind   Kind
	Times  []float64
	Gains  []*mat.Dense
	Biases []dynamo.Control

	stateDim int
	inputDim int
}

// NewLinear returns an empty affine feedback controller for an n-state, m-input system.
func NewLinear(stateDim, inputDim int) *Controller {
	return &Controller{Kind: Linear, stateDim: stateDim, inputDim: inputDim}
}

// NewFeedforward returns an empty open-loop controller with m inputs.
func NewFeedforward(inputDim int) *Controller {
	return &Controller{Kind: Feedforward, inputDim: inputDim}
}

func (c *Controller) StateDim() int { return c.stateDim }
func (c *Controller) InputDim() int { return c.inputDim }
func (c *Controller) Len() int      { return len(c.Times) }

// Empty reports whether the controller holds no samples.
func (c *Controller) Empty() bool { return len(c.Times) == 0 }

// Clear drops every sample. Dimensions and kind are kept.
func (c *Controller) Clear() {
	c.Times = nil
	c.Gains = nil
	c.Biases = nil
}

// SetZero zeroes gains and biases without touching the time grid.
func (c *Controller) SetZero() {
	for _, k := range c.Gains {
		k.Zero()
	}
	for _, b := range c.Biases {
		for i := range b {
			b[i] = 0
		}
	}
}

// Append adds a sample after the last one. k is ignored for Feedforward
// controllers and copied otherwise.
func (c *Controller) Append(t float64, k *mat.Dense, b dynamo.Control) error {
	if n := len(c.Times); n > 0 && t <= c.Times[n-1] {
		return fmt.Errorf("control: sample time %v not after %v", t, c.Times[n-1])
	}
	if len(b) != c.inputDim {
		return fmt.Errorf("%w: bias has %d entries, want %d", dynamo.ErrDimensionMismatch, len(b), c.inputDim)
	}
	if c.Kind == Linear {
		if k == nil {
			return fmt.Errorf("%w: linear controller needs a gain", dynamo.ErrDimensionMismatch)
		}
		if r, cols := k.Dims(); r != c.inputDim || cols != c.stateDim {
			return fmt.Errorf("%w: gain is %dx%d, want %dx%d", dynamo.ErrDimensionMismatch, r, cols, c.inputDim, c.stateDim)
		}
		c.Gains = append(c.Gains, mat.DenseCopyOf(k))
	}
	c.Times = append(c.Times, t)
	c.Biases = append(c.Biases, b.Clone())
	return nil
}

// Clone returns a deep copy.
func (c *Controller) Clone() *Controller {
	out := &Controller{
		Kind:     c.Kind,
		Times:    append([]float64(nil), c.Times...),
		stateDim: c.stateDim,
		inputDim: c.inputDim,
	}
	if c.Gains != nil {
		out.Gains = make([]*mat.Dense, len(c.Gains))
		for i, k := range c.Gains {
			out.Gains[i] = mat.DenseCopyOf(k)
		}
	}
	if c.Biases != nil {
		out.Biases = make([]dynamo.Control, len(c.Biases))
		for i, b := range c.Biases {
			out.Biases[i] = b.Clone()
		}
	}
	return out
}

// locate returns the bracketing samples and interpolation weight for t.
func (c *Controller) locate(t float64) (lo, hi int, alpha float64) {
	n := len(c.Times)
	if t <= c.Times[0] {
		return 0, 0, 0
	}
	if t >= c.Times[n-1] {
		return n - 1, n - 1, 0
	}
	hi = sort.SearchFloat64s(c.Times, t)
	if c.Times[hi] == t {
		return hi, hi, 0
	}
	lo = hi - 1
	alpha = (t - c.Times[lo]) / (c.Times[hi] - c.Times[lo])
	return lo, hi, alpha
}

// At returns the interpolated gain (nil for Feedforward) and bias at t.
func (c *Controller) At(t float64) (*mat.Dense, dynamo.Control) {
	if c.Empty() {
		b := make(dynamo.Control, c.inputDim)
		if c.Kind == Linear {
			return mat.NewDense(c.inputDim, c.stateDim, nil), b
		}
		return nil, b
	}
	lo, hi, alpha := c.locate(t)

	b := make(dynamo.Control, c.inputDim)
	for i := range b {
		b[i] = (1-alpha)*c.Biases[lo][i] + alpha*c.Biases[hi][i]
	}
	if c.Kind != Linear {
		return nil, b
	}
	k := mat.DenseCopyOf(c.Gains[lo])
	if alpha != 0 {
		k.Scale(1-alpha, k)
		var upper mat.Dense
		upper.Scale(alpha, c.Gains[hi])
		k.Add(k, &upper)
	}
	return k, b
}

// ComputeInput evaluates the policy at (t, x).
func (c *Controller) ComputeInput(t float64, x dynamo.State) dynamo.Control {
	k, b := c.At(t)
	if k == nil || len(x) == 0 {
		return b
	}
	var kx mat.VecDense
	kx.MulVec(k, x.Vec())
	for i := range b {
		b[i] += kx.AtVec(i)
	}
	return b
}

// Concat joins controllers covering consecutive time intervals. When a part
// starts at the time its predecessor ends, the predecessor's last sample is
// dropped so that the later part owns the shared boundary.
func Concat(parts ...*Controller) (*Controller, error) {
	var out *Controller
	for _, p := range parts {
		if p == nil {
			continue
		}
		if out == nil {
			out = &Controller{Kind: p.Kind, stateDim: p.stateDim, inputDim: p.inputDim}
		}
		if p.Kind != out.Kind || p.inputDim != out.inputDim || p.stateDim != out.stateDim {
			return nil, fmt.Errorf("%w: cannot join %s controller with %s controller",
				dynamo.ErrDimensionMismatch, p.Kind, out.Kind)
		}
		if p.Empty() {
			continue
		}
		if n := len(out.Times); n > 0 && p.Times[0] <= out.Times[n-1] {
			if n > 1 && p.Times[0] <= out.Times[n-2] {
				return nil, fmt.Errorf("control: parts overlap at t=%v", p.Times[0])
			}
			out.Times = out.Times[:n-1]
			out.Biases = out.Biases[:n-1]
			if out.Gains != nil {
				out.Gains = out.Gains[:n-1]
			}
		}
		for i, t := range p.Times {
			var k *mat.Dense
			if p.Kind == Linear {
				k = p.Gains[i]
			}
			if err := out.Append(t, k, p.Biases[i]); err != nil {
				return nil, err
			}
		}
	}
	if out == nil {
		return nil, fmt.Errorf("control: nothing to join")
	}
	return out, nil
}
