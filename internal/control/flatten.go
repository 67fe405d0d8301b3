package control

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

// FlatSize is the length of one flattened sample.
func (c *Controller) FlatSize() int {
	if c.Kind == Linear {
		return c.inputDim*c.stateDim + c.inputDim
	}
	return c.inputDim
}

// Flatten writes the controller at time t: for Linear, the rows of K
// followed by the bias; for Feedforward, the bias only.
func (c *Controller) Flatten(t float64) []float64 {
	k, b := c.At(t)
	out := make([]float64, 0, c.FlatSize())
	if k != nil {
		for i := 0; i < c.inputDim; i++ {
			out = append(out, k.RawRowView(i)...)
		}
	}
	return append(out, b...)
}

// UnFlatten replaces the content of c with samples read from parallel arrays.
// The kind and dimensions of c decide how each array is read.
func (c *Controller) UnFlatten(times []float64, arrays [][]float64) error {
	if len(times) != len(arrays) {
		return fmt.Errorf("%w: %d times for %d arrays", dynamo.ErrDimensionMismatch, len(times), len(arrays))
	}
	size := c.FlatSize()
	c.Clear()
	for i, t := range times {
		row := arrays[i]
		if len(row) != size {
			c.Clear()
			return fmt.Errorf("%w: sample %d has %d values, want %d", dynamo.ErrDimensionMismatch, i, len(row), size)
		}
		var k *mat.Dense
		offset := 0
		if c.Kind == Linear {
			offset = c.inputDim * c.stateDim
			k = mat.NewDense(c.inputDim, c.stateDim, append([]float64(nil), row[:offset]...))
		}
		if err := c.Append(t, k, dynamo.Control(row[offset:])); err != nil {
			c.Clear()
			return err
		}
	}
	return nil
}
