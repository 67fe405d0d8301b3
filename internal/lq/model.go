// Package lq builds the linear-quadratic model of the optimal control
// problem along a nominal trajectory.
package lq

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

// Node is the LQ approximation at one trajectory sample, in deviation
// coordinates δx = x - x̄, δu = u - ū:
//
//	δẋ = A δx + B δu
//	L  ≈ Q0 + qᵀδx + rᵀδu + ½δxᵀQδx + ½δuᵀRδu + δuᵀPδx
//	0  = C δx + D δu + E          (type-1 constraints, when present)
type Node struct {
	Partition int
	Index     int
	Time      float64
	Mode      int
	PostEvent bool

	X dynamo.State
	U dynamo.Control

	A, B *mat.Dense

	Q0 float64
	Qv *mat.VecDense
	Rv *mat.VecDense
	Q  *mat.Dense
	R  *mat.Dense
	P  *mat.Dense

	C, D *mat.Dense
	E    *mat.VecDense
}

// Constrained reports whether the node carries type-1 constraints.
func (n *Node) Constrained() bool {
	return n.E != nil && n.E.Len() > 0
}

// Model is the LQ approximation of one iteration.
type Model struct {
	Partitions [][]Node
	Terminal   dynamo.QuadraticApproximation
}

// NumNodes counts nodes across all partitions.
func (m *Model) NumNodes() int {
	total := 0
	for _, p := range m.Partitions {
		total += len(p)
	}
	return total
}
