package riccati

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/lq"
)

// Gain is the affine input correction δu = L + K δx.
type Gain struct {
	K *mat.Dense
	L *mat.VecDense
}

// model is the LQ data the Riccati equation needs at one instant.
type model struct {
	A, B, Q, R, P *mat.Dense
	Qv, Rv        *mat.VecDense
	Q0            float64
	C, D          *mat.Dense
	E             *mat.VecDense
}

func fromNode(n *lq.Node) *model {
	return &model{
		A: n.A, B: n.B, Q: n.Q, R: n.R, P: n.P,
		Qv: n.Qv, Rv: n.Rv, Q0: n.Q0,
		C: n.C, D: n.D, E: n.E,
	}
}

func lerpDense(a, b *mat.Dense, w float64) *mat.Dense {
	var out mat.Dense
	out.Scale(1-w, a)
	var hi mat.Dense
	hi.Scale(w, b)
	out.Add(&out, &hi)
	return &out
}

func lerpVec(a, b *mat.VecDense, w float64) *mat.VecDense {
	var out mat.VecDense
	out.ScaleVec(1-w, a)
	out.AddScaledVec(&out, w, b)
	return &out
}

// interpolate blends two nodes; w = 0 gives lo, w = 1 gives hi. Constraints
// survive only when both nodes carry the same number of rows.
func interpolate(lo, hi *lq.Node, w float64) *model {
	if w == 0 {
		return fromNode(lo)
	}
	if w == 1 {
		return fromNode(hi)
	}
	m := &model{
		A:  lerpDense(lo.A, hi.A, w),
		B:  lerpDense(lo.B, hi.B, w),
		Q:  lerpDense(lo.Q, hi.Q, w),
		R:  lerpDense(lo.R, hi.R, w),
		P:  lerpDense(lo.P, hi.P, w),
		Qv: lerpVec(lo.Qv, hi.Qv, w),
		Rv: lerpVec(lo.Rv, hi.Rv, w),
		Q0: (1-w)*lo.Q0 + w*hi.Q0,
	}
	if lo.Constrained() && hi.Constrained() && lo.E.Len() == hi.E.Len() {
		m.C = lerpDense(lo.C, hi.C, w)
		m.D = lerpDense(lo.D, hi.D, w)
		m.E = lerpVec(lo.E, hi.E, w)
	}
	return m
}

// hamiltonian returns H = P + BᵀS and g = r + Bᵀs.
func (m *model) hamiltonian(v Value) (*mat.Dense, *mat.VecDense) {
	var h mat.Dense
	h.Mul(m.B.T(), v.S)
	h.Add(&h, m.P)
	var g mat.VecDense
	g.MulVec(m.B.T(), v.Sv)
	g.AddVec(&g, m.Rv)
	return &h, &g
}

// minimize returns the input correction minimizing the Hamiltonian. With
// constrained set and constraints present it solves the KKT system
//
//	[R Dᵀ] [K l]   [-H -g]
//	[D 0 ] [· ·] = [-C -e]
func (m *model) minimize(v Value, h *mat.Dense, g *mat.VecDense, constrained bool) (Gain, error) {
	nu, nx := h.Dims()

	if !constrained || m.E == nil || m.E.Len() == 0 {
		var k mat.Dense
		if err := k.Solve(m.R, h); err != nil {
			return Gain{}, fmt.Errorf("input hessian: %w", err)
		}
		k.Scale(-1, &k)
		var l mat.VecDense
		if err := l.SolveVec(m.R, g); err != nil {
			return Gain{}, fmt.Errorf("input hessian: %w", err)
		}
		l.ScaleVec(-1, &l)
		return Gain{K: &k, L: &l}, nil
	}

	nc := m.E.Len()
	size := nu + nc
	kkt := mat.NewDense(size, size, nil)
	kkt.Slice(0, nu, 0, nu).(*mat.Dense).Copy(m.R)
	kkt.Slice(nu, size, 0, nu).(*mat.Dense).Copy(m.D)
	kkt.Slice(0, nu, nu, size).(*mat.Dense).Copy(m.D.T())

	rhs := mat.NewDense(size, nx+1, nil)
	for i := 0; i < nu; i++ {
		for j := 0; j < nx; j++ {
			rhs.Set(i, j, -h.At(i, j))
		}
		rhs.Set(i, nx, -g.AtVec(i))
	}
	for i := 0; i < nc; i++ {
		for j := 0; j < nx; j++ {
			rhs.Set(nu+i, j, -m.C.At(i, j))
		}
		rhs.Set(nu+i, nx, -m.E.AtVec(i))
	}

	var sol mat.Dense
	if err := sol.Solve(kkt, rhs); err != nil {
		return Gain{}, fmt.Errorf("constraint projection: %w", err)
	}
	k := mat.DenseCopyOf(sol.Slice(0, nu, 0, nx))
	l := mat.NewVecDense(nu, nil)
	for i := 0; i < nu; i++ {
		l.SetVec(i, sol.At(i, nx))
	}
	return Gain{K: k, L: l}, nil
}

// derivative writes -d/dt of the packed value function under the
// closed-loop input δu = l + K δx:
//
//	-Ṡ  = Q + AᵀS + SA + KᵀRK + KᵀH + HᵀK
//	-ṡ  = q + Aᵀs + KᵀRl + Kᵀg + Hᵀl
//	-ṡ0 = q0 + lᵀr + ½lᵀRl + sᵀBl
func (m *model) derivative(v Value, gain Gain, h *mat.Dense, g *mat.VecDense, dy []float64) {
	n := v.Sv.Len()
	k, l := gain.K, gain.L

	var ds, as, rk, krk, kh mat.Dense
	as.Mul(m.A.T(), v.S)
	ds.Add(m.Q, &as)
	ds.Add(&ds, as.T())
	rk.Mul(m.R, k)
	krk.Mul(k.T(), &rk)
	ds.Add(&ds, &krk)
	kh.Mul(k.T(), h)
	ds.Add(&ds, &kh)
	ds.Add(&ds, kh.T())

	var dsv, tmp, rl mat.VecDense
	dsv.MulVec(m.A.T(), v.Sv)
	dsv.AddVec(&dsv, m.Qv)
	rl.MulVec(m.R, l)
	tmp.MulVec(k.T(), &rl)
	dsv.AddVec(&dsv, &tmp)
	tmp.MulVec(k.T(), g)
	dsv.AddVec(&dsv, &tmp)
	tmp.MulVec(h.T(), l)
	dsv.AddVec(&dsv, &tmp)

	var bl mat.VecDense
	bl.MulVec(m.B, l)
	ds0 := m.Q0 + mat.Dot(l, m.Rv) + 0.5*mat.Dot(l, &rl) + mat.Dot(v.Sv, &bl)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dy[i*n+j] = -ds.At(i, j)
		}
		dy[n*n+i] = -dsv.AtVec(i)
	}
	dy[n*n+n] = -ds0
}
