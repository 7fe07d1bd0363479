package barrier

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// Regularization added to the diagonal of the barrier Hessian.
	hessDelta = 1e-12

	// A point is centered when half the squared Newton decrement
	// falls below newtonTol.
	newtonTol = 1e-10

	// Centering is accepted as complete when the line search stalls
	// but half the squared decrement is below stallTol.
	stallTol = 1e-6

	armijo       = 0.01
	backtrack    = 0.5
	maxBacktrack = 60
)

var (
	errIterations = errors.New("iteration limit reached")
	errLineSearch = errors.New("line search failed")
	errNewton     = errors.New("Newton system could not be solved")
)

// affine is the strict inequality c + sum_k coef[k]*x[idx[k]] > 0.
type affine struct {
	idx  []int
	coef []float64
	c    float64
}

func (a *affine) eval(x []float64) float64 {
	v := a.c
	for k, j := range a.idx {
		v += a.coef[k] * x[j]
	}
	return v
}

// problem is a barrier subproblem over n variables:
//
//	minimize c'x  subject to  eq x = b, ineq > 0, cones interior.
type problem struct {
	n     int
	c     []float64
	eq    *mat.Dense
	b     []float64
	ineq  []affine
	cones []expCone
}

// nu returns the barrier parameter of the subproblem.
func (p *problem) nu() float64 {
	return float64(len(p.ineq) + 3*len(p.cones))
}

func (p *problem) numEq() int {
	if p.eq == nil {
		return 0
	}
	r, _ := p.eq.Dims()
	return r
}

// phi returns the barrier value at x, +Inf outside the domain.
func (p *problem) phi(x []float64) float64 {
	var f float64
	for k := range p.ineq {
		d := p.ineq[k].eval(x)
		if d <= 0 {
			return math.Inf(1)
		}
		f -= math.Log(d)
	}
	for k := range p.cones {
		v := p.cones[k].value(x)
		if math.IsInf(v, 1) {
			return v
		}
		f += v
	}
	return f
}

// newton holds the workspace for equality constrained Newton steps.
type newton struct {
	p *problem

	kkt  *mat.Dense
	rhs  []float64
	sol  mat.VecDense
	grad []float64
	dx   []float64
	xnew []float64

	// Total Newton steps and the step budget.
	steps    int
	maxSteps int
}

func (w *newton) reset(p *problem, maxSteps int) {
	w.p = p
	w.maxSteps = maxSteps
	m := p.n + p.numEq()
	if w.kkt == nil || w.kkt.RawMatrix().Rows != m {
		w.kkt = mat.NewDense(m, m, nil)
	} else {
		w.kkt.Zero()
	}
	w.sol.Reset()
	w.rhs = resize(w.rhs, m)
	w.grad = resize(w.grad, p.n)
	w.dx = resize(w.dx, p.n)
	w.xnew = resize(w.xnew, p.n)
}

// direction computes the Newton step for t*c'x + phi(x) at x and returns
// the squared Newton decrement.
func (w *newton) direction(x []float64, t float64) (float64, error) {

	p := w.p
	n := p.n
	me := p.numEq()
	m := n + me

	w.kkt.Zero()
	kd := w.kkt.RawMatrix()
	at := func(i, j int) *float64 {
		return &kd.Data[i*kd.Stride+j]
	}

	g := w.grad
	for j := range g {
		g[j] = t * p.c[j]
	}

	for k := range p.ineq {
		a := &p.ineq[k]
		d := a.eval(x)
		for u, ju := range a.idx {
			g[ju] -= a.coef[u] / d
			for v, jv := range a.idx {
				*at(ju, jv) += a.coef[u] * a.coef[v] / (d * d)
			}
		}
	}

	for k := range p.cones {
		c := &p.cones[k]
		cg, ch := c.derivs(x)
		for u := 0; u < 3; u++ {
			ju := c.idx[u]
			if ju < 0 {
				continue
			}
			g[ju] += cg[u]
			for v := 0; v < 3; v++ {
				jv := c.idx[v]
				if jv < 0 {
					continue
				}
				*at(ju, jv) += ch[u][v]
			}
		}
	}

	for j := 0; j < n; j++ {
		*at(j, j) += hessDelta
		w.rhs[j] = -g[j]
	}

	for i := 0; i < me; i++ {
		row := p.eq.RawRowView(i)
		for j, v := range row {
			*at(n+i, j) = v
			*at(j, n+i) = v
		}
		w.rhs[n+i] = p.b[i] - floats.Dot(row, x)
	}

	err := w.sol.SolveVec(w.kkt, mat.NewVecDense(m, w.rhs))
	if err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return 0, fmt.Errorf("%w: %v", errNewton, err)
		}
	}

	for j := 0; j < n; j++ {
		w.dx[j] = w.sol.AtVec(j)
	}
	if floats.HasNaN(w.dx) {
		return 0, errNewton
	}
	for _, v := range w.dx {
		if math.IsInf(v, 0) {
			return 0, errNewton
		}
	}

	dec := -floats.Dot(g, w.dx)
	if dec < 0 {
		dec = 0
	}
	return dec, nil
}

// center runs damped Newton steps on t*c'x + phi(x), updating x in place.
// If stop is not nil it is consulted after every step, and centering
// ends early when it returns true.
func (w *newton) center(x []float64, t float64, maxNewton int, stop func([]float64) bool) error {

	p := w.p

	for iter := 0; iter < maxNewton; iter++ {

		dec, err := w.direction(x, t)
		if err != nil {
			return err
		}
		if dec/2 <= newtonTol {
			return nil
		}

		f0 := p.phi(x)
		slope := t * floats.Dot(p.c, w.dx)
		alpha := 1.0
		accepted := false
		for k := 0; k < maxBacktrack; k++ {
			floats.AddScaledTo(w.xnew, x, alpha, w.dx)
			f1 := p.phi(w.xnew)
			if !math.IsInf(f1, 1) && alpha*slope+f1-f0 <= -armijo*alpha*dec {
				accepted = true
				break
			}
			alpha *= backtrack
		}

		if !accepted {
			if dec/2 <= stallTol {
				return nil
			}
			return errLineSearch
		}

		copy(x, w.xnew)
		w.steps++
		if w.steps >= w.maxSteps {
			return errIterations
		}

		if stop != nil && stop(x) {
			return nil
		}
	}

	return nil
}

// resize returns a float64 slice of length n, using the initial
// subslice of x if it is big enough.
func resize(x []float64, n int) []float64 {
	if cap(x) >= n {
		return x[0:n]
	}
	return make([]float64, n)
}
