package rel

import (
	"fmt"
	"math"

	"github.com/stevensun213/econ5170/conic"
	"gonum.org/v1/gonum/mat"
)

// Formulation is the inner conic program for one moment matrix,
// together with the positions of the weights pi_i and the log weights
// t_i among the program variables.
type Formulation struct {
	Program    *conic.Program
	Weights    []int
	LogWeights []int
}

// ProgramBuilder builds the inner program
//
//	maximize  sum_i t_i
//	subject to sum_i pi_i = 1
//	           -lambda <= sum_i pi_i h_ij <= lambda  for every j
//	           0 <= pi_i <= 1
//	           (pi_i, u_i, t_i) in K_exp, u_i = 1
//
// from an n x m moment matrix h.
type ProgramBuilder interface {
	Build(h mat.Matrix, lambda float64) (*Formulation, error)
}

func checkBuild(h mat.Matrix, lambda float64) (int, int, error) {
	if math.IsNaN(lambda) || lambda < 0 {
		return 0, 0, fmt.Errorf("%w: lambda = %g", ErrNegativeLambda, lambda)
	}
	n, m := h.Dims()
	if n == 0 {
		return 0, 0, ErrNoObservations
	}
	if m == 0 {
		return 0, 0, ErrNoMoments
	}
	return n, m, nil
}

// MatrixBuilder assembles the constraint matrix directly.  The
// variables are laid out as [pi | u | t] and the rows as the simplex
// row followed by the moment rows.
type MatrixBuilder struct{}

// Build returns the inner program for h.
func (MatrixBuilder) Build(h mat.Matrix, lambda float64) (*Formulation, error) {

	n, m, err := checkBuild(h, lambda)
	if err != nil {
		return nil, err
	}

	nv := 3 * n
	p := &conic.Program{
		Sense:    conic.Maximize,
		Obj:      make([]float64, nv),
		A:        mat.NewDense(1+m, nv, nil),
		RowLower: make([]float64, 1+m),
		RowUpper: make([]float64, 1+m),
		ColLower: make([]float64, nv),
		ColUpper: make([]float64, nv),
		Cones:    make([]conic.ExpCone, n),
	}

	f := &Formulation{
		Program:    p,
		Weights:    make([]int, n),
		LogWeights: make([]int, n),
	}

	for i := 0; i < n; i++ {
		pi, u, t := i, n+i, 2*n+i
		f.Weights[i] = pi
		f.LogWeights[i] = t

		p.Obj[t] = 1
		p.ColLower[pi], p.ColUpper[pi] = 0, 1
		p.ColLower[u], p.ColUpper[u] = 1, 1
		p.ColLower[t], p.ColUpper[t] = math.Inf(-1), math.Inf(1)
		p.Cones[i] = conic.ExpCone{pi, u, t}

		p.A.Set(0, pi, 1)
		for j := 0; j < m; j++ {
			p.A.Set(1+j, pi, h.At(i, j))
		}
	}

	p.RowLower[0], p.RowUpper[0] = 1, 1
	for j := 1; j <= m; j++ {
		p.RowLower[j], p.RowUpper[j] = -lambda, lambda
	}

	return f, nil
}

// DeclarativeBuilder states the program through a conic.Model.  The
// variables are interleaved as (pi_i, u_i, t_i) and the moment rows come
// before the simplex row.
type DeclarativeBuilder struct{}

// Build returns the inner program for h.
func (DeclarativeBuilder) Build(h mat.Matrix, lambda float64) (*Formulation, error) {

	n, m, err := checkBuild(h, lambda)
	if err != nil {
		return nil, err
	}

	model := conic.NewModel()
	pi := make([]conic.Var, n)
	t := make([]conic.Var, n)
	for i := 0; i < n; i++ {
		pi[i] = model.NewVar(0, 1)
		u := model.NewVar(1, 1)
		t[i] = model.NewVar(math.Inf(-1), math.Inf(1))
		model.ExpCone(pi[i], u, t[i])
	}

	terms := make([]conic.Term, n)
	for j := 0; j < m; j++ {
		for i := range terms {
			terms[i] = conic.Term{Var: pi[i], Coeff: h.At(i, j)}
		}
		model.Linear(terms, -lambda, lambda)
	}

	for i := range terms {
		terms[i] = conic.Term{Var: pi[i], Coeff: 1}
	}
	model.Linear(terms, 1, 1)

	for i := range terms {
		terms[i] = conic.Term{Var: t[i], Coeff: 1}
	}
	model.Maximize(terms)

	p, err := model.Program()
	if err != nil {
		return nil, err
	}

	f := &Formulation{
		Program:    p,
		Weights:    make([]int, n),
		LogWeights: make([]int, n),
	}
	for i := 0; i < n; i++ {
		f.Weights[i] = int(pi[i])
		f.LogWeights[i] = int(t[i])
	}

	return f, nil
}
