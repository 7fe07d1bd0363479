package conic

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// A program with two variables and one cone-free row:
// maximize x0 + x1 subject to x0 + 2 x1 <= 4, 0 <= x <= 3.
func lp1() *Program {
	return &Program{
		Sense:    Maximize,
		Obj:      []float64{1, 1},
		A:        mat.NewDense(1, 2, []float64{1, 2}),
		RowLower: []float64{math.Inf(-1)},
		RowUpper: []float64{4},
		ColLower: []float64{0, 0},
		ColUpper: []float64{3, 3},
	}
}

// A single cone: (x0, x1, x2) in K_exp with x1 = 1.
func cone1() *Program {
	inf := math.Inf(1)
	return &Program{
		Sense:    Maximize,
		Obj:      []float64{0, 0, 1},
		ColLower: []float64{0, 1, -inf},
		ColUpper: []float64{2, 1, inf},
		Cones:    []ExpCone{{0, 1, 2}},
	}
}

func TestCheck(t *testing.T) {

	require.NoError(t, lp1().Check())
	require.NoError(t, cone1().Check())

	p := lp1()
	p.ColUpper = p.ColUpper[0:1]
	assert.True(t, errors.Is(p.Check(), ErrShape))

	p = lp1()
	p.A = mat.NewDense(1, 3, nil)
	assert.True(t, errors.Is(p.Check(), ErrShape))

	p = lp1()
	p.RowLower = []float64{5}
	assert.True(t, errors.Is(p.Check(), ErrShape))

	p = lp1()
	p.ColLower[1] = math.NaN()
	assert.True(t, errors.Is(p.Check(), ErrShape))

	p = cone1()
	p.Cones[0] = ExpCone{0, 1, 3}
	assert.True(t, errors.Is(p.Check(), ErrShape))

	p = cone1()
	p.Cones[0] = ExpCone{0, 0, 2}
	assert.True(t, errors.Is(p.Check(), ErrShape))
}

func TestValidate(t *testing.T) {

	p := lp1()
	assert.NoError(t, p.Validate([]float64{2, 1}, 1e-9))
	assert.Error(t, p.Validate([]float64{3, 1}, 1e-9))
	assert.Error(t, p.Validate([]float64{-1, 0}, 1e-9))
	assert.Error(t, p.Validate([]float64{1}, 1e-9))
	assert.Equal(t, 3.0, p.Value([]float64{2, 1}))

	p = cone1()
	assert.NoError(t, p.Validate([]float64{1, 1, -0.5}, 1e-9))
	assert.NoError(t, p.Validate([]float64{1, 1, 0}, 1e-9))
	assert.Error(t, p.Validate([]float64{1, 1, 0.1}, 1e-9))
}

func TestInExpCone(t *testing.T) {

	assert.True(t, InExpCone(math.E, 1, 1, 1e-12))
	assert.False(t, InExpCone(1, 1, 1, 1e-12))
	assert.True(t, InExpCone(1, 0, -1, 1e-12))
	assert.False(t, InExpCone(1, 0, 1, 1e-12))
	assert.False(t, InExpCone(-1, 1, -5, 1e-12))
	assert.True(t, InExpCone(2, 2, 2*math.Log(0.5), 1e-12))
}

func TestModel(t *testing.T) {

	inf := math.Inf(1)

	m := NewModel()
	x := m.NewVar(0, 1)
	u := m.NewVar(1, 1)
	s := m.NewVar(-inf, inf)
	m.ExpCone(x, u, s)
	m.Linear([]Term{{x, 1}, {x, 1}}, -inf, 1)
	m.Maximize([]Term{{s, 1}})
	assert.Equal(t, 3, m.NumVars())

	p, err := m.Program()
	require.NoError(t, err)
	require.NoError(t, p.Check())

	assert.Equal(t, Maximize, p.Sense)
	assert.True(t, floats.Equal([]float64{0, 0, 1}, p.Obj))
	assert.True(t, floats.Equal([]float64{2, 0, 0}, p.A.RawRowView(0)))
	assert.Equal(t, []ExpCone{{0, 1, 2}}, p.Cones)
	assert.True(t, floats.Equal([]float64{0, 1, -inf}, p.ColLower))

	// Terms are copied when the constraint is added.
	terms := []Term{{x, 1}}
	m.Linear(terms, 0, 1)
	terms[0].Coeff = 5
	p, err = m.Program()
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.A.At(1, 0))
}

func TestModelErrors(t *testing.T) {

	m := NewModel()
	x := m.NewVar(0, 1)
	m.Linear([]Term{{x + 4, 1}}, 0, 1)
	_, err := m.Program()
	assert.True(t, errors.Is(err, ErrShape))

	m = NewModel()
	m.NewVar(2, 1)
	_, err = m.Program()
	assert.True(t, errors.Is(err, ErrShape))

	m = NewModel()
	x = m.NewVar(0, 1)
	m.Linear([]Term{{x, 1}}, 1, 0)
	_, err = m.Program()
	assert.True(t, errors.Is(err, ErrShape))
}

type fakeSolver struct {
	openErr error
	opened  int
	closed  int
	sol     Solution
}

type fakeSession struct {
	s *fakeSolver
}

func (f *fakeSolver) Open() (Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	return &fakeSession{f}, nil
}

func (fs *fakeSession) Solve(p *Program) *Solution {
	sol := fs.s.sol
	return &sol
}

func (fs *fakeSession) Close() error {
	fs.s.closed++
	return nil
}

func TestSolveSession(t *testing.T) {

	f := &fakeSolver{sol: Solution{Status: Optimal, Objective: 2}}
	sol, err := Solve(f, lp1())
	require.NoError(t, err)
	assert.Equal(t, Optimal, sol.Status)
	assert.Equal(t, 2.0, sol.Objective)
	assert.Equal(t, 1, f.opened)
	assert.Equal(t, 1, f.closed)

	// A malformed program never reaches the solver.
	p := lp1()
	p.Obj = nil
	_, err = Solve(f, p)
	assert.True(t, errors.Is(err, ErrShape))
	assert.Equal(t, 1, f.opened)

	f.openErr = errors.New("no license")
	_, err = Solve(f, lp1())
	assert.ErrorIs(t, err, f.openErr)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "optimal", Optimal.String())
	assert.Equal(t, "infeasible", Infeasible.String())
	assert.Equal(t, "failure", Failure.String())
	assert.Equal(t, "maximize", Maximize.String())
}
