package barrier

import (
	"math"
	"testing"

	"github.com/stevensun213/econ5170/conic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var inf = math.Inf(1)

type barrierTest struct {
	title  string
	prog   *conic.Program
	status conic.Status
	obj    float64
	x      []float64
	xtol   float64
}

// maximize x0 + x1 subject to x0 + 2 x1 <= 4, 0 <= x <= 3.
func boxLP(sense conic.Sense) *conic.Program {
	s := 1.0
	if sense == conic.Minimize {
		s = -1
	}
	return &conic.Program{
		Sense:    sense,
		Obj:      []float64{s, s},
		A:        mat.NewDense(1, 2, []float64{1, 2}),
		RowLower: []float64{-inf},
		RowUpper: []float64{4},
		ColLower: []float64{0, 0},
		ColUpper: []float64{3, 3},
	}
}

// maximize t subject to (x, 1, t) in K_exp, 0 <= x <= 2.
func logMax() *conic.Program {
	return &conic.Program{
		Sense:    conic.Maximize,
		Obj:      []float64{0, 0, 1},
		ColLower: []float64{0, 1, -inf},
		ColUpper: []float64{2, 1, inf},
		Cones:    []conic.ExpCone{{0, 1, 2}},
	}
}

// maximize sum(t_i) subject to sum(p_i) = 1, (p_i, 1, t_i) in K_exp.
func simplexLog(n int) *conic.Program {
	p := &conic.Program{
		Sense:    conic.Maximize,
		Obj:      make([]float64, 3*n),
		A:        mat.NewDense(1, 3*n, nil),
		RowLower: []float64{1},
		RowUpper: []float64{1},
		ColLower: make([]float64, 3*n),
		ColUpper: make([]float64, 3*n),
	}
	for i := 0; i < n; i++ {
		p.Obj[3*i+2] = 1
		p.A.Set(0, 3*i, 1)
		p.ColLower[3*i], p.ColUpper[3*i] = 0, 1
		p.ColLower[3*i+1], p.ColUpper[3*i+1] = 1, 1
		p.ColLower[3*i+2], p.ColUpper[3*i+2] = -inf, inf
		p.Cones = append(p.Cones, conic.ExpCone{3 * i, 3*i + 1, 3*i + 2})
	}
	return p
}

// x0 + x1 = 3 with 0 <= x <= 1.
func infeasibleBox() *conic.Program {
	return &conic.Program{
		Obj:      []float64{1, 0},
		A:        mat.NewDense(1, 2, []float64{1, 1}),
		RowLower: []float64{3},
		RowUpper: []float64{3},
		ColLower: []float64{0, 0},
		ColUpper: []float64{1, 1},
	}
}

func TestBarrier(t *testing.T) {

	simplex4 := []float64{}
	for i := 0; i < 4; i++ {
		simplex4 = append(simplex4, 0.25, 1, math.Log(0.25))
	}

	unboundedX3 := logMax()
	unboundedX3.ColUpper[2] = 5

	x3InRow := logMax()
	x3InRow.A = mat.NewDense(1, 3, []float64{1, 0, 1})
	x3InRow.RowLower = []float64{-inf}
	x3InRow.RowUpper = []float64{10}

	sharedVar := simplexLog(2)
	sharedVar.Cones[1] = conic.ExpCone{3, 1, 5}

	boundedX2 := logMax()
	boundedX2.ColLower[1] = 0.5

	fixedX1 := logMax()
	fixedX1.ColLower[0], fixedX1.ColUpper[0] = -1, -1

	for _, bt := range []barrierTest{
		{
			title:  "LP maximize",
			prog:   boxLP(conic.Maximize),
			status: conic.Optimal,
			obj:    3.5,
			x:      []float64{3, 0.5},
			xtol:   1e-5,
		},
		{
			title:  "LP minimize",
			prog:   boxLP(conic.Minimize),
			status: conic.Optimal,
			obj:    -3.5,
			x:      []float64{3, 0.5},
			xtol:   1e-5,
		},
		{
			title:  "Log maximization",
			prog:   logMax(),
			status: conic.Optimal,
			obj:    math.Log(2),
			x:      []float64{2, 1, math.Log(2)},
			xtol:   1e-5,
		},
		{
			title:  "Simplex log",
			prog:   simplexLog(4),
			status: conic.Optimal,
			obj:    -4 * math.Log(4),
			x:      simplex4,
			xtol:   1e-5,
		},
		{
			title:  "Infeasible box",
			prog:   infeasibleBox(),
			status: conic.Infeasible,
		},
		{
			title:  "Fixed first coordinate",
			prog:   fixedX1,
			status: conic.Infeasible,
		},
		{
			title:  "Bounded third coordinate",
			prog:   unboundedX3,
			status: conic.Failure,
		},
		{
			title:  "Third coordinate in a row",
			prog:   x3InRow,
			status: conic.Failure,
		},
		{
			title:  "Variable in two cones",
			prog:   sharedVar,
			status: conic.Failure,
		},
		{
			title:  "Bounded second coordinate",
			prog:   boundedX2,
			status: conic.Failure,
		},
	} {
		sol, err := conic.Solve(&Solver{}, bt.prog)
		require.NoError(t, err, bt.title)
		require.Equal(t, bt.status, sol.Status, "%s: %s", bt.title, sol.Message)
		if bt.status != conic.Optimal {
			assert.NotEmpty(t, sol.Message, bt.title)
			continue
		}
		assert.InDelta(t, bt.obj, sol.Objective, 1e-6, bt.title)
		assert.True(t, floats.EqualApprox(bt.x, sol.X, bt.xtol), "%s: %v", bt.title, sol.X)
		assert.NoError(t, bt.prog.Validate(sol.X, 1e-7), bt.title)
		assert.Greater(t, sol.Iterations, 0, bt.title)
	}
}

func TestFixedRows(t *testing.T) {

	// Every column is fixed, the row holds.
	p := &conic.Program{
		Obj:      []float64{1, 2},
		A:        mat.NewDense(1, 2, []float64{1, 1}),
		RowLower: []float64{3},
		RowUpper: []float64{3},
		ColLower: []float64{1, 2},
		ColUpper: []float64{1, 2},
	}
	sol, err := conic.Solve(&Solver{}, p)
	require.NoError(t, err)
	require.Equal(t, conic.Optimal, sol.Status)
	assert.Equal(t, 5.0, sol.Objective)
	assert.Equal(t, []float64{1, 2}, sol.X)

	// The row is violated by the fixed columns.
	p.RowLower[0], p.RowUpper[0] = 4, 4
	sol, err = conic.Solve(&Solver{}, p)
	require.NoError(t, err)
	assert.Equal(t, conic.Infeasible, sol.Status)

	// The simplex row fixes the only weight at one.
	sol, err = conic.Solve(&Solver{}, simplexLog(1))
	require.NoError(t, err)
	require.Equal(t, conic.Optimal, sol.Status, sol.Message)
	assert.Equal(t, 1.0, sol.X[0])
	assert.InDelta(t, 0, sol.Objective, 1e-7)

	// A row that fixes a column outside its bounds.
	p = infeasibleBox()
	p.ColLower[1], p.ColUpper[1] = 1, 1
	sol, err = conic.Solve(&Solver{}, p)
	require.NoError(t, err)
	assert.Equal(t, conic.Infeasible, sol.Status)
	assert.Contains(t, sol.Message, "outside its bounds")

	// Fixing one column leaves a single free column in the next row.
	p = &conic.Program{
		Obj:      []float64{1, 1, 1},
		A:        mat.NewDense(2, 3, []float64{1, 1, 0, 0, 1, 1}),
		RowLower: []float64{2, 3},
		RowUpper: []float64{2, 3},
		ColLower: []float64{0, -inf, -inf},
		ColUpper: []float64{0, inf, inf},
	}
	sol, err = conic.Solve(&Solver{}, p)
	require.NoError(t, err)
	require.Equal(t, conic.Optimal, sol.Status, sol.Message)
	assert.Equal(t, []float64{0, 2, 1}, sol.X)
	assert.Equal(t, 3.0, sol.Objective)
}

func TestSession(t *testing.T) {

	s := &Solver{Settings: Settings{Tolerance: 1e-6}}
	sess, err := s.Open()
	require.NoError(t, err)

	// A session can be reused.
	for k := 0; k < 2; k++ {
		sol := sess.Solve(logMax())
		require.Equal(t, conic.Optimal, sol.Status)
		assert.InDelta(t, math.Log(2), sol.Objective, 1e-5)
	}

	require.NoError(t, sess.Close())
	sol := sess.Solve(logMax())
	assert.Equal(t, conic.Failure, sol.Status)
}

func TestIterationLimit(t *testing.T) {
	s := &Solver{Settings: Settings{MaxIterations: 3}}
	sol, err := conic.Solve(s, simplexLog(5))
	require.NoError(t, err)
	assert.Equal(t, conic.Failure, sol.Status)
	assert.Contains(t, sol.Message, "iteration limit")
}

func TestConeDerivs(t *testing.T) {

	c := &expCone{idx: [3]int{0, 1, 2}}
	x := []float64{1.5, 0.7, -0.4}
	require.True(t, c.interior(x))

	g, h := c.derivs(x)

	// Compare with central differences of the barrier value.
	const eps = 1e-6
	xp := make([]float64, 3)
	for a := 0; a < 3; a++ {
		copy(xp, x)
		xp[a] += eps
		fp := c.value(xp)
		gp, _ := c.derivs(xp)
		xp[a] -= 2 * eps
		fm := c.value(xp)
		gm, _ := c.derivs(xp)
		assert.InDelta(t, (fp-fm)/(2*eps), g[a], 1e-6)
		for b := 0; b < 3; b++ {
			assert.InDelta(t, (gp[b]-gm[b])/(2*eps), h[a][b], 1e-5)
		}
	}

	assert.True(t, math.IsInf(c.value([]float64{1, 1, 1}), 1))
	assert.True(t, math.IsInf(c.value([]float64{-1, 1, -5}), 1))
}
