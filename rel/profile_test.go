package rel

import (
	"errors"
	"math"
	"testing"

	"github.com/stevensun213/econ5170/conic"
	"github.com/stevensun213/econ5170/statmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// positiveMoment has the single moment h_i = 1 + i, so that the
// moment row can not be zero under any probability weights.
var positiveMoment = MomentFunc{
	Params:  1,
	Moments: 1,
	F: func(c *statmodel.Chunk, beta []float64, h *mat.Dense) {
		for i := 0; i < c.Len(); i++ {
			h.Set(i, 0, 1+float64(c.Offset+i))
		}
	},
}

func TestProfileLambda(t *testing.T) {

	da := genIV(30, 2)
	beta := []float64{0.5, 0.5}

	// The log EL can only increase as the constraints are relaxed.
	last := math.Inf(-1)
	for _, lam := range []float64{0.05, 0.1, 0.2, 0.5} {
		r, err := NewProfiler(da, LinearIV{}, lam).Solve(beta)
		require.NoError(t, err, "lambda=%v", lam)
		assert.True(t, r.LogEL >= last-1e-6, "lambda=%v: %v < %v", lam, r.LogEL, last)
		assert.InDelta(t, 1, floats.Sum(r.Weights), 1e-8)
		last = r.LogEL
	}

	// A large relaxation leaves only the simplex constraint.
	n := float64(da.NumObs())
	r, err := NewProfiler(da, LinearIV{}, 1000).Solve(beta)
	require.NoError(t, err)
	assert.InDelta(t, -n*math.Log(n), r.LogEL, 1e-5)
	for _, w := range r.Weights {
		assert.InDelta(t, 1/n, w, 1e-5)
	}
	assert.True(t, r.LogEL >= last-1e-6)
}

// With one observation the weight is one whenever the moments lie
// within lambda of zero.
func TestProfileSingle(t *testing.T) {

	da := genIV(1, 4)
	beta := []float64{0.5, 0.5}
	h, err := ComputeMoments(da, LinearIV{}, beta)
	require.NoError(t, err)
	big := math.Max(math.Abs(h.At(0, 0)), math.Abs(h.At(0, 1)))

	for _, bt := range builders {
		prof := NewProfiler(da, LinearIV{}, big+0.1).Builder(bt.b)
		r, err := prof.Solve(beta)
		require.NoError(t, err, bt.name)
		assert.Equal(t, []float64{1}, r.Weights, bt.name)
		assert.InDelta(t, 0, prof.Evaluate(beta), 1e-6, bt.name)

		prof = NewProfiler(da, LinearIV{}, big/2).Builder(bt.b)
		assert.True(t, math.IsInf(prof.Evaluate(beta), 1), bt.name)
		require.Len(t, prof.Failures(), 1, bt.name)
		assert.Equal(t, conic.Infeasible, prof.Failures()[0].Status, bt.name)
	}
}

func TestProfileBuilders(t *testing.T) {

	da := genIV(30, 3)
	beta := []float64{0.4, 0.6}

	r1, err := NewProfiler(da, LinearIV{}, 0.1).Solve(beta)
	require.NoError(t, err)
	r2, err := NewProfiler(da, LinearIV{}, 0.1).Builder(DeclarativeBuilder{}).Solve(beta)
	require.NoError(t, err)

	assert.InDelta(t, r1.LogEL, r2.LogEL, 1e-6)
	assert.True(t, floats.EqualApprox(r1.Weights, r2.Weights, 1e-5))
}

func TestProfileInfeasible(t *testing.T) {

	core, logs := observer.New(zapcore.WarnLevel)
	da := genIV(5, 4)
	prof := NewProfiler(da, positiveMoment, 0).Log(zap.New(core))

	f := prof.Evaluate([]float64{0})
	assert.True(t, math.IsInf(f, 1))
	assert.Equal(t, 1, prof.NumEvals())

	fl := prof.Failures()
	require.Equal(t, 1, len(fl))
	assert.Equal(t, StageSolve, fl[0].Stage)
	assert.Equal(t, conic.Infeasible, fl[0].Status)
	assert.True(t, errors.Is(fl[0].Err, ErrNotOptimal))
	assert.Equal(t, []float64{0}, fl[0].Beta)

	require.Equal(t, 1, logs.FilterMessage("inner program failed").Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, StageSolve, entry.ContextMap()["stage"])

	// The record is a copy.
	fl[0].Stage = "changed"
	assert.Equal(t, StageSolve, prof.Failures()[0].Stage)
}

func TestProfileMomentFault(t *testing.T) {

	da := genIV(5, 5)
	prof := NewProfiler(da, PoissonIV{}, 0.1)

	f := prof.Evaluate([]float64{1000, 0})
	assert.True(t, math.IsInf(f, 1))

	fl := prof.Failures()
	require.Equal(t, 1, len(fl))
	assert.Equal(t, StageMoments, fl[0].Stage)
	assert.True(t, errors.Is(fl[0].Err, ErrNumericFault))

	// The build stage rejects a negative relaxation.
	prof = NewProfiler(da, LinearIV{}, -1)
	_, err := prof.Solve([]float64{0, 0})
	assert.True(t, errors.Is(err, ErrNegativeLambda))
	assert.Equal(t, StageBuild, prof.Failures()[0].Stage)
}

// fixedSolver reports a fixed optimal solution whose coordinates are the
// variable positions.
type fixedSolver struct {
	obj float64
}

type fixedSession struct {
	obj float64
}

func (s fixedSolver) Open() (conic.Session, error) {
	return fixedSession(s), nil
}

func (s fixedSession) Solve(p *conic.Program) *conic.Solution {
	x := make([]float64, p.NumVars())
	for k := range x {
		x[k] = float64(k)
	}
	return &conic.Solution{Status: conic.Optimal, Objective: s.obj, X: x}
}

func (s fixedSession) Close() error {
	return nil
}

func TestProfileSign(t *testing.T) {

	da := genIV(4, 6)
	prof := NewProfiler(da, LinearIV{}, 0.1).Solver(fixedSolver{obj: -3.2})

	assert.Equal(t, 3.2, prof.Evaluate([]float64{0, 0}))

	r, err := prof.Solve([]float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, -3.2, r.LogEL)
	assert.Equal(t, []float64{0, 1, 2, 3}, r.Weights)
	assert.Equal(t, 0, len(prof.Failures()))
	assert.Equal(t, 2, prof.NumEvals())
}

// failingSolver can not open a session.
type failingSolver struct{}

func (failingSolver) Open() (conic.Session, error) {
	return nil, errors.New("backend unavailable")
}

func TestProfileSolverError(t *testing.T) {

	da := genIV(4, 7)
	prof := NewProfiler(da, LinearIV{}, 0.1).Solver(failingSolver{})

	assert.True(t, math.IsInf(prof.Evaluate([]float64{0, 0}), 1))
	fl := prof.Failures()
	require.Equal(t, 1, len(fl))
	assert.Equal(t, StageSolve, fl[0].Stage)
	assert.Equal(t, conic.Failure, fl[0].Status)
	assert.Contains(t, fl[0].Err.Error(), "backend unavailable")
}
