// Package barrier is a log-barrier interior point backend for conic
// programs with linear rows, column bounds and exponential cones.
//
// A strictly feasible starting point is found with a phase I problem
// that minimizes a common slack over all inequalities.  The program is
// then solved by a sequence of equality constrained Newton centerings
// with an increasing barrier weight.
//
// Supported programs place the third coordinate of every cone on a
// free column that appears in no row and in no other cone, and the
// second coordinate on a column that is either free or fixed at a
// positive value.  Other programs are reported with a Failure status.
// Equality rows with a single unfixed column fix that column before
// the solve.  Other programs that are feasible but have no strictly
// feasible point are reported as Infeasible.
package barrier

import (
	"errors"
	"fmt"
	"math"

	"github.com/stevensun213/econ5170/conic"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Settings controls the barrier method.  Zero values are replaced by
// the defaults.
type Settings struct {

	// Stop when nu/t <= Tolerance*max(1, |objective|), where nu is the
	// barrier parameter and t the barrier weight.  Default 1e-8.
	Tolerance float64

	// Factor by which the barrier weight grows between centerings.
	// Default 20.
	Mu float64

	// Newton steps per centering.  Default 100.
	MaxNewton int

	// Total Newton steps over both phases.  Default 2000.
	MaxIterations int
}

func (s Settings) withDefaults() Settings {
	if s.Tolerance <= 0 {
		s.Tolerance = 1e-8
	}
	if s.Mu <= 1 {
		s.Mu = 20
	}
	if s.MaxNewton <= 0 {
		s.MaxNewton = 100
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = 2000
	}
	return s
}

// Smallest barrier growth factor tried after a stalled centering.
const minMu = 1.1

// Solver is a conic.Solver that opens barrier sessions.
type Solver struct {
	Settings Settings

	// Log receives debug messages, may be nil.
	Log *zap.Logger
}

// Open returns a new session.
func (s *Solver) Open() (conic.Session, error) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &session{
		settings: s.Settings.withDefaults(),
		log:      log,
		work:     new(newton),
	}, nil
}

type session struct {
	settings Settings
	log      *zap.Logger
	work     *newton
}

// Close releases the session workspace.
func (s *session) Close() error {
	s.work = nil
	return nil
}

// Solve solves the program.
func (s *session) Solve(p *conic.Program) *conic.Solution {

	if s.work == nil {
		return fail("session is closed", 0)
	}
	if err := p.Check(); err != nil {
		return fail(err.Error(), 0)
	}

	s.work.steps = 0

	red, sol := reduce(p)
	if sol != nil {
		return sol
	}

	if len(red.active) == 0 {
		for k := range red.cones {
			c := &red.cones[k]
			if !c.interior(nil) {
				return infeasible(fmt.Sprintf("cone %d is violated by the fixed columns", k), 0)
			}
		}
		return s.finish(p, red, nil)
	}

	x, sol := s.equalityStart(red)
	if sol != nil {
		return sol
	}

	if sol := s.phaseOne(red, x); sol != nil {
		return sol
	}

	// Place the cone third coordinates strictly inside the cones.
	for k := range red.cones {
		c := &red.cones[k]
		x1, x2, _ := c.point(x)
		x[c.idx[2]] = expResidual(x1, x2, 0) - 1
	}

	if sol := s.phaseTwo(red, x); sol != nil {
		return sol
	}

	return s.finish(p, red, x)
}

func fail(msg string, iter int) *conic.Solution {
	return &conic.Solution{Status: conic.Failure, Message: msg, Iterations: iter}
}

func infeasible(msg string, iter int) *conic.Solution {
	return &conic.Solution{Status: conic.Infeasible, Message: msg, Iterations: iter}
}

// finish maps the reduced point back to the program's variables.
func (s *session) finish(p *conic.Program, red *reduced, x []float64) *conic.Solution {

	full := make([]float64, len(p.Obj))
	copy(full, red.fixed)
	for k, j := range red.active {
		full[j] = x[k]
	}

	return &conic.Solution{
		Status:     conic.Optimal,
		Objective:  p.Value(full),
		X:          full,
		Iterations: s.work.steps,
	}
}

// equalityStart returns the minimum norm solution of the equality rows.
func (s *session) equalityStart(red *reduced) ([]float64, *conic.Solution) {

	n := len(red.active)
	x := make([]float64, n)
	me := len(red.b)
	if me == 0 {
		return x, nil
	}

	// x = E'(EE')^{-1} b
	var eet mat.Dense
	eet.Mul(red.eq, red.eq.T())
	var y mat.VecDense
	if err := y.SolveVec(&eet, mat.NewVecDense(me, red.b)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fail("equality rows are linearly dependent", 0)
		}
	}
	xv := mat.NewVecDense(n, x)
	xv.MulVec(red.eq.T(), &y)

	var res mat.VecDense
	res.MulVec(red.eq, xv)
	res.SubVec(&res, mat.NewVecDense(me, red.b))
	if mat.Norm(&res, math.Inf(1)) > 1e-8*(1+floats.Norm(red.b, math.Inf(1))) {
		return nil, infeasible("equality rows are inconsistent", 0)
	}

	return x, nil
}

// phaseOne moves x to a strictly feasible point, or reports that none
// exists.  The cone third coordinates are not touched.
func (s *session) phaseOne(red *reduced, x []float64) *conic.Solution {

	// Variables of the phase I problem: every reduced variable that is
	// not a cone third coordinate, followed by the common slack.
	var vars []int
	pos := make([]int, len(red.active))
	for k := range red.active {
		pos[k] = -1
		if !red.x3[k] {
			pos[k] = len(vars)
			vars = append(vars, k)
		}
	}
	ns := len(vars)

	ph := &problem{
		n: ns + 1,
		c: make([]float64, ns+1),
		b: red.b,
	}
	ph.c[ns] = 1

	if len(red.b) > 0 {
		ph.eq = mat.NewDense(len(red.b), ns+1, nil)
		for i := range red.b {
			for q, k := range vars {
				ph.eq.Set(i, q, red.eq.At(i, k))
			}
		}
	}

	for _, a := range red.ineq {
		b := affine{c: a.c}
		for u, j := range a.idx {
			b.idx = append(b.idx, pos[j])
			b.coef = append(b.coef, a.coef[u])
		}
		b.idx = append(b.idx, ns)
		b.coef = append(b.coef, 1)
		ph.ineq = append(ph.ineq, b)
	}
	for _, c := range red.cones {
		for u := 0; u < 2; u++ {
			if c.idx[u] >= 0 {
				ph.ineq = append(ph.ineq, affine{
					idx:  []int{pos[c.idx[u]], ns},
					coef: []float64{1, 1},
				})
			}
		}
	}

	z := make([]float64, ns+1)
	for q, k := range vars {
		z[q] = x[k]
	}

	// Smallest slack at the starting point.
	minSlack := math.Inf(1)
	for k := range ph.ineq {
		if d := ph.ineq[k].eval(z); d < minSlack {
			minSlack = d
		}
	}
	if minSlack > 0 {
		return nil
	}
	z[ns] = 1 - minSlack

	w := s.work
	w.reset(ph, s.settings.MaxIterations)
	nu := ph.nu()
	below := func(z []float64) bool { return z[ns] < 0 }

	for t := 1.0; ; t *= s.settings.Mu {
		err := w.center(z, t, s.settings.MaxNewton, below)
		if err != nil {
			return fail(fmt.Sprintf("phase I: %v", err), w.steps)
		}

		gap := nu / t
		s.log.Debug("phase I centering",
			zap.Float64("t", t), zap.Float64("slack", z[ns]), zap.Int("steps", w.steps))

		if z[ns] < 0 {
			break
		}
		if z[ns]-gap > 0 {
			return infeasible("phase I: no feasible point", w.steps)
		}
		if gap <= s.settings.Tolerance*math.Max(1, math.Abs(z[ns])) {
			return infeasible("phase I: no strictly feasible point", w.steps)
		}
	}

	for q, k := range vars {
		x[k] = z[q]
	}

	return nil
}

// phaseTwo runs the barrier method from the strictly feasible x.
func (s *session) phaseTwo(red *reduced, x []float64) *conic.Solution {

	p := &problem{
		n:     len(red.active),
		c:     red.c,
		eq:    red.eq,
		b:     red.b,
		ineq:  red.ineq,
		cones: red.cones,
	}

	nu := p.nu()
	if nu == 0 {
		return fail("program has no inequality or cone constraints", s.work.steps)
	}

	w := s.work
	w.reset(p, s.settings.MaxIterations)

	// A centering whose line search stalls is restarted from the last
	// centered point with a smaller growth factor.  Once the factor
	// cannot shrink further, the last centered point is accepted if
	// its gap is below sqrt(Tolerance).
	mu := s.settings.Mu
	last := make([]float64, len(x))
	copy(last, x)
	var tLast, gapLast, objLast float64

	for t := 1.0; ; {
		err := w.center(x, t, s.settings.MaxNewton, nil)
		if errors.Is(err, errLineSearch) {
			copy(x, last)
			if mu > minMu {
				mu = math.Sqrt(mu)
				if tLast > 0 {
					t = tLast * mu
				} else {
					t /= mu
				}
				s.log.Debug("phase II restart", zap.Float64("t", t), zap.Float64("mu", mu))
				continue
			}
			if tLast > 0 && gapLast <= math.Sqrt(s.settings.Tolerance)*math.Max(1, math.Abs(objLast+red.c0)) {
				s.log.Debug("phase II stalled, keeping last centered point",
					zap.Float64("t", tLast), zap.Float64("gap", gapLast))
				return nil
			}
			return fail(fmt.Sprintf("phase II: %v", err), w.steps)
		}
		if err != nil {
			return fail(fmt.Sprintf("phase II: %v", err), w.steps)
		}

		obj := floats.Dot(p.c, x)
		gap := nu / t
		s.log.Debug("phase II centering",
			zap.Float64("t", t), zap.Float64("objective", obj), zap.Int("steps", w.steps))

		if gap <= s.settings.Tolerance*math.Max(1, math.Abs(obj+red.c0)) {
			return nil
		}

		copy(last, x)
		tLast, gapLast, objLast = t, gap, obj
		t *= mu
	}
}
