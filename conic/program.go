// Package conic defines the data exchanged with a conic optimization
// backend: a linear objective, linear rows with lower and upper bounds,
// column bounds and exponential cone memberships.
package conic

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when the parts of a Program have inconsistent
// dimensions or refer to variables that do not exist.
var ErrShape = errors.New("conic: inconsistent program")

// Sense is the direction of optimization.
type Sense int

// Minimize and Maximize are the two optimization directions.
const (
	Minimize Sense = iota
	Maximize
)

func (s Sense) String() string {
	if s == Maximize {
		return "maximize"
	}
	return "minimize"
}

// ExpCone holds the indices of three variables (x1, x2, x3) constrained
// to lie in the exponential cone
//
//	cl{(x1, x2, x3) : x2 > 0, x2*exp(x3/x2) <= x1}.
type ExpCone [3]int

// Program is a conic program in row form:
//
//	optimize Obj'x
//	subject to RowLower <= A x <= RowUpper
//	           ColLower <= x <= ColUpper
//	           x[c] in K_exp for c in Cones
//
// Infinite bounds are expressed with ±Inf.  A row with equal lower and
// upper bounds is an equality.  A is nil when the program has no rows.
type Program struct {
	Sense Sense
	Obj   []float64

	A        *mat.Dense
	RowLower []float64
	RowUpper []float64

	ColLower []float64
	ColUpper []float64

	Cones []ExpCone
}

// NumVars returns the number of variables.
func (p *Program) NumVars() int {
	return len(p.Obj)
}

// NumRows returns the number of linear rows.
func (p *Program) NumRows() int {
	if p.A == nil {
		return 0
	}
	r, _ := p.A.Dims()
	return r
}

// Check returns an error wrapping ErrShape if the parts of the program
// are inconsistent.
func (p *Program) Check() error {

	n := len(p.Obj)
	if len(p.ColLower) != n || len(p.ColUpper) != n {
		return fmt.Errorf("%w: %d variables but %d/%d column bounds",
			ErrShape, n, len(p.ColLower), len(p.ColUpper))
	}

	nr := 0
	if p.A != nil {
		var c int
		nr, c = p.A.Dims()
		if c != n {
			return fmt.Errorf("%w: constraint matrix has %d columns, expected %d", ErrShape, c, n)
		}
	}
	if len(p.RowLower) != nr || len(p.RowUpper) != nr {
		return fmt.Errorf("%w: %d rows but %d/%d row bounds",
			ErrShape, nr, len(p.RowLower), len(p.RowUpper))
	}

	for j := 0; j < n; j++ {
		if math.IsNaN(p.Obj[j]) || math.IsNaN(p.ColLower[j]) || math.IsNaN(p.ColUpper[j]) {
			return fmt.Errorf("%w: NaN in column %d", ErrShape, j)
		}
		if p.ColLower[j] > p.ColUpper[j] {
			return fmt.Errorf("%w: column %d has lower bound %g above upper bound %g",
				ErrShape, j, p.ColLower[j], p.ColUpper[j])
		}
	}

	for i := 0; i < nr; i++ {
		if math.IsNaN(p.RowLower[i]) || math.IsNaN(p.RowUpper[i]) {
			return fmt.Errorf("%w: NaN bound in row %d", ErrShape, i)
		}
		if p.RowLower[i] > p.RowUpper[i] {
			return fmt.Errorf("%w: row %d has lower bound %g above upper bound %g",
				ErrShape, i, p.RowLower[i], p.RowUpper[i])
		}
		for _, v := range p.A.RawRowView(i) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite coefficient in row %d", ErrShape, i)
			}
		}
	}

	for k, c := range p.Cones {
		for _, j := range c {
			if j < 0 || j >= n {
				return fmt.Errorf("%w: cone %d refers to variable %d", ErrShape, k, j)
			}
		}
		if c[0] == c[1] || c[0] == c[2] || c[1] == c[2] {
			return fmt.Errorf("%w: cone %d repeats a variable", ErrShape, k)
		}
	}

	return nil
}

// Value returns the objective value at x.
func (p *Program) Value(x []float64) float64 {
	return floats.Dot(p.Obj, x)
}

// Validate checks that x satisfies every row, column bound and cone of
// the program to within tol.  The first violation found is returned.
func (p *Program) Validate(x []float64, tol float64) error {

	if len(x) != len(p.Obj) {
		return fmt.Errorf("%w: point has length %d, expected %d", ErrShape, len(x), len(p.Obj))
	}

	for j, v := range x {
		if v < p.ColLower[j]-tol || v > p.ColUpper[j]+tol {
			return fmt.Errorf("conic: variable %d = %g outside [%g, %g]",
				j, v, p.ColLower[j], p.ColUpper[j])
		}
	}

	for i := 0; i < p.NumRows(); i++ {
		v := floats.Dot(p.A.RawRowView(i), x)
		if v < p.RowLower[i]-tol || v > p.RowUpper[i]+tol {
			return fmt.Errorf("conic: row %d = %g outside [%g, %g]",
				i, v, p.RowLower[i], p.RowUpper[i])
		}
	}

	for k, c := range p.Cones {
		if !InExpCone(x[c[0]], x[c[1]], x[c[2]], tol) {
			return fmt.Errorf("conic: cone %d violated at (%g, %g, %g)",
				k, x[c[0]], x[c[1]], x[c[2]])
		}
	}

	return nil
}

// InExpCone reports whether (x1, x2, x3) lies in the closed exponential
// cone, allowing a violation of tol.
func InExpCone(x1, x2, x3, tol float64) bool {
	if x1 < -tol || x2 < -tol {
		return false
	}
	if x2 <= tol {
		// Boundary piece of the closure.
		return x3 <= tol
	}
	return x2*math.Exp(x3/x2) <= x1+tol
}
