package conic

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Var identifies a variable of a Model.
type Var int

// Term is a coefficient applied to a variable in a linear expression.
type Term struct {
	Var   Var
	Coeff float64
}

type linear struct {
	terms        []Term
	lower, upper float64
}

// Model builds a Program from named variables, a list of linear
// constraints and a list of cones.  Errors are recorded when they occur
// and reported by Program.
type Model struct {
	lower, upper []float64
	rows         []linear
	cones        []ExpCone
	sense        Sense
	obj          []Term
	err          error
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{}
}

// NewVar adds a variable with the given bounds.
func (m *Model) NewVar(lower, upper float64) Var {
	if lower > upper && m.err == nil {
		m.err = fmt.Errorf("%w: variable %d has bounds [%g, %g]", ErrShape, len(m.lower), lower, upper)
	}
	m.lower = append(m.lower, lower)
	m.upper = append(m.upper, upper)
	return Var(len(m.lower) - 1)
}

// NumVars returns the number of variables added so far.
func (m *Model) NumVars() int {
	return len(m.lower)
}

func (m *Model) checkVar(v Var) {
	if (v < 0 || int(v) >= len(m.lower)) && m.err == nil {
		m.err = fmt.Errorf("%w: unknown variable %d", ErrShape, v)
	}
}

// Linear adds the constraint lower <= sum(terms) <= upper.  Use equal
// bounds for an equality and ±Inf for a one-sided constraint.
func (m *Model) Linear(terms []Term, lower, upper float64) {
	for _, t := range terms {
		m.checkVar(t.Var)
	}
	if (math.IsNaN(lower) || math.IsNaN(upper) || lower > upper) && m.err == nil {
		m.err = fmt.Errorf("%w: constraint %d has bounds [%g, %g]", ErrShape, len(m.rows), lower, upper)
	}
	tc := make([]Term, len(terms))
	copy(tc, terms)
	m.rows = append(m.rows, linear{terms: tc, lower: lower, upper: upper})
}

// ExpCone constrains (x1, x2, x3) to the exponential cone.
func (m *Model) ExpCone(x1, x2, x3 Var) {
	m.checkVar(x1)
	m.checkVar(x2)
	m.checkVar(x3)
	m.cones = append(m.cones, ExpCone{int(x1), int(x2), int(x3)})
}

// Maximize sets the objective to maximize sum(terms).
func (m *Model) Maximize(terms []Term) {
	m.objective(Maximize, terms)
}

// Minimize sets the objective to minimize sum(terms).
func (m *Model) Minimize(terms []Term) {
	m.objective(Minimize, terms)
}

func (m *Model) objective(sense Sense, terms []Term) {
	for _, t := range terms {
		m.checkVar(t.Var)
	}
	m.sense = sense
	m.obj = make([]Term, len(terms))
	copy(m.obj, terms)
}

// Program assembles the model into a Program.  Terms referring to the
// same variable are summed.
func (m *Model) Program() (*Program, error) {

	if m.err != nil {
		return nil, m.err
	}

	n := len(m.lower)
	p := &Program{
		Sense:    m.sense,
		Obj:      make([]float64, n),
		ColLower: make([]float64, n),
		ColUpper: make([]float64, n),
		RowLower: make([]float64, len(m.rows)),
		RowUpper: make([]float64, len(m.rows)),
		Cones:    make([]ExpCone, len(m.cones)),
	}
	copy(p.ColLower, m.lower)
	copy(p.ColUpper, m.upper)
	copy(p.Cones, m.cones)

	for _, t := range m.obj {
		p.Obj[t.Var] += t.Coeff
	}

	if len(m.rows) > 0 && n > 0 {
		p.A = mat.NewDense(len(m.rows), n, nil)
		for i, r := range m.rows {
			row := p.A.RawRowView(i)
			for _, t := range r.terms {
				row[t.Var] += t.Coeff
			}
			p.RowLower[i] = r.lower
			p.RowUpper[i] = r.upper
		}
	} else if len(m.rows) > 0 {
		return nil, fmt.Errorf("%w: constraints without variables", ErrShape)
	}

	return p, nil
}
