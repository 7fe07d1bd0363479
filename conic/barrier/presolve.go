package barrier

import (
	"fmt"
	"math"

	"github.com/stevensun213/econ5170/conic"
	"gonum.org/v1/gonum/mat"
)

// Tolerance used when checking rows that only involve fixed columns.
const fixedRowTol = 1e-9

// reduced is a program with fixed columns removed, written as a
// minimization over the remaining (active) columns.
type reduced struct {

	// active[k] is the program column of reduced variable k.
	active []int

	// Values of the fixed columns, zero for active columns.
	fixed []float64

	// Minimization objective over the active columns and the
	// contribution of the fixed columns.
	c  []float64
	c0 float64

	// Equality rows, nil when there are none.
	eq *mat.Dense
	b  []float64

	ineq  []affine
	cones []expCone

	// x3[k] is true if reduced variable k is a cone third coordinate.
	x3 []bool
}

// reduce removes the fixed columns of p and checks that its cones have
// the supported structure.  A non-nil Solution is returned when the
// program cannot be reduced.
func reduce(p *conic.Program) (*reduced, *conic.Solution) {

	n := p.NumVars()
	nr := p.NumRows()

	sign := 1.0
	if p.Sense == conic.Maximize {
		sign = -1
	}

	isFixed := make([]bool, n)
	red := &reduced{fixed: make([]float64, n)}
	for j := 0; j < n; j++ {
		lo, hi := p.ColLower[j], p.ColUpper[j]
		if lo == hi && !math.IsInf(lo, 0) {
			isFixed[j] = true
			red.fixed[j] = lo
		}
	}

	// An equality row with a single unfixed column fixes that column.
	for changed := true; changed; {
		changed = false
		for i := 0; i < nr; i++ {
			if p.RowLower[i] != p.RowUpper[i] {
				continue
			}
			row := p.A.RawRowView(i)
			var shift float64
			free, cnt := -1, 0
			for j, v := range row {
				if v == 0 {
					continue
				}
				if isFixed[j] {
					shift += v * red.fixed[j]
					continue
				}
				free = j
				cnt++
			}
			if cnt != 1 {
				continue
			}
			v := (p.RowLower[i] - shift) / row[free]
			lo, hi := p.ColLower[free], p.ColUpper[free]
			tol := fixedRowTol * (1 + math.Abs(v))
			if v < lo-tol || v > hi+tol {
				return nil, infeasible(fmt.Sprintf("row %d fixes variable %d at %g, outside its bounds", i, free, v), 0)
			}
			isFixed[free] = true
			red.fixed[free] = math.Min(math.Max(v, lo), hi)
			changed = true
		}
	}

	// Cone structure.
	inCone := make([]int, n)
	for j := range inCone {
		inCone[j] = -1
	}
	for k, c := range p.Cones {
		for _, j := range c {
			if inCone[j] >= 0 {
				return nil, fail(fmt.Sprintf("variable %d appears in cones %d and %d", j, inCone[j], k), 0)
			}
			inCone[j] = k
		}

		j3 := c[2]
		if !math.IsInf(p.ColLower[j3], -1) || !math.IsInf(p.ColUpper[j3], 1) {
			return nil, fail(fmt.Sprintf("cone %d: third coordinate must be a free column", k), 0)
		}
		for i := 0; i < nr; i++ {
			if p.A.At(i, j3) != 0 {
				return nil, fail(fmt.Sprintf("cone %d: third coordinate appears in row %d", k, i), 0)
			}
		}

		j2 := c[1]
		free := math.IsInf(p.ColLower[j2], -1) && math.IsInf(p.ColUpper[j2], 1)
		if !free && !(isFixed[j2] && red.fixed[j2] > 0) {
			return nil, fail(fmt.Sprintf("cone %d: second coordinate must be free or fixed positive", k), 0)
		}

		if isFixed[j2] && red.fixed[j2] <= 0 {
			return nil, infeasible(fmt.Sprintf("cone %d: second coordinate fixed at %g", k, red.fixed[j2]), 0)
		}

		j1 := c[0]
		if isFixed[j1] && red.fixed[j1] <= 0 {
			return nil, infeasible(fmt.Sprintf("cone %d: first coordinate fixed at %g", k, red.fixed[j1]), 0)
		}
	}

	pos := make([]int, n)
	for j := 0; j < n; j++ {
		pos[j] = -1
		if isFixed[j] {
			red.c0 += sign * p.Obj[j] * red.fixed[j]
			continue
		}
		pos[j] = len(red.active)
		red.active = append(red.active, j)
		red.c = append(red.c, sign*p.Obj[j])
		red.x3 = append(red.x3, inCone[j] >= 0 && p.Cones[inCone[j]][2] == j)
	}
	na := len(red.active)

	// Rows.
	var eqRows [][]float64
	for i := 0; i < nr; i++ {
		row := p.A.RawRowView(i)
		var shift float64
		var idx []int
		var coef []float64
		for j, v := range row {
			if v == 0 {
				continue
			}
			if isFixed[j] {
				shift += v * red.fixed[j]
				continue
			}
			idx = append(idx, pos[j])
			coef = append(coef, v)
		}
		lo := p.RowLower[i] - shift
		hi := p.RowUpper[i] - shift

		if len(idx) == 0 {
			tol := fixedRowTol * (1 + math.Abs(shift))
			if lo > tol || hi < -tol {
				return nil, infeasible(fmt.Sprintf("row %d is violated by the fixed columns", i), 0)
			}
			continue
		}

		if p.RowLower[i] == p.RowUpper[i] {
			dense := make([]float64, na)
			for u, k := range idx {
				dense[k] = coef[u]
			}
			eqRows = append(eqRows, dense)
			red.b = append(red.b, lo)
			continue
		}

		if !math.IsInf(lo, -1) {
			red.ineq = append(red.ineq, affine{idx: idx, coef: coef, c: -lo})
		}
		if !math.IsInf(hi, 1) {
			neg := make([]float64, len(coef))
			for u, v := range coef {
				neg[u] = -v
			}
			red.ineq = append(red.ineq, affine{idx: idx, coef: neg, c: hi})
		}
	}

	if len(eqRows) > 0 {
		red.eq = mat.NewDense(len(eqRows), na, nil)
		for i, r := range eqRows {
			red.eq.SetRow(i, r)
		}
	}

	// Column bounds.
	for k, j := range red.active {
		if lo := p.ColLower[j]; !math.IsInf(lo, -1) {
			red.ineq = append(red.ineq, affine{idx: []int{k}, coef: []float64{1}, c: -lo})
		}
		if hi := p.ColUpper[j]; !math.IsInf(hi, 1) {
			red.ineq = append(red.ineq, affine{idx: []int{k}, coef: []float64{-1}, c: hi})
		}
	}

	for _, c := range p.Cones {
		var ec expCone
		for u, j := range c {
			ec.idx[u] = pos[j]
			if pos[j] < 0 {
				ec.val[u] = red.fixed[j]
			}
		}
		red.cones = append(red.cones, ec)
	}

	return red, nil
}
