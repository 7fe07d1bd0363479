package barrier

import (
	"math"
)

// expCone is an exponential cone over reduced variables.  A coordinate
// with idx < 0 is fixed at val.
type expCone struct {
	idx [3]int
	val [3]float64
}

func (c *expCone) point(x []float64) (x1, x2, x3 float64) {
	var v [3]float64
	for k := 0; k < 3; k++ {
		if c.idx[k] < 0 {
			v[k] = c.val[k]
		} else {
			v[k] = x[c.idx[k]]
		}
	}
	return v[0], v[1], v[2]
}

// expResidual returns r = x2*log(x1/x2) - x3, which is positive in the
// interior of the cone.
func expResidual(x1, x2, x3 float64) float64 {
	return x2*math.Log(x1/x2) - x3
}

// interior reports whether x is strictly inside the cone.
func (c *expCone) interior(x []float64) bool {
	x1, x2, x3 := c.point(x)
	return x1 > 0 && x2 > 0 && expResidual(x1, x2, x3) > 0
}

// value returns the barrier -log(r) - log(x1) - log(x2), or +Inf outside
// the interior.
func (c *expCone) value(x []float64) float64 {
	x1, x2, x3 := c.point(x)
	if x1 <= 0 || x2 <= 0 {
		return math.Inf(1)
	}
	r := expResidual(x1, x2, x3)
	if r <= 0 {
		return math.Inf(1)
	}
	return -math.Log(r) - math.Log(x1) - math.Log(x2)
}

// derivs returns the gradient and Hessian of the barrier with respect to
// (x1, x2, x3).
func (c *expCone) derivs(x []float64) (g [3]float64, h [3][3]float64) {

	x1, x2, x3 := c.point(x)
	r := expResidual(x1, x2, x3)
	lr := math.Log(x1 / x2)

	dr := [3]float64{x2 / x1, lr - 1, -1}

	// Second derivatives of r, zero in the third coordinate.
	var d2r [3][3]float64
	d2r[0][0] = -x2 / (x1 * x1)
	d2r[0][1] = 1 / x1
	d2r[1][0] = 1 / x1
	d2r[1][1] = -1 / x2

	for a := 0; a < 3; a++ {
		g[a] = -dr[a] / r
		for b := 0; b < 3; b++ {
			h[a][b] = dr[a]*dr[b]/(r*r) - d2r[a][b]/r
		}
	}
	g[0] -= 1 / x1
	g[1] -= 1 / x2
	h[0][0] += 1 / (x1 * x1)
	h[1][1] += 1 / (x2 * x2)

	return g, h
}
