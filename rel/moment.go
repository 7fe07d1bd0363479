package rel

import (
	"fmt"
	"math"

	"github.com/stevensun213/econ5170/statmodel"
	"gonum.org/v1/gonum/mat"
)

// Moment is a vector of moment functions h(Z_i, beta) whose expectation
// is zero at the true parameter.
type Moment interface {

	// Dims returns the number of parameters and the number of
	// moment conditions for the given data.
	Dims(data *statmodel.Dataset) (params, moments int)

	// Fill sets row i of h to h(Z_i, beta) for the observations of
	// one chunk.  h has one row per observation of the chunk and
	// one column per moment condition.
	Fill(chunk *statmodel.Chunk, beta []float64, h *mat.Dense)
}

// ComputeMoments returns the n x m moment matrix H(beta), filled one
// chunk of the data at a time.  An error wrapping ErrNumericFault is
// returned if any element is NaN or infinite.
func ComputeMoments(data *statmodel.Dataset, m Moment, beta []float64) (*mat.Dense, error) {

	np, nm := m.Dims(data)
	if len(beta) != np {
		return nil, fmt.Errorf("%w: got %d values, expected %d", ErrDimension, len(beta), np)
	}
	n := data.NumObs()
	if n <= 0 {
		return nil, ErrNoObservations
	}
	if nm == 0 {
		return nil, ErrNoMoments
	}

	h := mat.NewDense(n, nm, nil)
	var nread int
	err := data.Scan(func(c *statmodel.Chunk) error {
		nread += c.Len()
		if c.Len() == 0 {
			return nil
		}
		if nread > n {
			return fmt.Errorf("rel: data stream has more than %d observations", n)
		}
		m.Fill(c, beta, h.Slice(c.Offset, nread, 0, nm).(*mat.Dense))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if nread != n {
		return nil, fmt.Errorf("rel: data stream has %d observations, expected %d", nread, n)
	}

	for i := 0; i < n; i++ {
		for j, v := range h.RawRowView(i) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: observation %d, moment %d", ErrNumericFault, i, j)
			}
		}
	}

	return h, nil
}

// linpred returns the linear predictor x_i'beta for every observation
// of the chunk.
func linpred(c *statmodel.Chunk, beta []float64) []float64 {
	lp := make([]float64, c.Len())
	for j, x := range c.X() {
		for i := range lp {
			lp[i] += beta[j] * x[i]
		}
	}
	return lp
}

// fillIV sets h_ij = z_ij * r_i.
func fillIV(c *statmodel.Chunk, r []float64, h *mat.Dense) {
	for j, z := range c.Z() {
		for i := range r {
			h.Set(i, j, z[i]*r[i])
		}
	}
}

// LinearIV is the instrumental variables moment of a linear model,
// h_ij = z_ij (y_i - x_i'beta).
type LinearIV struct{}

// Dims returns the number of covariates and instruments.
func (LinearIV) Dims(data *statmodel.Dataset) (int, int) {
	return len(data.Xpos()), len(data.Zpos())
}

// Fill computes the moment matrix.
func (LinearIV) Fill(c *statmodel.Chunk, beta []float64, h *mat.Dense) {
	r := linpred(c, beta)
	for i, y := range c.Y() {
		r[i] = y - r[i]
	}
	fillIV(c, r, h)
}

// PoissonIV is the instrumental variables moment of an exponential mean
// model, h_ij = z_ij (y_i - exp(x_i'beta)).  Large linear predictors
// overflow, which ComputeMoments reports as ErrNumericFault.
type PoissonIV struct{}

// Dims returns the number of covariates and instruments.
func (PoissonIV) Dims(data *statmodel.Dataset) (int, int) {
	return len(data.Xpos()), len(data.Zpos())
}

// Fill computes the moment matrix.
func (PoissonIV) Fill(c *statmodel.Chunk, beta []float64, h *mat.Dense) {
	r := linpred(c, beta)
	for i, y := range c.Y() {
		r[i] = y - math.Exp(r[i])
	}
	fillIV(c, r, h)
}

// MomentFunc adapts a function to the Moment interface.
type MomentFunc struct {
	Params  int
	Moments int
	F       func(chunk *statmodel.Chunk, beta []float64, h *mat.Dense)
}

// Dims returns Params and Moments.
func (mf MomentFunc) Dims(*statmodel.Dataset) (int, int) {
	return mf.Params, mf.Moments
}

// Fill calls F.
func (mf MomentFunc) Fill(c *statmodel.Chunk, beta []float64, h *mat.Dense) {
	mf.F(c, beta, h)
}
