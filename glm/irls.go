package glm

import (
	"fmt"
	"math"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Convergence tolerance for the change in deviance between IRLS
// iterations.
const irlsTol = 1e-8

// design returns the covariates of the current chunk.
func (glm *GLM) design() [][]float64 {
	xdat := make([][]float64, len(glm.xpos))
	for j, k := range glm.xpos {
		xdat[j] = glm.data.GetPos(k).([]float64)
	}
	return xdat
}

// fitIRLS fits the model by iteratively reweighted least squares.  The
// first iteration starts from means derived from the outcome, so start
// only determines the returned value if maxiter is zero.
func (glm *GLM) fitIRLS(start []float64, maxiter int) ([]float64, error) {

	p := glm.NumParams()
	ybar := glm.meanOutcome()

	var linpred, mn, lderiv, va, irlsw, adjy []float64

	params := append([]float64(nil), start...)
	prev := math.Inf(1)
	xtx := mat.NewSymDense(p, nil)
	xty := mat.NewVecDense(p, nil)
	var chol mat.Cholesky
	var beta mat.VecDense

	for iter := 1; iter <= maxiter; iter++ {

		xtx.Zero()
		xty.Zero()
		var dev float64

		// Loop over data chunks
		glm.data.Reset()
		for glm.data.Next() {

			yda, wgt, off := glm.columns()
			n := len(yda)
			linpred = resize(linpred, n)
			mn = resize(mn, n)
			lderiv = resize(lderiv, n)
			va = resize(va, n)
			irlsw = resize(irlsw, n)
			adjy = resize(adjy, n)

			if iter == 1 {
				glm.startingMu(yda, ybar, mn)
				glm.link.Link(mn, linpred)
			} else {
				glm.linpred(params, off, linpred)
				glm.link.InvLink(linpred, mn)
			}
			glm.link.Deriv(mn, lderiv)
			glm.vari.Var(mn, va)

			dev += glm.fam.Deviance(yda, mn, wgt, 1)

			// Working weights and working response, the latter
			// net of the offset.
			for i, y := range yda {
				irlsw[i] = 1 / (lderiv[i] * lderiv[i] * va[i])
				adjy[i] = linpred[i] + lderiv[i]*(y-mn[i])
			}
			if wgt != nil {
				floats.Mul(irlsw, wgt)
			}
			if off != nil {
				floats.Sub(adjy, off)
			}

			cx, cy := glm.gram(glm.design(), irlsw, adjy)
			xtx.AddSym(xtx, cx)
			xty.AddVec(xty, cy)
		}

		if !chol.Factorize(xtx) {
			return nil, fmt.Errorf("glm: IRLS iteration %d: weighted cross product is not positive definite", iter)
		}
		if err := chol.SolveVecTo(&beta, xty); err != nil {
			return nil, fmt.Errorf("glm: IRLS iteration %d: %w", iter, err)
		}
		copy(params, beta.RawVector().Data)

		glm.log.Debug("IRLS iteration", zap.Int("iteration", iter), zap.Float64("deviance", dev))

		if iter > 3 && math.Abs(dev-prev) < irlsTol {
			glm.log.Debug("IRLS converged", zap.Int("iterations", iter))
			return params, nil
		}
		prev = dev
	}

	glm.log.Warn("IRLS did not converge", zap.Int("iterations", maxiter))
	return params, nil
}

// meanOutcome returns the unweighted mean of the outcome.
func (glm *GLM) meanOutcome() float64 {
	var sum float64
	var n int
	glm.data.Reset()
	for glm.data.Next() {
		yda, _, _ := glm.columns()
		sum += floats.Sum(yda)
		n += len(yda)
	}
	return sum / float64(n)
}

// gram returns X' diag(w) X and, if z is not nil, X' diag(w) z.  For
// large chunks each column of X is handled in its own goroutine.
func (glm *GLM) gram(xdat [][]float64, w, z []float64) (*mat.SymDense, *mat.VecDense) {

	p := len(xdat)
	xtx := mat.NewSymDense(p, nil)
	xtz := mat.NewVecDense(p, nil)

	col := func(j1 int) {
		wx := make([]float64, len(w))
		floats.MulTo(wx, w, xdat[j1])
		if z != nil {
			xtz.SetVec(j1, floats.Dot(wx, z))
		}
		for j2 := j1; j2 < p; j2++ {
			xtx.SetSym(j1, j2, floats.Dot(wx, xdat[j2]))
		}
	}

	if len(w) < glm.concurrentIRLS {
		for j := range xdat {
			col(j)
		}
		return xtx, xtz
	}

	var wg conc.WaitGroup
	for j := range xdat {
		wg.Go(func() { col(j) })
	}
	wg.Wait()

	return xtx, xtz
}

// startingMu sets mn to starting values for the mean, shrinking the
// outcome toward its average ybar (toward 1/2 for binomial outcomes).
func (glm *GLM) startingMu(y []float64, ybar float64, mn []float64) {

	q := ybar
	if glm.fam.TypeCode == BinomialFamily {
		q = 0.5
	}
	for i := range mn {
		mn[i] = math.Max((y[i]+q)/2, 0.1)
	}
}
