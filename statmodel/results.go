package statmodel

import (
	"fmt"
	"math"

	"github.com/kshedden/dstream/dstream"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// BaseResults contains the results after fitting a model to data.
// Models embed it in their own results types.
type BaseResults struct {
	model   RegFitter
	loglike float64
	params  []float64
	xnames  []string
	vcov    []float64

	// Wald inference, nil when vcov is nil.
	stderr  []float64
	zscores []float64
	pvalues []float64
}

// NewBaseResults returns a BaseResults corresponding to the given fitted
// model.  vcov may be nil, in which case no standard errors are
// available.
func NewBaseResults(model RegFitter, loglike float64, params []float64, xnames []string, vcov []float64) BaseResults {

	rslt := BaseResults{
		model:   model,
		loglike: loglike,
		params:  params,
		xnames:  xnames,
		vcov:    vcov,
	}

	if vcov != nil {
		p := len(params)
		rslt.stderr = make([]float64, p)
		rslt.zscores = make([]float64, p)
		rslt.pvalues = make([]float64, p)
		for j, v := range params {
			se := math.Sqrt(vcov[j*p+j])
			z := v / se
			rslt.stderr[j] = se
			rslt.zscores[j] = z
			rslt.pvalues[j] = 2 * distuv.UnitNormal.CDF(-math.Abs(z))
		}
	}

	return rslt
}

// Model produces the model value used to produce the results.
func (rslt *BaseResults) Model() RegFitter {
	return rslt.model
}

// FittedValues returns the fitted linear predictor.  If da is nil the
// data used to fit the model are used, otherwise da must have the same
// variables as the training data.
func (rslt *BaseResults) FittedValues(da dstream.Dstream) ([]float64, error) {

	train := rslt.model.DataSet()
	if da == nil {
		da = train
	}

	if da.NumVar() != train.NumVar() {
		return nil, fmt.Errorf("statmodel: data has %d variables, the model was fit with %d",
			da.NumVar(), train.NumVar())
	}

	var fv []float64
	da.Reset()
	for da.Next() {
		var chunk []float64
		for k, j := range rslt.model.Xpos() {
			z := da.GetPos(j).([]Dtype)
			if chunk == nil {
				chunk = make([]float64, len(z))
			}
			floats.AddScaled(chunk, rslt.params[k], z)
		}
		fv = append(fv, chunk...)
	}

	return fv, nil
}

// Names returns the names of the parameters.
func (rslt *BaseResults) Names() []string {
	return rslt.xnames
}

// Params returns the point estimates for the parameters in the model.
func (rslt *BaseResults) Params() []float64 {
	return rslt.params
}

// VCov returns the sampling covariance matrix of the parameters,
// vectorized by rows, or nil.
func (rslt *BaseResults) VCov() []float64 {
	return rslt.vcov
}

// LogLike returns the log-likelihood or objective function value for the fitted model.
func (rslt *BaseResults) LogLike() float64 {
	return rslt.loglike
}

// StdErr returns the standard errors for the parameters in the model.
func (rslt *BaseResults) StdErr() []float64 {
	return rslt.stderr
}

// ZScores returns the parameter estimates divided by their standard
// errors.
func (rslt *BaseResults) ZScores() []float64 {
	return rslt.zscores
}

// PValues returns two-sided normal p-values for the null hypothesis
// that each parameter is zero.
func (rslt *BaseResults) PValues() []float64 {
	return rslt.pvalues
}
