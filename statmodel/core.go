package statmodel

import (
	"errors"

	"github.com/kshedden/dstream/dstream"
	"gonum.org/v1/gonum/mat"
)

// Dtype is the storage type of data columns.
type Dtype = float64

// HessType indicates the type of a Hessian matrix for a log-likelihood.
type HessType int

// ObsHess (observed Hessian) and ExpHess (expected Hessian) are the two
// kinds of log-likelihood Hessian.
const (
	ObsHess HessType = iota
	ExpHess
)

// ErrNotPosDef is returned by InvertHessian when the negative Hessian is
// not positive definite.
var ErrNotPosDef = errors.New("statmodel: negative Hessian is not positive definite")

// Parameter is the parameter of a model.  GetCoeff returns the
// coefficient vector, which may be a reference into the parameter.
type Parameter interface {
	GetCoeff() []float64
}

// GenericParameter is a Parameter consisting only of a coefficient vector.
type GenericParameter struct {
	params []float64
}

// NewGenericParameter wraps the given coefficients, which are not copied.
func NewGenericParameter(params []float64) GenericParameter {
	return GenericParameter{params: params}
}

// GetCoeff returns the wrapped coefficients.
func (gp GenericParameter) GetCoeff() []float64 {
	return gp.params
}

// RegFitter is a model with a log-likelihood (or an objective playing
// that role) that can be fit to a data stream.
type RegFitter interface {

	// Number of parameters in the model.
	NumParams() int

	// Number of observations in the data set
	NumObs() int

	// Positions of the covariates in the data stream, or nil if the
	// parameters are not covariate slopes.
	Xpos() []int

	// The data used to fit the model
	DataSet() dstream.Dstream

	// LogLike returns the log-likelihood.  If the second argument is
	// false, terms that do not depend on the parameters may be omitted.
	LogLike(Parameter, bool) float64

	// Score places the gradient of LogLike into its second argument.
	Score(Parameter, []float64)

	// Hessian places the vectorized Hessian of LogLike into its last
	// argument.
	Hessian(Parameter, HessType, []float64)
}

// GetVcov returns the sampling covariance matrix of the parameter
// estimates, obtained by inverting the negative expected Hessian.
func GetVcov(model RegFitter, params Parameter) ([]float64, error) {
	nvar := model.NumParams()
	hess := make([]float64, nvar*nvar)
	model.Hessian(params, ExpHess, hess)
	return InvertHessian(nvar, hess)
}

// InvertHessian returns the inverse of the negative of the vectorized
// nvar x nvar Hessian.  The Hessian is symmetrized before it is
// factored.
func InvertHessian(nvar int, hess []float64) ([]float64, error) {

	neg := mat.NewSymDense(nvar, nil)
	for i := 0; i < nvar; i++ {
		for j := i; j < nvar; j++ {
			neg.SetSym(i, j, -(hess[i*nvar+j]+hess[j*nvar+i])/2)
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(neg) {
		return nil, ErrNotPosDef
	}

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, ErrNotPosDef
	}

	vcov := make([]float64, nvar*nvar)
	for i := 0; i < nvar; i++ {
		for j := 0; j < nvar; j++ {
			vcov[i*nvar+j] = inv.At(i, j)
		}
	}

	return vcov, nil
}
