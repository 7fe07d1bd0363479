package rel

import (
	"fmt"

	"github.com/stevensun213/econ5170/statmodel"
	"gonum.org/v1/gonum/optimize"
)

// RELResults describes the results of a relaxed empirical likelihood fit.
// LogLike returns the profiled log empirical likelihood at the estimate.
type RELResults struct {
	statmodel.BaseResults

	weights   []float64
	failures  []Failure
	status    optimize.Status
	converged bool
	lambda    float64
	nevals    int
}

// Weights returns the probability weights at the estimate, or nil if
// the inner program could not be solved there.
func (rslt *RELResults) Weights() []float64 {
	return rslt.weights
}

// Failures returns the inner evaluations that failed during the outer
// optimization.
func (rslt *RELResults) Failures() []Failure {
	return rslt.failures
}

// Status returns the termination status of the outer optimization.
func (rslt *RELResults) Status() optimize.Status {
	return rslt.status
}

// Converged reports whether the outer optimization met its convergence
// criterion.
func (rslt *RELResults) Converged() bool {
	return rslt.converged
}

// Lambda returns the relaxation parameter used in the fit.
func (rslt *RELResults) Lambda() float64 {
	return rslt.lambda
}

// NumEvals returns the number of inner evaluations used by the fit.
func (rslt *RELResults) NumEvals() int {
	return rslt.nevals
}

// RELSummary summarizes a fitted relaxed empirical likelihood model.
type RELSummary struct {
	results *RELResults
}

// Summary returns a summary of the fit.
func (rslt *RELResults) Summary() *RELSummary {
	return &RELSummary{results: rslt}
}

// String returns a summary table for the fit.
func (rs *RELSummary) String() string {

	rslt := rs.results

	sum := &statmodel.SummaryTable{
		Title: "Relaxed empirical likelihood analysis",
	}

	sum.Top = []string{
		fmt.Sprintf("Num obs:   %d", rslt.Model().NumObs()),
		fmt.Sprintf("Lambda:    %g", rslt.lambda),
		fmt.Sprintf("Log EL:    %.4f", rslt.LogLike()),
		fmt.Sprintf("Status:    %s", rslt.status),
		fmt.Sprintf("Converged: %t", rslt.converged),
		fmt.Sprintf("Inner:     %d/%d failed", len(rslt.failures), rslt.nevals),
	}

	if rslt.VCov() != nil {
		sum.ColNames = []string{"Variable   ", "Parameter", "SE", "Z-score", "P-value"}
		sum.ColFmt = []statmodel.Fmter{statmodel.StringFmt, statmodel.NumberFmt,
			statmodel.NumberFmt, statmodel.NumberFmt, statmodel.NumberFmt}
		sum.Cols = []interface{}{
			rslt.Names(),
			rslt.Params(),
			rslt.StdErr(),
			rslt.ZScores(),
			rslt.PValues(),
		}
	} else {
		sum.ColNames = []string{"Variable   ", "Parameter"}
		sum.ColFmt = []statmodel.Fmter{statmodel.StringFmt, statmodel.NumberFmt}
		sum.Cols = []interface{}{
			rslt.Names(),
			rslt.Params(),
		}
		sum.Msg = []string{"Standard errors unavailable, the Hessian is not invertible."}
	}

	return sum.String()
}
