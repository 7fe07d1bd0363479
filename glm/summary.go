package glm

import (
	"fmt"

	"github.com/stevensun213/econ5170/statmodel"
)

// GLMSummary summarizes a fitted generalized linear model.
type GLMSummary struct {
	glm     *GLM
	results *GLMResults

	// If not nil, parameters and confidence limits are displayed
	// after this transformation and the standard errors and Z-scores
	// are omitted.
	paramXform func(float64) float64

	// Messages that are appended to the table
	messages []string
}

// Summary returns a summary of the fitted model.
func (rslt *GLMResults) Summary() *GLMSummary {
	return &GLMSummary{
		glm:     rslt.Model().(*GLM),
		results: rslt,
	}
}

// SetScale displays the parameters and their confidence limits on the
// scale given by xf, e.g. math.Exp for rate ratios, and appends msg to
// the table.
func (gs *GLMSummary) SetScale(xf func(float64) float64, msg string) *GLMSummary {
	gs.paramXform = xf
	gs.messages = append(gs.messages, msg)
	return gs
}

// String returns a string representation of a summary table for the model.
func (gs *GLMSummary) String() string {

	rslt := gs.results
	sum := &statmodel.SummaryTable{
		Title: "Generalized linear model analysis",
		Msg:   gs.messages,
		Top: []string{
			fmt.Sprintf("Family:   %s", gs.glm.fam.Name),
			fmt.Sprintf("Link:     %s", gs.glm.link.Name),
			fmt.Sprintf("Variance: %s", gs.glm.vari.Name),
			fmt.Sprintf("Num obs:  %d", gs.glm.NumObs()),
			fmt.Sprintf("Scale:    %f", rslt.scale),
		},
	}

	xf := gs.paramXform
	if xf == nil {
		xf = func(x float64) float64 { return x }
	}
	xform := func(v []float64) []float64 {
		z := make([]float64, len(v))
		for i, x := range v {
			z[i] = xf(x)
		}
		return z
	}

	fs, fn := statmodel.StringFmt, statmodel.NumberFmt
	sum.ColNames = []string{"Variable   ", "Parameter"}
	sum.ColFmt = []statmodel.Fmter{fs, fn}
	sum.Cols = []interface{}{rslt.Names(), xform(rslt.Params())}

	se := rslt.StdErr()
	if se == nil {
		return sum.String()
	}

	// Confidence limits at two standard errors
	lcb := make([]float64, len(se))
	ucb := make([]float64, len(se))
	for j, p := range rslt.Params() {
		lcb[j] = xf(p - 2*se[j])
		ucb[j] = xf(p + 2*se[j])
	}

	if gs.paramXform == nil {
		sum.ColNames = append(sum.ColNames, "SE", "LCB", "UCB", "Z-score", "P-value")
		sum.Cols = append(sum.Cols, se, lcb, ucb, rslt.ZScores(), rslt.PValues())
	} else {
		sum.ColNames = append(sum.ColNames, "LCB", "UCB", "P-value")
		sum.Cols = append(sum.Cols, lcb, ucb, rslt.PValues())
	}
	for len(sum.ColFmt) < len(sum.Cols) {
		sum.ColFmt = append(sum.ColFmt, fn)
	}

	return sum.String()
}
