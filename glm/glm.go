package glm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kshedden/dstream/dstream"
	"github.com/stevensun213/econ5170/statmodel"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// ErrNoFamily is returned by Done if the family was not set.
var ErrNoFamily = errors.New("glm: the family must be set before calling Done")

// GLM represents a generalized linear model.  The data are read from a
// dstream one chunk at a time.
type GLM struct {
	data dstream.Dstream

	// The outcome and its position in the stream
	yname string
	ypos  int

	// Positions of the covariates, all variables that are not the
	// outcome, weight or offset.
	xpos []int

	// Optional offset and frequency weight columns, by name.  The
	// positions are -1 when absent.
	offsetname string
	weightname string
	offsetpos  int
	weightpos  int

	fam      *Family
	linktype *LinkType
	link     *Link
	vari     *Variance

	// Either irls (the default) or gradient.
	fitMethod string

	start []float64

	// Ridge penalty weights, fitting always uses the gradient method
	// when present.
	l2wgt []float64

	settings *optimize.Settings
	method   optimize.Method

	log *zap.Logger

	// IRLS cross products are computed concurrently for chunks with
	// at least this many observations.
	concurrentIRLS int
}

// GLMParams represents the model parameters for a GLM.
type GLMParams struct {
	coeff []float64
	scale float64
}

// NewGLMParams returns a parameter value with the given coefficients
// and scale.
func NewGLMParams(coeff []float64, scale float64) *GLMParams {
	return &GLMParams{coeff: coeff, scale: scale}
}

// GetCoeff returns the coefficients of the covariates.
func (p *GLMParams) GetCoeff() []float64 {
	return p.coeff
}

// scaleOf returns the scale of a parameter, or 1 if the parameter does
// not carry one.
func scaleOf(param statmodel.Parameter) float64 {
	if gp, ok := param.(*GLMParams); ok {
		return gp.scale
	}
	return 1
}

// GLMResults describes the results of a fitted generalized linear model.
type GLMResults struct {
	statmodel.BaseResults

	scale float64
}

// Scale returns the estimated scale parameter.
func (rslt *GLMResults) Scale() float64 {
	return rslt.scale
}

// NewGLM creates a new GLM for the named outcome of the given data
// stream.  All other variables except the weight and offset are
// covariates.  The family must be set before calling Done.
func NewGLM(data dstream.Dstream, yname string) *GLM {
	return &GLM{
		data:           data,
		yname:          yname,
		ypos:           -1,
		offsetpos:      -1,
		weightpos:      -1,
		fitMethod:      "irls",
		log:            zap.NewNop(),
		concurrentIRLS: 1000,
	}
}

// Log sets the logger that receives the fitting progress.
func (glm *GLM) Log(log *zap.Logger) *GLM {
	glm.log = log
	return glm
}

// ConcurrentIRLS sets the minimum chunk size for which concurrent
// calculations are used.
func (glm *GLM) ConcurrentIRLS(n int) *GLM {
	glm.concurrentIRLS = n
	return glm
}

// FitMethod sets the fitting method, either IRLS or gradient.
func (glm *GLM) FitMethod(method string) *GLM {
	m := strings.ToLower(method)
	if m != "irls" && m != "gradient" {
		panic(fmt.Sprintf("glm: fitting method %s not allowed", method))
	}
	glm.fitMethod = m
	return glm
}

// Offset sets the name of the offset variable
func (glm *GLM) Offset(name string) *GLM {
	glm.offsetname = name
	return glm
}

// Weight sets the name of the frequency weight variable.
func (glm *GLM) Weight(name string) *GLM {
	glm.weightname = name
	return glm
}

// Family sets the GLM family.
func (glm *GLM) Family(fam FamilyType) *GLM {
	glm.fam = NewFamily(fam)
	return glm
}

// Link sets the link function, which must be valid for the family.
// The canonical link of the family is used if Link is not called.
func (glm *GLM) Link(link LinkType) *GLM {
	glm.linktype = &link
	return glm
}

// L2Weight sets the ridge penalty weights, one per covariate.
func (glm *GLM) L2Weight(l2wgt []float64) *GLM {
	glm.l2wgt = l2wgt
	return glm
}

// Start sets starting values for gradient fitting.
func (glm *GLM) Start(start []float64) *GLM {
	glm.start = start
	return glm
}

// OptSettings sets the gonum optimization settings used for gradient
// fitting.
func (glm *GLM) OptSettings(s *optimize.Settings) *GLM {
	glm.settings = s
	return glm
}

// OptMethod sets the gonum optimization method used for gradient
// fitting, BFGS by default.
func (glm *GLM) OptMethod(method optimize.Method) *GLM {
	glm.method = method
	return glm
}

// Done validates the model definition.  After calling Done the GLM can
// be fit by calling the Fit method.
func (glm *GLM) Done() (*GLM, error) {

	if glm.fam == nil {
		return nil, ErrNoFamily
	}

	lt := glm.fam.CanonicalLink()
	if glm.linktype != nil {
		lt = *glm.linktype
	}
	if !glm.fam.IsValidLink(lt) {
		return nil, fmt.Errorf("glm: link %s is not valid for the %s family", NewLink(lt).Name, glm.fam.Name)
	}
	glm.link = NewLink(lt)
	glm.vari = NewVariance(glm.fam.variance)

	if err := glm.findvars(); err != nil {
		return nil, err
	}

	p := glm.NumParams()
	if len(glm.start) == 0 {
		glm.start = make([]float64, p)
	}
	if len(glm.start) != p {
		return nil, fmt.Errorf("glm: %d starting values for %d covariates", len(glm.start), p)
	}
	if glm.l2wgt != nil && len(glm.l2wgt) != p {
		return nil, fmt.Errorf("glm: %d L2 weights for %d covariates", len(glm.l2wgt), p)
	}

	return glm, nil
}

// findvars locates the variables of the model in the stream.
func (glm *GLM) findvars() error {

	glm.ypos, glm.weightpos, glm.offsetpos = -1, -1, -1
	glm.xpos = glm.xpos[0:0]

	for k, na := range glm.data.Names() {
		switch na {
		case glm.yname:
			glm.ypos = k
		case glm.weightname:
			glm.weightpos = k
		case glm.offsetname:
			glm.offsetpos = k
		default:
			glm.xpos = append(glm.xpos, k)
		}
	}

	if glm.ypos == -1 {
		return fmt.Errorf("glm: outcome variable '%s' not found", glm.yname)
	}
	if glm.weightpos == -1 && glm.weightname != "" {
		return fmt.Errorf("glm: weight variable '%s' not found", glm.weightname)
	}
	if glm.offsetpos == -1 && glm.offsetname != "" {
		return fmt.Errorf("glm: offset variable '%s' not found", glm.offsetname)
	}

	return nil
}

// NumParams returns the number of covariates in the model.
func (glm *GLM) NumParams() int {
	return len(glm.xpos)
}

// NumObs returns the number of observations.
func (glm *GLM) NumObs() int {
	return glm.data.NumObs()
}

// Xpos returns the positions of the covariates in the model's data
// stream.
func (glm *GLM) Xpos() []int {
	return glm.xpos
}

// DataSet returns the data stream that is used to fit the model.
func (glm *GLM) DataSet() dstream.Dstream {
	return glm.data
}

// xnames returns the covariate names.
func (glm *GLM) xnames() []string {
	names := glm.data.Names()
	xn := make([]string, len(glm.xpos))
	for j, k := range glm.xpos {
		xn[j] = names[k]
	}
	return xn
}

// columns returns the outcome, weight and offset variables of the
// current chunk.  The weight and offset are nil if not present.
func (glm *GLM) columns() (yda, wgts, off []float64) {
	yda = glm.data.GetPos(glm.ypos).([]float64)
	if glm.weightpos != -1 {
		wgts = glm.data.GetPos(glm.weightpos).([]float64)
	}
	if glm.offsetpos != -1 {
		off = glm.data.GetPos(glm.offsetpos).([]float64)
	}
	return
}

// linpred sets lp to the linear predictor of the current chunk at
// coeff, including the offset if off is not nil.
func (glm *GLM) linpred(coeff, off, lp []float64) {
	if off != nil {
		copy(lp, off)
	} else {
		zero(lp)
	}
	for j, k := range glm.xpos {
		floats.AddScaled(lp, coeff[j], glm.data.GetPos(k).([]float64))
	}
}

// fitted holds the per-observation quantities that the log-likelihood
// derivatives are built from.
type fitted struct {
	y, wgts []float64

	// Mean, link derivative and variance
	mn, deriv, va []float64
}

// fitAt returns the fitted quantities for the current chunk.
func (glm *GLM) fitAt(coeff []float64) *fitted {

	yda, wgts, off := glm.columns()
	n := len(yda)
	f := &fitted{
		y:     yda,
		wgts:  wgts,
		mn:    make([]float64, n),
		deriv: make([]float64, n),
		va:    make([]float64, n),
	}

	lp := make([]float64, n)
	glm.linpred(coeff, off, lp)
	glm.link.InvLink(lp, f.mn)
	glm.link.Deriv(f.mn, f.deriv)
	glm.vari.Var(f.mn, f.va)

	return f
}

// penalty returns the ridge penalty scaled by the sample size.
func (glm *GLM) penalty(coeff []float64) float64 {
	var pen float64
	for j, v := range glm.l2wgt {
		pen += v * coeff[j] * coeff[j]
	}
	return float64(glm.NumObs()) * pen / 2
}

// LogLike returns the log-likelihood value for the generalized linear
// model at the given parameter values, less the ridge penalty if
// present.
func (glm *GLM) LogLike(params statmodel.Parameter, exact bool) float64 {

	coeff := params.GetCoeff()
	scale := scaleOf(params)

	var lp, mn []float64
	var ll float64
	glm.data.Reset()
	for glm.data.Next() {
		yda, wgts, off := glm.columns()
		lp = resize(lp, len(yda))
		mn = resize(mn, len(yda))
		glm.linpred(coeff, off, lp)
		glm.link.InvLink(lp, mn)
		ll += glm.fam.LogLike(yda, mn, wgts, scale, exact)
	}

	return ll - glm.penalty(coeff)
}

// Score places the score vector of LogLike at the given parameter into
// score.
func (glm *GLM) Score(params statmodel.Parameter, score []float64) {

	coeff := params.GetCoeff()
	scale := scaleOf(params)
	zero(score)

	var fac []float64
	glm.data.Reset()
	for glm.data.Next() {
		f := glm.fitAt(coeff)
		fac = resize(fac, len(f.y))
		for i, y := range f.y {
			fac[i] = (y - f.mn[i]) / (f.deriv[i] * f.va[i] * scale)
		}
		if f.wgts != nil {
			floats.Mul(fac, f.wgts)
		}
		for j, k := range glm.xpos {
			score[j] += floats.Dot(fac, glm.data.GetPos(k).([]float64))
		}
	}

	if glm.l2wgt != nil {
		nobs := float64(glm.NumObs())
		for j, v := range glm.l2wgt {
			score[j] -= nobs * v * coeff[j]
		}
	}
}

// Hessian places the vectorized Hessian matrix of LogLike into hess.
// Either the observed or expected Hessian can be calculated.
func (glm *GLM) Hessian(param statmodel.Parameter, ht statmodel.HessType, hess []float64) {

	coeff := param.GetCoeff()
	scale := scaleOf(param)
	p := glm.NumParams()
	info := mat.NewSymDense(p, nil)

	var fac, d2, vd []float64
	glm.data.Reset()
	for glm.data.Next() {
		f := glm.fitAt(coeff)
		n := len(f.y)

		// Expected information per observation
		fac = resize(fac, n)
		for i := range fac {
			fac[i] = 1 / (f.deriv[i] * f.deriv[i] * f.va[i] * scale)
		}

		// The observed information adds a term involving the residual.
		if ht == statmodel.ObsHess {
			d2 = resize(d2, n)
			vd = resize(vd, n)
			glm.link.Deriv2(f.mn, d2)
			glm.vari.Deriv(f.mn, vd)
			for i, y := range f.y {
				h := f.va[i]*d2[i] + f.deriv[i]*vd[i]
				fac[i] *= 1 + h*(y-f.mn[i])/(f.deriv[i]*f.va[i])
			}
		}

		if f.wgts != nil {
			floats.Mul(fac, f.wgts)
		}

		xtx, _ := glm.gram(glm.design(), fac, nil)
		info.AddSym(info, xtx)
	}

	nobs := float64(glm.NumObs())
	for j1 := 0; j1 < p; j1++ {
		for j2 := 0; j2 < p; j2++ {
			hess[j1*p+j2] = -info.At(j1, j2)
		}
		if glm.l2wgt != nil {
			hess[j1*p+j1] -= nobs * glm.l2wgt[j1]
		}
	}
}

// Fit estimates the parameters of the GLM and returns a results
// object.  Fits with L2 regularization always use gradient
// optimization.
func (glm *GLM) Fit() (*GLMResults, error) {

	if glm.link == nil {
		return nil, errors.New("glm: Done must be called before Fit")
	}

	start := append([]float64(nil), glm.start...)

	method := glm.fitMethod
	if glm.l2wgt != nil {
		method = "gradient"
	}

	var params []float64
	var err error
	if method == "gradient" {
		glm.log.Debug("fitting using gradient optimization", zap.String("family", glm.fam.Name))
		params, err = glm.fitGradient(start)
	} else {
		glm.log.Debug("fitting using IRLS", zap.String("family", glm.fam.Name))
		params, err = glm.fitIRLS(start, 20)
	}
	if err != nil {
		return nil, err
	}

	scale := glm.EstimateScale(params)
	par := NewGLMParams(params, scale)

	vcov, err := statmodel.GetVcov(glm, par)
	if err != nil {
		glm.log.Warn("standard errors unavailable", zap.Error(err))
		vcov = nil
	}

	ll := glm.LogLike(par, true)

	glm.log.Info("GLM fit complete",
		zap.String("family", glm.fam.Name),
		zap.Float64s("params", params),
		zap.Float64("loglike", ll),
		zap.Float64("scale", scale))

	return &GLMResults{
		BaseResults: statmodel.NewBaseResults(glm, ll, params, glm.xnames(), vcov),
		scale:       scale,
	}, nil
}

// fitGradient maximizes the log-likelihood with gonum optimize.
func (glm *GLM) fitGradient(start []float64) ([]float64, error) {

	p := optimize.Problem{
		Func: func(x []float64) float64 {
			return -glm.LogLike(NewGLMParams(x, 1), false)
		},
		Grad: func(grad, x []float64) {
			glm.Score(NewGLMParams(x, 1), grad)
			floats.Scale(-1, grad)
		},
	}

	settings := glm.settings
	if settings == nil {
		settings = &optimize.Settings{GradientThreshold: 1e-6}
	}

	method := glm.method
	if method == nil {
		method = &optimize.BFGS{}
	}

	optrslt, err := optimize.Minimize(p, start, settings, method)
	if err == nil && optrslt != nil {
		err = optrslt.Status.Err()
	}
	if err != nil {
		if optrslt != nil {
			glm.failMessage(optrslt)
		}
		return nil, fmt.Errorf("glm: gradient fit: %w", err)
	}

	return append([]float64(nil), optrslt.X...), nil
}

// failMessage logs the final iterate of a failed optimization next to
// the scale of each covariate.
func (glm *GLM) failMessage(optrslt *optimize.Result) {

	// Get the covariates to avoid repeated type assertions
	xvars := make([][]float64, len(glm.xpos))
	glm.data.Reset()
	for glm.data.Next() {
		for j, k := range glm.xpos {
			xvars[j] = append(xvars[j], glm.data.GetPos(k).([]float64)...)
		}
	}

	xnames := glm.xnames()
	for j, x := range optrslt.X {
		mn, sd := stat.MeanStdDev(xvars[j], nil)
		fields := []zap.Field{
			zap.String("variable", xnames[j]),
			zap.Float64("value", x),
			zap.Float64("mean", mn),
			zap.Float64("sd", sd),
		}
		if optrslt.Gradient != nil {
			fields = append(fields, zap.Float64("gradient", optrslt.Gradient[j]))
		}
		glm.log.Warn("gradient fit failed", fields...)
	}
}

// EstimateScale returns the Pearson estimate of the scale parameter at
// the given coefficients, or 1 for families with a fixed scale.
func (glm *GLM) EstimateScale(params []float64) float64 {

	if glm.fam.fixedScale {
		return 1
	}

	var scale, ws float64
	glm.data.Reset()
	for glm.data.Next() {
		f := glm.fitAt(params)
		for i, y := range f.y {
			w := 1.0
			if f.wgts != nil {
				w = f.wgts[i]
			}
			r := y - f.mn[i]
			scale += w * r * r / f.va[i]
			ws += w
		}
	}

	return scale / (ws - float64(glm.NumParams()))
}

// resize returns a float64 slice of length n, using the initial
// subslice of x if it is big enough.
func resize(x []float64, n int) []float64 {
	if cap(x) >= n {
		return x[0:n]
	}
	return make([]float64, n)
}

// zero sets all elements of the slice to 0
func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}
