package rel

import (
	"errors"
	"fmt"
	"math"

	"github.com/kshedden/dstream/dstream"
	"github.com/sourcegraph/conc/pool"
	"github.com/stevensun213/econ5170/conic"
	"github.com/stevensun213/econ5170/statmodel"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Step used for the finite difference Hessian of the profiled log
// empirical likelihood.
const hessStep = 1e-2

// REL is a relaxed empirical likelihood estimator.  The parameter is
// estimated by minimizing the negative profiled log empirical
// likelihood, each evaluation of which solves an inner conic program
// over the probability weights.
type REL struct {
	data   *statmodel.Dataset
	moment Moment

	// The relaxation parameter
	lambda float64

	// Starting values, zero if not set
	start []float64

	builder ProgramBuilder
	solver  conic.Solver

	// Optimization settings
	settings *optimize.Settings

	// Optimization method, Nelder-Mead if not set
	method optimize.Method

	maxIter int

	// Evaluate finite difference gradients concurrently
	concurrentGrad bool

	log *zap.Logger

	nparams int

	// Profiler of the most recent fit
	prof *Profiler
}

// NewREL returns an estimator for the given data and moment function.
// Call Done to complete the definition.
func NewREL(data *statmodel.Dataset, m Moment) *REL {
	return &REL{
		data:    data,
		moment:  m,
		builder: MatrixBuilder{},
		maxIter: 1000,
		log:     zap.NewNop(),
	}
}

// Lambda sets the relaxation parameter, which must be non-negative.
func (r *REL) Lambda(lambda float64) *REL {
	r.lambda = lambda
	return r
}

// Start sets the starting values of the outer optimization.
func (r *REL) Start(start []float64) *REL {
	r.start = start
	return r
}

// Builder sets the inner program builder.
func (r *REL) Builder(b ProgramBuilder) *REL {
	r.builder = b
	return r
}

// Solver sets the conic solver for the inner program.
func (r *REL) Solver(s conic.Solver) *REL {
	r.solver = s
	return r
}

// OptSettings allows the caller to provide an optimization settings
// value.
func (r *REL) OptSettings(s *optimize.Settings) *REL {
	r.settings = s
	return r
}

// OptMethod sets the optimization method from gonum.Optimize.
// Gradient based methods use central finite difference gradients.
func (r *REL) OptMethod(method optimize.Method) *REL {
	r.method = method
	return r
}

// MaxIter sets the maximum number of major iterations of the outer
// optimization.  It is ignored when OptSettings is used.
func (r *REL) MaxIter(n int) *REL {
	r.maxIter = n
	return r
}

// ConcurrentGrad evaluates the components of finite difference
// gradients and Hessians concurrently.
func (r *REL) ConcurrentGrad(c bool) *REL {
	r.concurrentGrad = c
	return r
}

// Log sets the logger.
func (r *REL) Log(log *zap.Logger) *REL {
	r.log = log
	return r
}

// Done completes the definition of the estimator and validates the
// configuration.
func (r *REL) Done() (*REL, error) {

	if math.IsNaN(r.lambda) || r.lambda < 0 {
		return nil, fmt.Errorf("%w: lambda = %g", ErrNegativeLambda, r.lambda)
	}
	if r.data.NumObs() == 0 {
		return nil, ErrNoObservations
	}

	np, nm := r.moment.Dims(r.data)
	if nm == 0 {
		return nil, ErrNoMoments
	}
	r.nparams = np

	if r.start == nil {
		r.start = make([]float64, np)
	}
	if len(r.start) != np {
		return nil, fmt.Errorf("%w: start has %d values, expected %d", ErrDimension, len(r.start), np)
	}

	r.prof = r.newProfiler()

	return r, nil
}

func (r *REL) newProfiler() *Profiler {
	p := NewProfiler(r.data, r.moment, r.lambda).Builder(r.builder).Log(r.log)
	if r.solver != nil {
		p.Solver(r.solver)
	}
	return p
}

func (r *REL) profiler() *Profiler {
	if r.prof == nil {
		r.prof = r.newProfiler()
	}
	return r.prof
}

// NumParams returns the number of parameters.
func (r *REL) NumParams() int {
	return r.nparams
}

// NumObs returns the number of observations.
func (r *REL) NumObs() int {
	return r.data.NumObs()
}

// Xpos returns the positions of the covariates, or nil if the
// parameters do not correspond to the covariates.
func (r *REL) Xpos() []int {
	if len(r.data.Xpos()) != r.nparams {
		return nil
	}
	return r.data.Xpos()
}

// Dataset returns the data used to fit the model.
func (r *REL) Dataset() *statmodel.Dataset {
	return r.data
}

// DataSet returns the data stream used to fit the model.
func (r *REL) DataSet() dstream.Dstream {
	return r.data.Data()
}

// LogLike returns the profiled log empirical likelihood, which is -Inf
// where the inner program has no solution.
func (r *REL) LogLike(param statmodel.Parameter, exact bool) float64 {
	return -r.profiler().Evaluate(param.GetCoeff())
}

func (r *REL) loglike(x []float64) float64 {
	return -r.profiler().Evaluate(x)
}

// Score returns a central finite difference gradient of the profiled
// log empirical likelihood.
func (r *REL) Score(param statmodel.Parameter, score []float64) {
	fd.Gradient(score, r.loglike, param.GetCoeff(), &fd.Settings{
		Formula:    fd.Central,
		Concurrent: r.concurrentGrad,
	})
}

// Hessian returns a finite difference Hessian of the profiled log
// empirical likelihood.  Only the observed Hessian is available.
func (r *REL) Hessian(param statmodel.Parameter, ht statmodel.HessType, hess []float64) {
	var h mat.SymDense
	fd.Hessian(&h, r.loglike, param.GetCoeff(), &fd.Settings{
		Formula:    fd.Central,
		Step:       hessStep,
		Concurrent: r.concurrentGrad,
	})
	p := h.SymmetricDim()
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			hess[i*p+j] = h.At(i, j)
		}
	}
}

func (r *REL) optSettings() (*optimize.Settings, bool) {

	if r.settings == nil {
		return &optimize.Settings{
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-10,
				Iterations: 50,
			},
			MajorIterations: r.maxIter,
		}, true
	}

	s := *r.settings
	switch c := s.Converger.(type) {
	case nil:
		return &s, true
	case *optimize.FunctionConverge:
		s.Converger = &optimize.FunctionConverge{
			Absolute:   c.Absolute,
			Relative:   c.Relative,
			Iterations: c.Iterations,
		}
		return &s, true
	}
	return &s, false
}

// optMethod returns a method for one fit.  The second return value is
// false if the configured method can not be copied, in which case fits
// must not run concurrently.
func (r *REL) optMethod() (optimize.Method, bool) {
	switch m := r.method.(type) {
	case nil:
		return &optimize.NelderMead{}, true
	case *optimize.NelderMead:
		return &optimize.NelderMead{
			InitialVertices: m.InitialVertices,
			InitialValues:   m.InitialValues,
			Reflection:      m.Reflection,
			Expansion:       m.Expansion,
			Contraction:     m.Contraction,
			Shrink:          m.Shrink,
			SimplexSize:     m.SimplexSize,
		}, true
	case *optimize.BFGS:
		if m.Linesearcher == nil {
			return &optimize.BFGS{GradStopThreshold: m.GradStopThreshold}, true
		}
	case *optimize.LBFGS:
		if m.Linesearcher == nil {
			return &optimize.LBFGS{Store: m.Store, GradStopThreshold: m.GradStopThreshold}, true
		}
	}
	return r.method, false
}

// Fit estimates the parameters.  If the outer optimization stops
// without converging the best point found is returned, and Converged
// reports false.
func (r *REL) Fit() (*RELResults, error) {
	if r.nparams == 0 && r.start == nil {
		return nil, errors.New("rel: Done must be called before Fit")
	}
	settings, _ := r.optSettings()
	method, _ := r.optMethod()
	r.prof = r.newProfiler()
	return r.fit(r.start, r.prof, settings, method)
}

func (r *REL) fit(start []float64, prof *Profiler, settings *optimize.Settings, method optimize.Method) (*RELResults, error) {

	if f0 := prof.Evaluate(start); math.IsInf(f0, 1) {
		var cause error
		if fl := prof.Failures(); len(fl) > 0 {
			cause = fl[len(fl)-1].Err
		}
		return nil, fmt.Errorf("%w: %v", ErrInfeasibleStart, cause)
	}

	problem := optimize.Problem{Func: prof.Evaluate}
	if uses, err := method.Uses(optimize.Available{Grad: true}); err == nil && uses.Grad {
		problem = gradProblem(prof.Evaluate, &fd.Settings{
			Formula:    fd.Central,
			Concurrent: r.concurrentGrad,
		})
	}

	x0 := make([]float64, len(start))
	copy(x0, start)

	optrslt, err := optimize.Minimize(problem, x0, settings, method)
	if optrslt == nil {
		return nil, fmt.Errorf("rel: outer optimization: %w", err)
	}
	if err != nil {
		r.log.Warn("outer optimization stopped with an error",
			zap.Error(err), zap.Stringer("status", optrslt.Status))
	}

	converged := err == nil && optrslt.Status != optimize.NotTerminated && !optrslt.Status.Early()

	beta := make([]float64, len(optrslt.X))
	copy(beta, optrslt.X)

	// The counts cover the evaluations of the outer optimization.
	failures := prof.Failures()
	nevals := prof.NumEvals()

	ll := -optrslt.F
	var weights []float64
	if inner, err := prof.Solve(beta); err == nil {
		weights = inner.Weights
		ll = inner.LogEL
	}

	vcov := r.vcov(beta)

	r.log.Info("REL fit complete",
		zap.Float64s("beta", beta),
		zap.Float64("loglike", ll),
		zap.Stringer("status", optrslt.Status),
		zap.Bool("converged", converged),
		zap.Int("evaluations", nevals),
		zap.Int("failures", len(failures)))

	return &RELResults{
		BaseResults: statmodel.NewBaseResults(r, ll, beta, r.names(), vcov),
		weights:     weights,
		failures:    failures,
		status:      optrslt.Status,
		converged:   converged,
		lambda:      r.lambda,
		nevals:      nevals,
	}, nil
}

// gradProblem returns an outer problem for gradient methods.  The
// objective is +Inf wherever the finite difference gradient of f is not
// finite, so that line searches back away from the edge of the region
// where the inner program is feasible.  Non-finite gradient entries are
// reported as zero.
func gradProblem(f func([]float64) float64, gs *fd.Settings) optimize.Problem {

	// Gradient at the most recent point.
	var at, grad []float64
	finite := true

	eval := func(x []float64) {
		if at != nil && floats.Equal(at, x) {
			return
		}
		at = append(at[:0], x...)
		if len(grad) != len(x) {
			grad = make([]float64, len(x))
		}
		fd.Gradient(grad, f, x, gs)
		finite = true
		for k, g := range grad {
			if math.IsNaN(g) || math.IsInf(g, 0) {
				grad[k] = 0
				finite = false
			}
		}
	}

	return optimize.Problem{
		Func: func(x []float64) float64 {
			v := f(x)
			if math.IsInf(v, 1) {
				return v
			}
			eval(x)
			if !finite {
				return math.Inf(1)
			}
			return v
		},
		Grad: func(g, x []float64) {
			eval(x)
			copy(g, grad)
		},
	}
}

// vcov returns the inverse of the negative Hessian of the profiled log
// empirical likelihood, or nil if it is not finite and positive
// definite.
func (r *REL) vcov(beta []float64) []float64 {

	np := len(beta)
	hess := make([]float64, np*np)
	r.Hessian(statmodel.NewGenericParameter(beta), statmodel.ObsHess, hess)
	for _, v := range hess {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
	}

	vcov, err := statmodel.InvertHessian(np, hess)
	if err != nil {
		r.log.Debug("Hessian is not invertible", zap.Error(err))
		return nil
	}
	for j := 0; j < np; j++ {
		if vcov[j*np+j] <= 0 {
			return nil
		}
	}

	return vcov
}

func (r *REL) names() []string {
	if r.Xpos() != nil {
		return r.data.XNames()
	}
	na := make([]string, r.nparams)
	for j := range na {
		na[j] = fmt.Sprintf("b%d", j)
	}
	return na
}

// FitMultiStart fits the model once from every starting value, using up
// to workers concurrent fits, and returns the converged fit with the
// largest profiled log empirical likelihood.  If no fit converged the
// best non-converged fit is returned.  Fits run one at a time when the
// configured optimization method or convergence check can not be
// copied.
func (r *REL) FitMultiStart(starts [][]float64, workers int) (*RELResults, error) {

	if len(starts) == 0 {
		return nil, errors.New("rel: no starting values")
	}
	for _, s := range starts {
		if len(s) != r.nparams {
			return nil, fmt.Errorf("%w: start has %d values, expected %d", ErrDimension, len(s), r.nparams)
		}
	}

	_, okSettings := r.optSettings()
	_, okMethod := r.optMethod()
	if workers < 1 || !okSettings || !okMethod {
		workers = 1
	}

	type outcome struct {
		results *RELResults
		err     error
	}

	p := pool.NewWithResults[outcome]().WithMaxGoroutines(workers)
	for _, start := range starts {
		p.Go(func() outcome {
			c := *r
			c.prof = c.newProfiler()
			settings, _ := c.optSettings()
			method, _ := c.optMethod()
			res, err := c.fit(start, c.prof, settings, method)
			return outcome{res, err}
		})
	}

	var best *RELResults
	var errs []error
	for _, o := range p.Wait() {
		if o.err != nil {
			errs = append(errs, o.err)
			continue
		}
		if best == nil || better(o.results, best) {
			best = o.results
		}
	}

	if best == nil {
		return nil, errors.Join(errs...)
	}

	return best, nil
}

func better(a, b *RELResults) bool {
	if a.converged != b.converged {
		return a.converged
	}
	return a.LogLike() > b.LogLike()
}
