package rel

import (
	"fmt"
	"math"
	"sync"

	"github.com/stevensun213/econ5170/conic"
	"github.com/stevensun213/econ5170/conic/barrier"
	"github.com/stevensun213/econ5170/statmodel"
	"go.uber.org/zap"
)

// Stages of an inner evaluation, used in Failure records.
const (
	StageMoments = "moments"
	StageBuild   = "build"
	StageSolve   = "solve"
)

// Failure records an inner evaluation that did not produce a finite
// value.
type Failure struct {
	Beta   []float64
	Stage  string
	Status conic.Status
	Err    error
}

// InnerResult is the solution of the inner program at one parameter
// value.
type InnerResult struct {

	// The profiled log empirical likelihood, sum_i log pi_i.
	LogEL float64

	// The optimal probability weights.
	Weights []float64

	Solution *conic.Solution
}

// Profiler evaluates the profiled relaxed empirical likelihood at a
// given parameter value by solving the inner conic program.  Apart from
// the record of failed evaluations, a Profiler keeps no state between
// calls.
type Profiler struct {
	data    *statmodel.Dataset
	moment  Moment
	lambda  float64
	builder ProgramBuilder
	solver  conic.Solver
	log     *zap.Logger

	mu       sync.Mutex
	failures []Failure
	nevals   int
}

// NewProfiler returns a Profiler for the given data, moment and
// relaxation parameter.  By default the program is assembled by a
// MatrixBuilder and solved with the barrier backend.
func NewProfiler(data *statmodel.Dataset, m Moment, lambda float64) *Profiler {
	return &Profiler{
		data:    data,
		moment:  m,
		lambda:  lambda,
		builder: MatrixBuilder{},
		solver:  &barrier.Solver{},
		log:     zap.NewNop(),
	}
}

// Builder sets the program builder.
func (p *Profiler) Builder(b ProgramBuilder) *Profiler {
	p.builder = b
	return p
}

// Solver sets the conic solver.
func (p *Profiler) Solver(s conic.Solver) *Profiler {
	p.solver = s
	return p
}

// Log sets the logger that receives warnings about failed evaluations.
func (p *Profiler) Log(log *zap.Logger) *Profiler {
	p.log = log
	return p
}

// Lambda returns the relaxation parameter.
func (p *Profiler) Lambda() float64 {
	return p.lambda
}

// Evaluate returns the negative profiled log empirical likelihood at
// beta, or +Inf if the inner program could not be solved.
func (p *Profiler) Evaluate(beta []float64) float64 {
	r, err := p.Solve(beta)
	if err != nil {
		return math.Inf(1)
	}
	return -r.LogEL
}

// Solve solves the inner program at beta.  Failed evaluations are
// recorded and logged before the error is returned.
func (p *Profiler) Solve(beta []float64) (*InnerResult, error) {

	b := make([]float64, len(beta))
	copy(b, beta)

	p.mu.Lock()
	p.nevals++
	p.mu.Unlock()

	h, err := ComputeMoments(p.data, p.moment, b)
	if err != nil {
		return nil, p.fail(b, StageMoments, conic.Failure, err)
	}

	f, err := p.builder.Build(h, p.lambda)
	if err != nil {
		return nil, p.fail(b, StageBuild, conic.Failure, err)
	}

	sol, err := conic.Solve(p.solver, f.Program)
	if err != nil {
		return nil, p.fail(b, StageSolve, conic.Failure, err)
	}
	if sol.Status != conic.Optimal {
		err = fmt.Errorf("%w: %s: %s", ErrNotOptimal, sol.Status, sol.Message)
		return nil, p.fail(b, StageSolve, sol.Status, err)
	}

	w := make([]float64, len(f.Weights))
	for i, k := range f.Weights {
		w[i] = sol.X[k]
	}

	return &InnerResult{
		LogEL:    sol.Objective,
		Weights:  w,
		Solution: sol,
	}, nil
}

func (p *Profiler) fail(beta []float64, stage string, status conic.Status, err error) error {

	p.log.Warn("inner program failed",
		zap.Float64s("beta", beta),
		zap.String("stage", stage),
		zap.Stringer("status", status),
		zap.Error(err))

	p.mu.Lock()
	p.failures = append(p.failures, Failure{
		Beta:   beta,
		Stage:  stage,
		Status: status,
		Err:    err,
	})
	p.mu.Unlock()

	return err
}

// Failures returns a copy of the record of failed evaluations.
func (p *Profiler) Failures() []Failure {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := make([]Failure, len(p.failures))
	copy(f, p.failures)
	return f
}

// NumEvals returns the number of evaluations performed.
func (p *Profiler) NumEvals() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nevals
}
