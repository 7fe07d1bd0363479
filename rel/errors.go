package rel

import (
	"errors"
)

// Configuration errors, returned before any work is done.
var (
	ErrNegativeLambda = errors.New("rel: relaxation parameter must be non-negative")
	ErrNoObservations = errors.New("rel: no observations")
	ErrNoMoments      = errors.New("rel: no moment conditions")
	ErrDimension      = errors.New("rel: parameter has the wrong dimension")
)

// ErrNumericFault is returned when a moment function produces a NaN or
// infinite value.
var ErrNumericFault = errors.New("rel: non-finite moment value")

// ErrNotOptimal is returned when the inner program is not solved to
// optimality, including when it is infeasible.
var ErrNotOptimal = errors.New("rel: inner program not solved")

// ErrInfeasibleStart is returned by Fit when the inner program has no
// solution at the starting value.
var ErrInfeasibleStart = errors.New("rel: inner program has no solution at the starting value")
