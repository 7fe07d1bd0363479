package conic

import (
	"fmt"
)

// Status describes the outcome of a solve.
type Status int

// Failure means that the backend could not reach a conclusion, Optimal
// means that an optimal point was found, and Infeasible means that the
// program has no (strictly) feasible point.
const (
	Failure Status = iota
	Optimal
	Infeasible
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	default:
		return "failure"
	}
}

// Solution is the result of solving a Program.  Objective and X are
// only meaningful when Status is Optimal.
type Solution struct {
	Status     Status
	Objective  float64
	X          []float64
	Iterations int

	// Message describes the reason for a non-optimal status.
	Message string
}

// Solver creates solver sessions.
type Solver interface {
	Open() (Session, error)
}

// Session is a scoped solver resource.  A session is used by one
// goroutine at a time and must be closed when it is no longer needed.
type Session interface {
	Solve(p *Program) *Solution
	Close() error
}

// Solve checks the program, opens a session of s, solves the program
// and closes the session.
func Solve(s Solver, p *Program) (sol *Solution, err error) {

	if err := p.Check(); err != nil {
		return nil, err
	}

	sess, err := s.Open()
	if err != nil {
		return nil, fmt.Errorf("conic: opening solver session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("conic: closing solver session: %w", cerr)
		}
	}()

	return sess.Solve(p), nil
}
