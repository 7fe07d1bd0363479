package glm

import (
	"fmt"
	"math"
)

// VecFunc is a function with two float64 array arguments.
type VecFunc func([]float64, []float64)

// elementwise returns a VecFunc that sets y[i] = f(x[i]).
func elementwise(f func(float64) float64) VecFunc {
	return func(x, y []float64) {
		for i, v := range x {
			y[i] = f(v)
		}
	}
}

// Link specifies a GLM link function g, mapping the mean to the linear
// predictor.
type Link struct {
	Name string

	TypeCode LinkType

	// Link maps means to linear predictors.
	Link VecFunc

	// InvLink maps linear predictors to means.
	InvLink VecFunc

	// Deriv and Deriv2 are the first two derivatives of the link,
	// as functions of the mean.
	Deriv  VecFunc
	Deriv2 VecFunc
}

// LinkType is used to specify a GLM link function.
type LinkType uint8

// LogLink, etc. indicate the different link functions.
const (
	LogLink LinkType = iota
	IdentityLink
	LogitLink
)

var linkFuncs = map[LinkType]*Link{
	LogLink: {
		Name:     "Log",
		TypeCode: LogLink,
		Link:     elementwise(math.Log),
		InvLink:  elementwise(math.Exp),
		Deriv:    elementwise(func(m float64) float64 { return 1 / m }),
		Deriv2:   elementwise(func(m float64) float64 { return -1 / (m * m) }),
	},
	IdentityLink: {
		Name:     "Identity",
		TypeCode: IdentityLink,
		Link:     elementwise(func(m float64) float64 { return m }),
		InvLink:  elementwise(func(e float64) float64 { return e }),
		Deriv:    elementwise(func(float64) float64 { return 1 }),
		Deriv2:   elementwise(func(float64) float64 { return 0 }),
	},
	LogitLink: {
		Name:     "Logit",
		TypeCode: LogitLink,
		Link:     elementwise(func(p float64) float64 { return math.Log(p / (1 - p)) }),
		InvLink:  elementwise(expit),
		Deriv:    elementwise(func(p float64) float64 { return 1 / (p * (1 - p)) }),
		Deriv2: elementwise(func(p float64) float64 {
			v := p * (1 - p)
			return (2*p - 1) / (v * v)
		}),
	},
}

// expit is the inverse logit, written to avoid overflow for large |e|.
func expit(e float64) float64 {
	if e >= 0 {
		return 1 / (1 + math.Exp(-e))
	}
	u := math.Exp(e)
	return u / (1 + u)
}

// NewLink returns the link function of the given type.
func NewLink(link LinkType) *Link {
	l, ok := linkFuncs[link]
	if !ok {
		panic(fmt.Sprintf("glm: unknown link %d", link))
	}
	return l
}
