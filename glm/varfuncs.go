package glm

import (
	"fmt"
)

// VarianceType is used to specify a GLM variance function.
type VarianceType uint8

// BinomialVar, ... are the variance functions.
const (
	BinomialVar VarianceType = iota
	IdentityVar
	ConstantVar
)

// Variance represents a GLM variance function V(mu) and its derivative.
type Variance struct {
	Name  string
	Var   VecFunc
	Deriv VecFunc
}

var varFuncs = map[VarianceType]*Variance{
	BinomialVar: {
		Name:  "Binomial",
		Var:   elementwise(func(p float64) float64 { return p * (1 - p) }),
		Deriv: elementwise(func(p float64) float64 { return 1 - 2*p }),
	},
	IdentityVar: {
		Name:  "Identity",
		Var:   elementwise(func(m float64) float64 { return m }),
		Deriv: elementwise(func(float64) float64 { return 1 }),
	},
	ConstantVar: {
		Name:  "Constant",
		Var:   elementwise(func(float64) float64 { return 1 }),
		Deriv: elementwise(func(float64) float64 { return 0 }),
	},
}

// NewVariance returns the variance function of the given type.
func NewVariance(vartype VarianceType) *Variance {
	v, ok := varFuncs[vartype]
	if !ok {
		panic(fmt.Sprintf("glm: unknown variance function %d", vartype))
	}
	return v
}
