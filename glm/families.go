package glm

import (
	"fmt"
	"math"

	"github.com/stevensun213/econ5170/statmodel"
)

// FamilyType is the type of GLM family used in a model.
type FamilyType uint8

// BinomialFamily, ... are families for a GLM.
const (
	BinomialFamily FamilyType = iota
	PoissonFamily
	QuasiPoissonFamily
	GaussianFamily
)

// LogLikeFunc evaluates the log-likelihood of a family from the
// outcomes, the means, the weights (nil for unit weights), the scale
// and the exact flag.  If exact is false, terms that do not depend on
// the mean may be omitted.
type LogLikeFunc func(y []statmodel.Dtype, mn []float64, wt []statmodel.Dtype, scale float64, exact bool) float64

// DevianceFunc evaluates the scaled deviance of a family from the
// outcomes, means, weights and scale.
type DevianceFunc func(y []statmodel.Dtype, mn []float64, wt []statmodel.Dtype, scale float64) float64

// Family represents a generalized linear model family.
type Family struct {
	Name string

	TypeCode FamilyType

	LogLike LogLikeFunc

	Deviance DevianceFunc

	// True if the scale parameter is fixed at 1.
	fixedScale bool

	// The valid links for this family.  The first listed link is
	// the canonical link.
	validLinks []LinkType

	variance VarianceType
}

// wsum returns sum_i w_i f(y_i, mn_i), with unit weights if wt is nil.
func wsum(y []statmodel.Dtype, mn []float64, wt []statmodel.Dtype, f func(y, m float64) float64) float64 {
	var s float64
	for i := range y {
		v := f(y[i], mn[i])
		if wt != nil {
			v *= wt[i]
		}
		s += v
	}
	return s
}

var families = map[FamilyType]*Family{
	PoissonFamily: {
		Name:       "Poisson",
		TypeCode:   PoissonFamily,
		LogLike:    poissonLogLike,
		Deviance:   poissonDeviance,
		fixedScale: true,
		validLinks: []LinkType{LogLink, IdentityLink},
		variance:   IdentityVar,
	},

	// The Poisson mean and variance structure with an estimated scale.
	QuasiPoissonFamily: {
		Name:       "QuasiPoisson",
		TypeCode:   QuasiPoissonFamily,
		LogLike:    poissonLogLike,
		Deviance:   poissonDeviance,
		validLinks: []LinkType{LogLink, IdentityLink},
		variance:   IdentityVar,
	},

	BinomialFamily: {
		Name:       "Binomial",
		TypeCode:   BinomialFamily,
		LogLike:    binomialLogLike,
		Deviance:   binomialDeviance,
		fixedScale: true,
		validLinks: []LinkType{LogitLink, LogLink, IdentityLink},
		variance:   BinomialVar,
	},

	GaussianFamily: {
		Name:       "Gaussian",
		TypeCode:   GaussianFamily,
		LogLike:    gaussianLogLike,
		Deviance:   gaussianDeviance,
		validLinks: []LinkType{IdentityLink, LogLink},
		variance:   ConstantVar,
	},
}

// NewFamily returns the family of the given type.
func NewFamily(fam FamilyType) *Family {
	f, ok := families[fam]
	if !ok {
		panic(fmt.Sprintf("glm: unknown family %d", fam))
	}
	return f
}

// IsValidLink reports whether the link may be used with the family.
func (fam *Family) IsValidLink(link LinkType) bool {
	for _, q := range fam.validLinks {
		if link == q {
			return true
		}
	}
	return false
}

// CanonicalLink returns the canonical link of the family.
func (fam *Family) CanonicalLink() LinkType {
	return fam.validLinks[0]
}

func poissonLogLike(y []statmodel.Dtype, mn []float64, wt []statmodel.Dtype, _ float64, exact bool) float64 {
	return wsum(y, mn, wt, func(y, m float64) float64 {
		ll := y*math.Log(m) - m
		if exact {
			g, _ := math.Lgamma(y + 1)
			ll -= g
		}
		return ll
	})
}

// binomialLogLike treats each outcome as a proportion in [0, 1].
func binomialLogLike(y []statmodel.Dtype, mn []float64, wt []statmodel.Dtype, _ float64, _ bool) float64 {
	return wsum(y, mn, wt, func(y, m float64) float64 {
		var ll float64
		if y > 0 {
			ll += y * math.Log(m)
		}
		if y < 1 {
			ll += (1 - y) * math.Log(1-m)
		}
		return ll
	})
}

func gaussianLogLike(y []statmodel.Dtype, mn []float64, wt []statmodel.Dtype, scale float64, _ bool) float64 {
	ll := wsum(y, mn, wt, func(y, m float64) float64 {
		r := y - m
		return -r * r / (2 * scale)
	})
	ws := wsum(y, mn, wt, func(float64, float64) float64 { return 1 })
	return ll - ws*math.Log(2*math.Pi*scale)/2
}

func poissonDeviance(y []statmodel.Dtype, mn []float64, wt []statmodel.Dtype, scale float64) float64 {
	return wsum(y, mn, wt, func(y, m float64) float64 {
		d := -2 * (y - m)
		if y > 0 {
			d += 2 * y * math.Log(y/m)
		}
		return d
	}) / scale
}

func binomialDeviance(y []statmodel.Dtype, mn []float64, wt []statmodel.Dtype, _ float64) float64 {
	return -2 * binomialLogLike(y, mn, wt, 1, false)
}

func gaussianDeviance(y []statmodel.Dtype, mn []float64, wt []statmodel.Dtype, scale float64) float64 {
	return wsum(y, mn, wt, func(y, m float64) float64 {
		r := y - m
		return r * r
	}) / scale
}
