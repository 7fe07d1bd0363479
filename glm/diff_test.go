package glm

import (
	"fmt"
	"testing"

	"github.com/kshedden/dstream/dstream"
	"github.com/stevensun213/econ5170/statmodel"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// A test problem
type difftestprob struct {
	title  string
	family FamilyType
	link   *LinkType
	data   dstream.Dstream
	weight bool
	offset bool
	params [][]float64
	scale  float64
	l2wgt  []float64
}

var diffTests = []difftestprob{
	{
		title:  "Gaussian 1",
		family: GaussianFamily,
		data:   data1(false),
		scale:  2,
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
	},
	{
		title:  "Gaussian 2",
		family: GaussianFamily,
		data:   data1(true),
		weight: true,
		scale:  2,
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
	},
	{
		title:  "Poisson 1",
		family: PoissonFamily,
		data:   data1(false),
		scale:  1,
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
	},
	{
		title:  "Poisson 2",
		family: PoissonFamily,
		data:   data1(true),
		weight: true,
		scale:  1,
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
	},
	{
		title:  "Poisson offset",
		family: PoissonFamily,
		data:   data5(true),
		weight: true,
		offset: true,
		scale:  1,
		params: [][]float64{{0, 0}, {-1, 0.5}, {0.5, -0.2}},
	},
	{
		title:  "Poisson identity",
		family: PoissonFamily,
		link:   linkp(IdentityLink),
		data:   data1(true),
		weight: true,
		scale:  1,
		params: [][]float64{{2, 0.1}, {1, 0}, {1.5, -0.1}},
	},
	{
		title:  "Binomial 1",
		family: BinomialFamily,
		data:   data2(true),
		weight: true,
		params: [][]float64{{1, 0, 0}, {0, 1, 0}, {1, 1, 1}, {-1, 0, 1}},
		scale:  1,
	},
	{
		title:  "Binomial log",
		family: BinomialFamily,
		link:   linkp(LogLink),
		data:   data2(true),
		weight: true,
		params: [][]float64{{-0.7, 0.1, 0}, {-1, 0, 0.1}, {-2, 0.2, 0.2}},
		scale:  1,
	},
	{
		title:  "Binomial L2",
		family: BinomialFamily,
		data:   data2(true),
		weight: true,
		params: [][]float64{{1, 0, 0}, {-1, 0, 1}},
		scale:  1,
		l2wgt:  []float64{0.2, 0, 0.1},
	},
}

func (dt *difftestprob) model(t *testing.T) *GLM {

	glm := NewGLM(dt.data, "y").Family(dt.family)

	if dt.link != nil {
		glm = glm.Link(*dt.link)
	}

	if dt.weight {
		glm = glm.Weight("w")
	}

	if dt.offset {
		glm = glm.Offset("off")
	}

	if dt.l2wgt != nil {
		glm = glm.L2Weight(dt.l2wgt)
	}

	glm, err := glm.Done()
	require.NoError(t, err, dt.title)
	return glm
}

func TestGrad(t *testing.T) {

	for _, dt := range diffTests {

		glm := dt.model(t)

		p := len(dt.params[0])
		ngrad := make([]float64, p)
		score := make([]float64, p)

		for _, params := range dt.params {

			f := func(x []float64) float64 {
				return glm.LogLike(NewGLMParams(x, dt.scale), false)
			}

			fd.Gradient(ngrad, f, params, nil)
			glm.Score(NewGLMParams(params, dt.scale), score)

			if !floats.EqualApprox(score, ngrad, 1e-5) {
				fmt.Printf("%s %v\n", dt.title, params)
				fmt.Printf("Numeric:    %v\n", ngrad)
				fmt.Printf("Analytic:   %v\n\n", score)
				t.Fail()
			}
		}
	}
}

func TestHess(t *testing.T) {

	for _, dt := range diffTests {

		glm := dt.model(t)

		p := len(dt.params[0])
		nhess := mat.NewSymDense(p, nil)
		hess := make([]float64, p*p)

		for _, params := range dt.params {

			f := func(x []float64) float64 {
				return glm.LogLike(NewGLMParams(x, dt.scale), false)
			}

			fd.Hessian(nhess, f, params, &fd.Settings{Formula: fd.Central, Step: 1e-4})
			glm.Hessian(NewGLMParams(params, dt.scale), statmodel.ObsHess, hess)

			for i := 0; i < p; i++ {
				for j := 0; j < p; j++ {
					if !scalarClose(hess[i*p+j], nhess.At(i, j), 1e-3*(1+absf(hess[i*p+j]))) {
						fmt.Printf("%s %v\n", dt.title, params)
						fmt.Printf("Numeric:    %v\n", mat.Formatted(nhess))
						fmt.Printf("Analytic:   %v\n\n", hess)
						t.Fail()
					}
				}
			}
		}
	}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
