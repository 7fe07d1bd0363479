//go:build ignore

/*
This simulation generates count data from a Poisson model with one
covariate and an additional valid instrument.  It compares the Poisson
pseudo maximum likelihood (PPML) estimate of the slope with relaxed
empirical likelihood estimates that use the PPML estimate as the
starting value.
*/

package main

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/kshedden/dstream/dstream"
	"github.com/sourcegraph/conc/pool"
	"github.com/stevensun213/econ5170/glm"
	"github.com/stevensun213/econ5170/rel"
	"github.com/stevensun213/econ5170/statmodel"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	nrep   = 200
	icept  = 0.5
	slope  = 0.5
	lambda = 0.01
)

// simulate returns a stream of the outcome and covariates for the GLM,
// and a data set that adds the instrument z for REL.
func simulate(n int, seed uint64) (dstream.Dstream, *statmodel.Dataset) {

	src := rand.NewPCG(seed, 9127)
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	y := make([]float64, n)
	one := make([]float64, n)
	x := make([]float64, n)
	z := make([]float64, n)
	for i := range y {
		one[i] = 1
		z[i] = norm.Rand()
		x[i] = (z[i] + norm.Rand()) / math.Sqrt2
		po := distuv.Poisson{Lambda: math.Exp(icept + slope*x[i]), Src: src}
		y[i] = po.Rand()
	}

	gd := dstream.NewFromFlat([]interface{}{y, one, x}, []string{"y", "icept", "x"})

	rd := dstream.NewFromFlat([]interface{}{y, one, x, z}, []string{"y", "icept", "x", "z"})
	da, err := statmodel.NewDataset(rd, "y", []string{"icept", "x"})
	if err != nil {
		panic(err)
	}
	da, err = da.Instruments("icept", "x", "z")
	if err != nil {
		panic(err)
	}

	return gd, da
}

type replicate struct {
	ppml float64
	rel  float64
	ok   bool
}

func run(n int, log *zap.Logger) []replicate {

	p := pool.NewWithResults[replicate]().WithMaxGoroutines(4)
	for k := 0; k < nrep; k++ {
		p.Go(func() replicate {
			gd, da := simulate(n, uint64(k))

			pm, err := glm.NewGLM(gd, "y").Family(glm.PoissonFamily).Done()
			if err != nil {
				panic(err)
			}
			pr, err := pm.Fit()
			if err != nil {
				log.Warn("PPML failed", zap.Int("replicate", k), zap.Error(err))
				return replicate{}
			}

			rm, err := rel.NewREL(da, rel.PoissonIV{}).Lambda(lambda).Start(pr.Params()).Done()
			if err != nil {
				panic(err)
			}
			rr, err := rm.Fit()
			if err != nil {
				log.Warn("REL failed", zap.Int("replicate", k), zap.Error(err))
				return replicate{}
			}

			return replicate{ppml: pr.Params()[1], rel: rr.Params()[1], ok: rr.Converged()}
		})
	}

	return p.Wait()
}

func summarize(label string, est []float64) {
	mn, sd := stat.MeanStdDev(est, nil)
	bias := mn - slope
	fmt.Printf("%10s %10.4f %10.4f %10.4f\n", label, bias, sd, math.Sqrt(bias*bias+sd*sd))
}

func main() {

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	for _, n := range []int{100, 400} {
		var ppml, rl []float64
		for _, r := range run(n, log) {
			if r.ok {
				ppml = append(ppml, r.ppml)
				rl = append(rl, r.rel)
			}
		}
		fmt.Printf("n=%d, %d converged replicates\n\n", n, len(rl))
		fmt.Printf("%10s %10s %10s %10s\n", "Method", "Bias", "SD", "RMSE")
		summarize("PPML", ppml)
		summarize("REL", rl)
		fmt.Printf("\n")
	}
}
