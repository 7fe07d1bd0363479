//go:build ignore

/*
This simulation generates data from a linear model with an endogenous
covariate and two instruments, and compares relaxed empirical likelihood
estimates of the slope across several values of the relaxation parameter.
*/

package main

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/kshedden/dstream/dstream"
	"github.com/sourcegraph/conc/pool"
	"github.com/stevensun213/econ5170/rel"
	"github.com/stevensun213/econ5170/statmodel"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
)

const (
	nrep  = 200
	slope = 1.0
)

// simulate returns n observations of y = 1 + slope*x + e, where x and e
// are correlated and the instruments z1, z2 are correlated with x only.
func simulate(n int, seed uint64) *statmodel.Dataset {

	src := rand.NewPCG(seed, 2318)

	// Order: x, e, z1, z2
	sigma := mat.NewSymDense(4, []float64{
		1, 0.5, 0.5, 0.4,
		0.5, 1, 0, 0,
		0.5, 0, 1, 0,
		0.4, 0, 0, 1,
	})
	mvn, ok := distmv.NewNormal(make([]float64, 4), sigma, src)
	if !ok {
		panic("covariance is not positive definite")
	}

	y := make([]float64, n)
	icept := make([]float64, n)
	x := make([]float64, n)
	z1 := make([]float64, n)
	z2 := make([]float64, n)
	row := make([]float64, 4)
	for i := range y {
		mvn.Rand(row)
		icept[i] = 1
		x[i] = row[0]
		z1[i] = row[2]
		z2[i] = row[3]
		y[i] = 1 + slope*x[i] + row[1]
	}

	ds := dstream.NewFromFlat([]interface{}{y, icept, x, z1, z2},
		[]string{"y", "icept", "x", "z1", "z2"})
	da, err := statmodel.NewDataset(ds, "y", []string{"icept", "x"})
	if err != nil {
		panic(err)
	}
	da, err = da.Instruments("icept", "z1", "z2")
	if err != nil {
		panic(err)
	}

	return da
}

type replicate struct {
	slope float64
	ok    bool
}

func run(n int, lambda float64, log *zap.Logger) []replicate {

	p := pool.NewWithResults[replicate]().WithMaxGoroutines(4)
	for k := 0; k < nrep; k++ {
		p.Go(func() replicate {
			da := simulate(n, uint64(k))
			model, err := rel.NewREL(da, rel.LinearIV{}).Lambda(lambda).Start([]float64{1, 1}).Done()
			if err != nil {
				panic(err)
			}
			rslt, err := model.Fit()
			if err != nil {
				log.Warn("replicate failed", zap.Int("replicate", k), zap.Error(err))
				return replicate{}
			}
			return replicate{slope: rslt.Params()[1], ok: rslt.Converged()}
		})
	}

	return p.Wait()
}

func main() {

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	for _, n := range []int{100, 400} {
		fmt.Printf("n=%d\n\n", n)
		fmt.Printf("%10s %10s %10s %10s %10s\n", "Lambda", "Bias", "SD", "RMSE", "Converged")
		for _, lambda := range []float64{0.001, 0.01, 0.05, 0.1} {
			var est []float64
			for _, r := range run(n, lambda, log) {
				if r.ok {
					est = append(est, r.slope)
				}
			}
			mn, sd := stat.MeanStdDev(est, nil)
			bias := mn - slope
			rmse := math.Sqrt(bias*bias + sd*sd)
			fmt.Printf("%10.3f %10.4f %10.4f %10.4f %10d\n", lambda, bias, sd, rmse, len(est))
		}
		fmt.Printf("\n")
	}
}
