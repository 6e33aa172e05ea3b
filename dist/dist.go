// Package dist implements distribution helpers and log-space
// arithmetic shared by the samplers and the estimators.
package dist

import (
	"math"
	"math/rand"

	"github.com/gonum/mathext"
	"gonum.org/v1/gonum/floats"
)

// LogZero is the logarithm of zero.
var LogZero = math.Inf(-1)

// QuantileBeta calculates the quantile of the Beta(p, q) distribution.
func QuantileBeta(prob, p, q float64) float64 {
	return mathext.InvRegIncBeta(p, q, prob)
}

// CDFBeta returns the incomplete beta ratio I_x(p,q).
func CDFBeta(x, p, q float64) float64 {
	return mathext.RegIncBeta(p, q, x)
}

// LnBeta returns log of Beta function.
func LnBeta(p, q float64) float64 {
	lgp, _ := math.Lgamma(p)
	lgq, _ := math.Lgamma(q)
	lgpq, _ := math.Lgamma(p + q)
	return lgp + lgq - lgpq
}

// LogAdd returns log(exp(a) + exp(b)).
func LogAdd(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a > b {
		return a + math.Log1p(math.Exp(b-a))
	}
	return b + math.Log1p(math.Exp(a-b))
}

// LogSumExp returns log(sum(exp(v))), LogZero for an empty slice.
func LogSumExp(v []float64) float64 {
	if len(v) == 0 {
		return LogZero
	}
	return floats.LogSumExp(v)
}

// LogMeanExp returns log(mean(exp(v))).
func LogMeanExp(v []float64) float64 {
	return LogSumExp(v) - math.Log(float64(len(v)))
}

// Shuffle permutes v in place.
func Shuffle(rng *rand.Rand, v []float64) {
	rng.Shuffle(len(v), func(i, j int) {
		v[i], v[j] = v[j], v[i]
	})
}

// SampleIndices returns n indices in [0, n) drawn with replacement.
func SampleIndices(rng *rand.Rand, n int, res []int) []int {
	if res == nil {
		res = make([]int, n)
	}
	for i := range res {
		res[i] = rng.Intn(n)
	}
	return res
}
