package dist

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Gamma is a gamma distribution parameterized by shape and scale.
type Gamma struct {
	Shape float64
	Scale float64
}

// LogDensity returns the log density at x, -Inf for x <= 0.
func (g Gamma) LogDensity(x float64) float64 {
	if x <= 0 {
		return LogZero
	}
	return distuv.Gamma{Alpha: g.Shape, Beta: 1 / g.Scale}.LogProb(x)
}

// Mean returns Shape*Scale.
func (g Gamma) Mean() float64 {
	return g.Shape * g.Scale
}

// FitGamma approximates the maximum likelihood gamma distribution for
// positive values. Non-positive values are ignored. With s = log(mean)
// - mean(log x) the shape is (3 - s + sqrt((s-3)^2 + 24s)) / (12s).
func FitGamma(x []float64) (Gamma, error) {
	sum, sumLog := 0.0, 0.0
	n := 0
	for _, v := range x {
		if v > 0 && !math.IsInf(v, 1) {
			sum += v
			sumLog += math.Log(v)
			n++
		}
	}
	if n < 2 {
		return Gamma{}, errors.New("at least two positive values are required to fit a gamma distribution")
	}
	mean := sum / float64(n)
	s := math.Log(mean) - sumLog/float64(n)
	if !(s > 0) {
		return Gamma{}, errors.New("cannot fit a gamma distribution to identical values")
	}
	shape := (3 - s + math.Sqrt((s-3)*(s-3)+24*s)) / (12 * s)
	return Gamma{Shape: shape, Scale: mean / shape}, nil
}
