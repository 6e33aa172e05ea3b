package mcmc

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

func UniformPrior(min, max float64, incmin, incmax bool) func(float64) float64 {
	if max <= min {
		panic("max <= min")
	}
	return func(x float64) float64 {
		if (incmin && x < min) ||
			(!incmin && x <= min) ||
			(incmax && x > max) ||
			(!incmax && x >= max) {
			return math.Inf(-1)
		}
		return -math.Log(max - min)
	}
}

func GammaPrior(shape, scale float64, inczero bool) func(float64) float64 {
	if shape <= 0 || scale <= 0 {
		panic("shape and scale of gamma distribution must be > 0")
	}
	d := distuv.Gamma{Alpha: shape, Beta: 1 / scale}
	return func(x float64) float64 {
		if x < 0 || (x == 0 && !inczero) {
			return math.Inf(-1)
		}
		return d.LogProb(x)
	}
}

func ExponentialPrior(rate float64, inczero bool) func(float64) float64 {
	if rate <= 0 {
		panic("exponential rate should be > 0")
	}
	return func(x float64) float64 {
		if x < 0 || (x == 0 && !inczero) {
			return math.Inf(-1)
		}
		return math.Log(rate) - rate*x
	}
}

func NormalPrior(mean, sd float64) func(float64) float64 {
	if sd <= 0 {
		panic("sd should be > 0")
	}
	d := distuv.Normal{Mu: mean, Sigma: sd}
	return d.LogProb
}

func LogNormalPrior(mu, sigma float64) func(float64) float64 {
	if sigma <= 0 {
		panic("sigma should be > 0")
	}
	d := distuv.LogNormal{Mu: mu, Sigma: sigma}
	return func(x float64) float64 {
		if x <= 0 {
			return math.Inf(-1)
		}
		return d.LogProb(x)
	}
}
