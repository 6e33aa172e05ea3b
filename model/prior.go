package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/Davydov/gss/mcmc"
)

// Prior selects the prior of a scalar parameter.
type Prior struct {
	// Family is exponential, gamma, lognormal, normal or uniform.
	Family string `toml:"family"`

	// Rate of the exponential.
	Rate float64 `toml:"rate,omitempty"`
	// Shape and Scale of the gamma.
	Shape float64 `toml:"shape,omitempty"`
	Scale float64 `toml:"scale,omitempty"`
	// Mean and SD of the normal, or of the log for the lognormal.
	Mean float64 `toml:"mean,omitempty"`
	SD   float64 `toml:"sd,omitempty"`
	// Min and Max of the uniform.
	Min float64 `toml:"min,omitempty"`
	Max float64 `toml:"max,omitempty"`
}

// check validates the prior of a parameter, positive parameters only
// accept priors on (0, inf).
func (pr Prior) check(positive bool) error {
	switch pr.Family {
	case "exponential":
		if pr.Rate <= 0 {
			return errors.New("exponential prior rate should be positive")
		}
	case "gamma":
		if pr.Shape <= 0 || pr.Scale <= 0 {
			return errors.New("gamma prior shape and scale should be positive")
		}
	case "lognormal":
		if pr.SD <= 0 {
			return errors.New("lognormal prior sd should be positive")
		}
	case "normal":
		if positive {
			return errors.New("normal prior cannot be used for a positive parameter")
		}
		if pr.SD <= 0 {
			return errors.New("normal prior sd should be positive")
		}
	case "uniform":
		if pr.Max <= pr.Min {
			return errors.New("uniform prior requires min < max")
		}
		if positive && pr.Min < 0 {
			return errors.New("uniform prior of a positive parameter requires min >= 0")
		}
	default:
		return fmt.Errorf("Unknown prior: %s", pr.Family)
	}
	return nil
}

// apply sets the prior density and the bounds of p.
func (pr Prior) apply(p mcmc.FloatParameter, positive bool) error {
	if err := pr.check(positive); err != nil {
		return fmt.Errorf("%s: %w", p.Name(), err)
	}
	if positive {
		p.SetMin(0)
	}
	switch pr.Family {
	case "exponential":
		p.SetPriorFunc(mcmc.ExponentialPrior(pr.Rate, false))
	case "gamma":
		p.SetPriorFunc(mcmc.GammaPrior(pr.Shape, pr.Scale, false))
	case "lognormal":
		p.SetPriorFunc(mcmc.LogNormalPrior(pr.Mean, pr.SD))
	case "normal":
		p.SetPriorFunc(mcmc.NormalPrior(pr.Mean, pr.SD))
	case "uniform":
		p.SetMin(pr.Min)
		p.SetMax(pr.Max)
		p.SetPriorFunc(mcmc.UniformPrior(pr.Min, pr.Max, true, true))
	}
	return nil
}

// mean is the starting value of the parameter.
func (pr Prior) mean() float64 {
	switch pr.Family {
	case "exponential":
		return 1 / pr.Rate
	case "gamma":
		return pr.Shape * pr.Scale
	case "lognormal":
		return math.Exp(pr.Mean + pr.SD*pr.SD/2)
	case "uniform":
		return (pr.Min + pr.Max) / 2
	}
	return pr.Mean
}

// sample draws a value from the prior.
func (pr Prior) sample(rng *rand.Rand) float64 {
	switch pr.Family {
	case "exponential":
		return rng.ExpFloat64() / pr.Rate
	case "gamma":
		return distuv.Gamma{Alpha: pr.Shape, Beta: 1 / pr.Scale}.Quantile(rng.Float64())
	case "lognormal":
		return math.Exp(pr.Mean + pr.SD*rng.NormFloat64())
	case "uniform":
		return pr.Min + rng.Float64()*(pr.Max-pr.Min)
	}
	return pr.Mean + pr.SD*rng.NormFloat64()
}

// scalarOperator creates the proposal of p. kind is randomwalk, scale
// or uniform.
func scalarOperator(kind string, p mcmc.FloatParameter, window float64) (mcmc.Operator, error) {
	switch kind {
	case "randomwalk":
		return mcmc.NewRandomWalk(p, window, 1), nil
	case "scale":
		return mcmc.NewScale(p, 0.75, 1), nil
	case "uniform":
		u, err := mcmc.NewUniform(p, 1)
		if err != nil {
			return nil, err
		}
		return u, nil
	}
	return nil, fmt.Errorf("Unknown operator: %s", kind)
}
