package model

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/Davydov/gss/mcmc"
)

// Normal is y_i ~ N(mu, sigma^2) with a known sigma and
// mu ~ N(priorMean, priorSD^2).
type Normal struct {
	mu        float64
	data      []float64
	sigma     float64
	priorMean float64
	priorSD   float64

	parameters mcmc.FloatParameters
	operators  []mcmc.Operator
}

// NewNormal creates a normal model, mu starts at the prior mean.
func NewNormal(data []float64, sigma, priorMean, priorSD float64) (*Normal, error) {
	if len(data) == 0 {
		return nil, errors.New("normal model requires data")
	}
	if sigma <= 0 || priorSD <= 0 {
		return nil, errors.New("standard deviations should be positive")
	}
	m := &Normal{
		mu:        priorMean,
		data:      append([]float64(nil), data...),
		sigma:     sigma,
		priorMean: priorMean,
		priorSD:   priorSD,
	}
	p := mcmc.NewBasicFloatParameter(&m.mu, "mu")
	p.SetPriorFunc(mcmc.NormalPrior(priorMean, priorSD))
	m.parameters = mcmc.FloatParameters{p}
	m.operators = []mcmc.Operator{
		mcmc.NewRandomWalk(p, sigma/math.Sqrt(float64(len(data))), 1),
	}
	return m, nil
}

func (m *Normal) Parameters() mcmc.FloatParameters {
	return m.parameters
}

func (m *Normal) Vectors() []*mcmc.Vector {
	return nil
}

func (m *Normal) Trees() mcmc.Trees {
	return nil
}

func (m *Normal) Operators() []mcmc.Operator {
	return m.operators
}

func (m *Normal) LogPrior() float64 {
	return m.parameters.LogPrior()
}

func (m *Normal) LogLikelihood() (float64, error) {
	d := distuv.Normal{Mu: m.mu, Sigma: m.sigma}
	l := 0.0
	for _, y := range m.data {
		l += d.LogProb(y)
	}
	return l, nil
}

// Initialize draws mu from the prior.
func (m *Normal) Initialize(rng *rand.Rand) error {
	m.mu = m.priorMean + m.priorSD*rng.NormFloat64()
	return nil
}

// Mu returns the current mean.
func (m *Normal) Mu() float64 {
	return m.mu
}

// LogMarginalLikelihood is the exact log marginal likelihood.
func (m *Normal) LogMarginalLikelihood() float64 {
	n := float64(len(m.data))
	s2 := m.sigma * m.sigma
	p2 := m.priorSD * m.priorSD
	tau := n/s2 + 1/p2
	b := floats.Sum(m.data)/s2 + m.priorMean/p2
	return -n/2*math.Log(2*math.Pi*s2) -
		floats.Dot(m.data, m.data)/(2*s2) -
		m.priorMean*m.priorMean/(2*p2) -
		math.Log(p2)/2 - math.Log(tau)/2 +
		b*b/(2*tau)
}
