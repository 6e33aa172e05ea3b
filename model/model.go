// Package model contains the models which can be sampled by the
// annealing steps.
package model

import (
	"fmt"
	"math"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gss/mcmc"
)

var log = logging.MustGetLogger("model")

// Divergence is an observed distance between two taxa.
type Divergence struct {
	A string  `toml:"a"`
	B string  `toml:"b"`
	D float64 `toml:"d"`
}

// Config describes a model, it is a part of the step configuration.
type Config struct {
	// Type is either normal or coalescent.
	Type string `toml:"type"`

	// Observations and the observation standard deviation.
	Data  []float64 `toml:"data,omitempty"`
	Sigma float64   `toml:"sigma"`

	// Normal prior of the mean.
	PriorMean float64 `toml:"priorMean"`
	PriorSD   float64 `toml:"priorSD"`

	// Tree is the starting tree in newick format, its topology is
	// fixed.
	Tree        string       `toml:"tree,omitempty"`
	ThetaRate   float64      `toml:"thetaRate,omitempty"`
	Divergences []Divergence `toml:"divergence,omitempty"`

	// ThetaPrior replaces the Exp(ThetaRate) prior of theta.
	ThetaPrior *Prior `toml:"thetaPrior,omitempty"`

	// Operator is the proposal of the scalar parameter (randomwalk,
	// scale or uniform). Normal uses randomwalk and coalescent uses
	// scale by default.
	Operator string `toml:"operator,omitempty"`
}

// DefaultConfig returns the normal model with a single observation.
func DefaultConfig() Config {
	return Config{
		Type:      "normal",
		Data:      []float64{0},
		Sigma:     1,
		PriorMean: 0,
		PriorSD:   1,
		ThetaRate: 1,
	}
}

// New creates a model from the configuration.
func New(cfg Config) (mcmc.Model, error) {
	switch cfg.Type {
	case "normal":
		log.Info("Using normal model")
		m, err := NewNormal(cfg.Data, cfg.Sigma, cfg.PriorMean, cfg.PriorSD)
		if err != nil {
			return nil, err
		}
		window := cfg.Sigma / math.Sqrt(float64(len(cfg.Data)))
		if err := setOperator(m.operators, m.parameters[0], cfg.Operator, window); err != nil {
			return nil, err
		}
		return m, nil
	case "coalescent":
		log.Info("Using coalescent model")
		prior := Prior{Family: "exponential", Rate: cfg.ThetaRate}
		if cfg.ThetaPrior != nil {
			prior = *cfg.ThetaPrior
		}
		log.Infof("Theta prior: %s", prior.Family)
		m, err := NewCoalescent(cfg.Tree, prior, cfg.Divergences, cfg.Sigma)
		if err != nil {
			return nil, err
		}
		if err := setOperator(m.operators, m.parameters[0], cfg.Operator, prior.mean()/2); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("Unknown model: %s", cfg.Type)
}

// setOperator replaces the first operator of a model, the proposal of
// its scalar parameter p.
func setOperator(ops []mcmc.Operator, p mcmc.FloatParameter, kind string, window float64) error {
	if kind == "" {
		return nil
	}
	op, err := scalarOperator(kind, p, window)
	if err != nil {
		return err
	}
	ops[0] = op
	return nil
}
