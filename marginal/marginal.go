// Package marginal combines the traces of the annealing steps into a
// log marginal likelihood estimate.
package marginal

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"bitbucket.org/Davydov/gss/dist"
	"bitbucket.org/Davydov/gss/trace"
)

var log = logging.MustGetLogger("marginal")

// Fudge compensates the cross-validation standard deviation for the
// correlation between the samples.
const Fudge = 2.0

// Spacing is the quadrature used to combine the steps.
type Spacing int

const (
	// Uniform is the trapezoidal rule over evenly spaced steps.
	Uniform Spacing = iota
	// BetaSpacing is the stepping-stone estimator for arbitrary
	// (e.g. Beta quantile) spacing.
	BetaSpacing
)

func (s Spacing) String() string {
	switch s {
	case Uniform:
		return "uniform"
	case BetaSpacing:
		return "beta"
	}
	return fmt.Sprintf("Spacing(%d)", int(s))
}

// SpacingFor returns the spacing used for the Beta(alpha, 1) schedule.
func SpacingFor(alpha float64) Spacing {
	if alpha <= 0 {
		return Uniform
	}
	return BetaSpacing
}

// Estimate is the combined estimate. All the slices are ordered by
// increasing beta.
type Estimate struct {
	LogML float64
	Betas []float64
	// Order maps the position in the slices to the step index.
	Order []int
	// Contributions has one value per pair of adjacent steps.
	Contributions []float64
	Means         []float64
	ESS           []float64
}

// path holds the step traces sorted by beta.
type path struct {
	betas  []float64
	traces [][]float64
	// order maps sorted position to the original step.
	order []int
}

func newPath(traces [][]float64, betas []float64) (*path, error) {
	if len(traces) != len(betas) {
		return nil, fmt.Errorf("%d traces for %d steps", len(traces), len(betas))
	}
	if len(betas) < 2 {
		return nil, errors.New("at least two steps are required")
	}
	p := &path{
		betas:  make([]float64, len(betas)),
		traces: make([][]float64, len(traces)),
		order:  make([]int, len(betas)),
	}
	for i := range p.order {
		p.order[i] = i
	}
	sort.SliceStable(p.order, func(i, j int) bool {
		return betas[p.order[i]] < betas[p.order[j]]
	})
	for i, o := range p.order {
		if len(traces[o]) == 0 {
			return nil, fmt.Errorf("empty trace of step %d", o)
		}
		p.betas[i] = betas[o]
		p.traces[i] = traces[o]
	}
	return p, nil
}

// estimate combines traces which are ordered as p.traces.
func (p *path) estimate(traces [][]float64, spacing Spacing) (logML float64, contrib, means []float64) {
	n := len(traces)
	contrib = make([]float64, n-1)
	means = make([]float64, n)
	for i, t := range traces {
		means[i] = stat.Mean(t, nil)
	}
	switch spacing {
	case Uniform:
		for i := range contrib {
			contrib[i] = (means[i] + means[i+1]) / (2 * float64(n-1))
		}
	case BetaSpacing:
		for i := range contrib {
			contrib[i] = steppingStone(traces[i], p.betas[i+1]-p.betas[i])
		}
	}
	return floats.Sum(contrib), contrib, means
}

// steppingStone returns log(mean(exp(w*x))) computed relative to the
// maximum.
func steppingStone(x []float64, w float64) float64 {
	if w == 0 {
		return 0
	}
	m := floats.Max(x)
	if math.IsInf(m, 0) {
		return w * m
	}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = w * (v - m)
	}
	return w*m + dist.LogMeanExp(y)
}

// Combine estimates the log marginal likelihood from the logged values
// of every step and the step betas.
func Combine(traces [][]float64, betas []float64, spacing Spacing) (*Estimate, error) {
	p, err := newPath(traces, betas)
	if err != nil {
		return nil, err
	}
	logML, contrib, means := p.estimate(p.traces, spacing)
	e := &Estimate{
		LogML:         logML,
		Betas:         p.betas,
		Order:         p.order,
		Contributions: contrib,
		Means:         means,
		ESS:           make([]float64, len(p.traces)),
	}
	for i, t := range p.traces {
		e.ESS[i] = trace.ESS(t)
	}
	return e, nil
}
