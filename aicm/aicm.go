// Package aicm implements single trace estimators of model fit: AICM
// and the harmonic, smoothed harmonic and arithmetic mean estimators
// of the log marginal likelihood.
package aicm

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/stat"

	"bitbucket.org/Davydov/gss/dist"
)

var log = logging.MustGetLogger("aicm")

// Kind is the estimator type.
type Kind int

const (
	// KindAICM is the Akaike information criterion through MCMC.
	KindAICM Kind = iota
	// KindHarmonic is the harmonic mean estimator.
	KindHarmonic
	// KindSmoothed is the smoothed harmonic mean estimator.
	KindSmoothed
	// KindArithmetic is the arithmetic mean estimator.
	KindArithmetic
)

var kindNames = map[Kind]string{
	KindAICM:       "aicm",
	KindHarmonic:   "hme",
	KindSmoothed:   "smoothed",
	KindArithmetic: "arithmetic",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind returns the estimator by its name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("Unknown estimator: %s", s)
}

// Description is used when printing the estimate.
func (k Kind) Description() string {
	switch k {
	case KindHarmonic:
		return "log marginal likelihood (using harmonic mean)"
	case KindSmoothed:
		return "log marginal likelihood (using smoothed harmonic mean)"
	case KindArithmetic:
		return "log marginal likelihood (using arithmetic mean)"
	}
	return "AICM"
}

// AICM computes 2*var(v) - 2*mean(v), lower is better.
func AICM(v []float64) float64 {
	mean, variance := stat.MeanVariance(v, nil)
	return 2*variance - 2*mean
}

// Harmonic is the harmonic mean of the likelihoods in log space.
func Harmonic(v []float64) float64 {
	neg := make([]float64, len(v))
	for i, x := range v {
		neg[i] = -x
	}
	return math.Log(float64(len(v))) - dist.LogSumExp(neg)
}

// Arithmetic is the arithmetic mean of the likelihoods in log space.
// Non-finite values are skipped.
func Arithmetic(v []float64) float64 {
	finite := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			finite = append(finite, x)
		}
	}
	if len(finite) == 0 {
		return dist.LogZero
	}
	return dist.LogMeanExp(finite)
}

const (
	smoothDelta     = 0.01
	smoothTolerance = 1e-3
)

// smoothMaxIter bounds the fixed point iteration of Smoothed.
var smoothMaxIter = 400

// smoothed evaluates the smoothed estimator for the current estimate p,
// delta is the proportion of pseudo-samples from the prior.
func smoothed(v []float64, delta, p float64) float64 {
	logDelta := math.Log(delta)
	logInvDelta := math.Log(1 - delta)
	offset := logInvDelta - p

	bottom := math.Log(float64(len(v))) + logDelta - logInvDelta
	top := bottom + p
	for _, x := range v {
		weight := -dist.LogAdd(logDelta, offset+x)
		top = dist.LogAdd(top, weight+x)
		bottom = dist.LogAdd(bottom, weight)
	}
	return top - bottom
}

// Smoothed is the smoothed harmonic mean estimator, the fixed point of
// the smoothed estimator found starting from the harmonic mean. It
// returns LogZero if the iteration does not converge.
func Smoothed(v []float64) float64 {
	p := Harmonic(v)
	deltaP := 1.0
	for iter := 0; math.Abs(deltaP) > smoothTolerance; iter++ {
		if iter >= smoothMaxIter {
			log.Warning("Probabilities are not converging!!!")
			return dist.LogZero
		}
		g1 := smoothed(v, smoothDelta, p) - p
		p2 := p + g1
		dx := g1 * 10
		g2 := smoothed(v, smoothDelta, p+dx) - (p + dx)
		dgdx := (g2 - g1) / dx

		p3 := p - g1/dgdx
		// step is too large
		if p3 < 2*p || p3 > 0 || p3 > 0.5*p {
			p3 = p + 10*g1
		}
		g3 := smoothed(v, smoothDelta, p3) - p3

		switch {
		case math.Abs(g3) <= math.Abs(g2) && (g3 > 0 || math.Abs(dgdx) > 0.01):
			deltaP = p3 - p
			p = p3
		case math.Abs(g2) <= math.Abs(g1):
			p2 += g2
			deltaP = p2 - p
			p = p2
		default:
			deltaP = g1
			p += g1
		}
	}
	return p
}

// Estimate computes the estimate of the given kind.
func Estimate(kind Kind, v []float64) float64 {
	switch kind {
	case KindHarmonic:
		return Harmonic(v)
	case KindSmoothed:
		return Smoothed(v)
	case KindArithmetic:
		return Arithmetic(v)
	}
	return AICM(v)
}

// Analyser computes an estimate and its bootstrap standard error.
type Analyser struct {
	Kind Kind
	// Bootstrap is the number of bootstrap replicates, no standard
	// error is computed unless it is above one.
	Bootstrap int
	Rng       *rand.Rand
	// Progress is called after every replicate.
	Progress func(done, total int)
}

// Result is the estimate with its standard error.
type Result struct {
	Kind     Kind    `json:"-"`
	Name     string  `json:"kind"`
	Estimate float64 `json:"estimate"`
	SE       float64 `json:"se,omitempty"`
	Samples  int     `json:"samples"`
}

// Analyse computes the estimate from the sample v.
func (a *Analyser) Analyse(v []float64) (*Result, error) {
	if len(v) < 2 {
		return nil, fmt.Errorf("at least two samples are required, got %d", len(v))
	}
	r := &Result{
		Kind:     a.Kind,
		Name:     a.Kind.String(),
		Estimate: Estimate(a.Kind, v),
		Samples:  len(v),
	}
	if a.Bootstrap > 1 {
		rng := a.Rng
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		idx := make([]int, len(v))
		resampled := make([]float64, len(v))
		estimates := make([]float64, a.Bootstrap)
		for i := range estimates {
			dist.SampleIndices(rng, len(v), idx)
			for k, j := range idx {
				resampled[k] = v[j]
			}
			estimates[i] = Estimate(a.Kind, resampled)
			if a.Progress != nil {
				a.Progress(i+1, a.Bootstrap)
			}
		}
		r.SE = stat.StdDev(estimates, nil)
	}
	return r, nil
}

func (r *Result) String() string {
	s := fmt.Sprintf("%s = %5.4f", r.Kind.Description(), r.Estimate)
	if r.SE > 0 {
		s += fmt.Sprintf(" +/- %5.4f", r.SE)
	}
	return s
}
