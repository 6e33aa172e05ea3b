package marginal

import (
	"errors"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"bitbucket.org/Davydov/gss/dist"
)

// CrossValidate estimates the standard deviation of the estimate. The
// traces are shuffled repeats times, for every fold a contiguous block
// of every trace is left out and the estimate is recomputed. The
// standard deviation of the folds*repeats estimates is multiplied by
// Fudge.
func CrossValidate(traces [][]float64, betas []float64, spacing Spacing, folds, repeats int, rng *rand.Rand) (float64, error) {
	if folds < 2 || repeats < 1 {
		return 0, errors.New("cross-validation requires at least two folds and one repeat")
	}
	p, err := newPath(traces, betas)
	if err != nil {
		return 0, err
	}
	for _, t := range p.traces {
		if len(t) < folds {
			return 0, errors.New("trace is shorter than the number of folds")
		}
	}

	shuffled := make([][]float64, len(p.traces))
	for i, t := range p.traces {
		shuffled[i] = append([]float64(nil), t...)
	}
	subsets := make([][]float64, len(p.traces))
	estimates := make([]float64, 0, folds*repeats)
	for r := 0; r < repeats; r++ {
		for _, t := range shuffled {
			dist.Shuffle(rng, t)
		}
		for i := 0; i < folds; i++ {
			for j, t := range shuffled {
				lo := i * len(t) / folds
				hi := (i + 1) * len(t) / folds
				subsets[j] = append(append(subsets[j][:0], t[:lo]...), t[hi:]...)
			}
			logML, _, _ := p.estimate(subsets, spacing)
			estimates = append(estimates, logML)
		}
		log.Debugf("Cross-validation repeat %d done", r)
	}
	return stat.StdDev(estimates, nil) * Fudge, nil
}

// Bootstrap estimates the standard deviation of the estimate by
// resampling every trace with replacement.
func Bootstrap(traces [][]float64, betas []float64, spacing Spacing, replicates int, rng *rand.Rand) (float64, error) {
	if replicates < 2 {
		return 0, errors.New("bootstrap requires at least two replicates")
	}
	p, err := newPath(traces, betas)
	if err != nil {
		return 0, err
	}
	resampled := make([][]float64, len(p.traces))
	idx := make([][]int, len(p.traces))
	for i, t := range p.traces {
		resampled[i] = make([]float64, len(t))
		idx[i] = make([]int, len(t))
	}
	estimates := make([]float64, replicates)
	for r := range estimates {
		for i, t := range p.traces {
			dist.SampleIndices(rng, len(t), idx[i])
			for k, j := range idx[i] {
				resampled[i][k] = t[j]
			}
		}
		estimates[r], _, _ = p.estimate(resampled, spacing)
	}
	return stat.StdDev(estimates, nil), nil
}
