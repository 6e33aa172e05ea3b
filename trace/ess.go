package trace

import (
	"gonum.org/v1/gonum/stat"
)

// MaxLag is the maximum lag used for the autocorrelation.
const MaxLag = 2000

// ESS computes the effective sample size from the autocorrelation
// function. The sum of autocovariances is truncated when the sum of
// two successive autocovariances becomes negative. A constant trace has
// ESS equal to its length.
func ESS(x []float64) float64 {
	n := len(x)
	if n < 2 {
		return float64(n)
	}
	mean := stat.Mean(x, nil)
	maxLag := MaxLag
	if n-1 < maxLag {
		maxLag = n - 1
	}

	gamma := make([]float64, maxLag)
	varStat := 0.0
	for lag := 0; lag < maxLag; lag++ {
		for j := 0; j < n-lag; j++ {
			gamma[lag] += (x[j] - mean) * (x[j+lag] - mean)
		}
		gamma[lag] /= float64(n - lag)

		if lag == 0 {
			varStat = gamma[0]
		} else if lag%2 == 0 {
			if gamma[lag-1]+gamma[lag] > 0 {
				varStat += 2 * (gamma[lag-1] + gamma[lag])
			} else {
				break
			}
		}
	}
	if gamma[0] == 0 || varStat <= 0 {
		return float64(n)
	}
	return float64(n) * gamma[0] / varStat
}
