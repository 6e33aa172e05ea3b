package pathsampler

import (
	"errors"

	"bitbucket.org/Davydov/gss/dist"
)

// Schedule is the list of step powers (betas) in the order the steps
// are run.
type Schedule []float64

// Plan computes the temperature schedule. When alpha is positive the
// betas are quantiles of the Beta(alpha, 1) distribution, otherwise
// they are evenly spaced. With posterior2prior the first step samples
// the posterior (beta=1) and the last one the reference (beta=0).
func Plan(nSteps int, alpha float64, posterior2prior bool) (Schedule, error) {
	if nSteps < 2 {
		return nil, errors.New("number of steps should be at least 2")
	}
	s := make(Schedule, nSteps)
	n := float64(nSteps - 1)
	for i := range s {
		q := float64(i) / n
		if posterior2prior || alpha <= 0 {
			q = (n - float64(i)) / n
		}
		if alpha > 0 {
			s[i] = dist.QuantileBeta(q, alpha, 1)
		} else {
			s[i] = q
		}
	}
	return s, nil
}
