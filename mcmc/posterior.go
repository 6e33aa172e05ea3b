package mcmc

import (
	"fmt"
	"math"
)

// Mode is the kind of power posterior.
type Mode int

const (
	// SteppingStone anneals between the posterior and the reference
	// distribution.
	SteppingStone Mode = iota
	// PathSampling anneals between the posterior and the prior.
	PathSampling
)

func (m Mode) String() string {
	switch m {
	case SteppingStone:
		return "gss"
	case PathSampling:
		return "ps"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode converts a mode name into Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "gss", "":
		return SteppingStone, nil
	case "ps":
		return PathSampling, nil
	}
	return SteppingStone, fmt.Errorf("Unknown sampling mode: %s", s)
}

// Terms are the log-density components of a state.
type Terms struct {
	Prior      float64
	Likelihood float64
	Reference  float64
}

// Map returns the terms by name.
func (t Terms) Map() map[string]float64 {
	return map[string]float64{
		"prior":      t.Prior,
		"likelihood": t.Likelihood,
		"reference":  t.Reference,
	}
}

// weighted returns w*x, zero for zero weight.
func weighted(w, x float64) float64 {
	if w == 0 {
		return 0
	}
	return w * x
}

// Target returns the power posterior log-density.
func (m Mode) Target(t Terms, beta float64) float64 {
	switch m {
	case PathSampling:
		return weighted(beta, t.Likelihood) + t.Prior
	default:
		return weighted(beta, t.Likelihood+t.Prior) + weighted(1-beta, t.Reference)
	}
}

// Logged returns the value written to the step trace: the log
// likelihood for path sampling and the log ratio of the unnormalized
// posterior to the reference for stepping-stone sampling.
func (m Mode) Logged(t Terms) float64 {
	switch m {
	case PathSampling:
		return t.Likelihood
	default:
		return t.Likelihood + t.Prior - t.Reference
	}
}

// finite reports whether x is a usable log-density.
func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
