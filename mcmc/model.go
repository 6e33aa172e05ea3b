package mcmc

import (
	"math/rand"
)

// Model is the sampled model: its state nodes, operators and the
// unnormalized posterior density terms.
type Model interface {
	// Parameters returns all the scalar parameters including the
	// elements of vectors.
	Parameters() FloatParameters
	// Vectors returns multi-dimensional parameters.
	Vectors() []*Vector
	Trees() Trees
	Operators() []Operator
	LogPrior() float64
	LogLikelihood() (float64, error)
	// Initialize samples a new initial state.
	Initialize(rng *rand.Rand) error
}

// Reference is the reference distribution of a stepping-stone chain
// bound to the model state.
type Reference interface {
	LogP() float64
}

// Breakdowner is implemented by references composed of several terms.
type Breakdowner interface {
	Breakdown() map[string]float64
}
