package mcmc

import (
	"math"
	"math/rand"
	"sort"
)

// TargetAcceptance is the acceptance probability the operators are
// tuned to.
const TargetAcceptance = 0.234

// Operator proposes a new state.
type Operator interface {
	Name() string
	Weight() float64
	// Propose changes the state and returns the log Hastings ratio,
	// -Inf for invalid proposals.
	Propose(rng *rand.Rand) float64
	Accept()
	Reject()
	// Optimize tunes the operator given the log acceptance
	// probability of the last proposal.
	Optimize(logAlpha float64)
	// Tuning returns the tunable parameter, NaN if there is none.
	Tuning() float64
	SetTuning(float64)
	Accepted() int
	Rejected() int
}

// operatorBase implements bookkeeping common for all operators.
type operatorBase struct {
	name     string
	weight   float64
	accepted int
	rejected int
}

func (o *operatorBase) Name() string {
	return o.name
}

func (o *operatorBase) Weight() float64 {
	return o.weight
}

func (o *operatorBase) Accept() {
	o.accepted++
}

func (o *operatorBase) Reject() {
	o.rejected++
}

func (o *operatorBase) Accepted() int {
	return o.accepted
}

func (o *operatorBase) Rejected() int {
	return o.rejected
}

func (o *operatorBase) Optimize(float64) {}

func (o *operatorBase) Tuning() float64 {
	return math.NaN()
}

func (o *operatorBase) SetTuning(float64) {}

// delta computes the Robbins-Monro step for the tuning parameter.
func (o *operatorBase) delta(logAlpha float64) float64 {
	count := float64(o.accepted+o.rejected) + 1
	d := (math.Exp(math.Min(logAlpha, 0)) - TargetAcceptance) / count
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return d
}

// Schedule selects operators with probabilities proportional to their
// weights.
type Schedule struct {
	operators []Operator
	cum       []float64
}

// NewSchedule creates a schedule. Operators with non-positive weights
// are never selected.
func NewSchedule(ops ...Operator) *Schedule {
	s := &Schedule{operators: ops, cum: make([]float64, len(ops))}
	total := 0.0
	for i, op := range ops {
		if w := op.Weight(); w > 0 {
			total += w
		}
		s.cum[i] = total
	}
	for i := range s.cum {
		s.cum[i] /= total
	}
	return s
}

// Select returns a random operator.
func (s *Schedule) Select(rng *rand.Rand) Operator {
	u := rng.Float64()
	i := sort.Search(len(s.cum), func(i int) bool { return s.cum[i] > u })
	if i == len(s.cum) {
		i--
	}
	return s.operators[i]
}

func (s *Schedule) Operators() []Operator {
	return s.operators
}
