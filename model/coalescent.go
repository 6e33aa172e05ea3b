package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/Davydov/gss/mcmc"
	"bitbucket.org/Davydov/gss/tree"
)

// Coalescent is a fixed topology tree under a constant size coalescent
// prior. The observed divergence between two taxa is normally
// distributed around twice the height of their most recent common
// ancestor.
type Coalescent struct {
	theta float64
	tree  *mcmc.Tree
	start []float64

	divergences []Divergence
	mrca        []*tree.Node
	sigma       float64
	prior       Prior

	parameters mcmc.FloatParameters
	operators  []mcmc.Operator
}

// NewCoalescent creates a coalescent model from an ultrametric
// starting tree. Theta starts at the prior mean.
func NewCoalescent(newick string, prior Prior, divergences []Divergence, sigma float64) (*Coalescent, error) {
	if err := prior.check(true); err != nil {
		return nil, fmt.Errorf("theta: %w", err)
	}
	if sigma <= 0 {
		return nil, errors.New("divergence sd should be positive")
	}
	t, err := tree.ParseNewickString(newick)
	if err != nil {
		return nil, err
	}
	leaves := make(map[string]*tree.Node)
	for node := range t.Terminals() {
		if math.Abs(node.Height) > 1e-9 {
			return nil, fmt.Errorf("tree should be ultrametric, leaf %s has height %g", node.Name, node.Height)
		}
		node.Height = 0
		leaves[node.Name] = node
	}
	t.UpdateLengths()

	m := &Coalescent{
		theta:       prior.mean(),
		tree:        mcmc.NewTree("tree", t),
		start:       t.Heights(),
		divergences: divergences,
		mrca:        make([]*tree.Node, len(divergences)),
		sigma:       sigma,
		prior:       prior,
	}
	for i, d := range divergences {
		a, ok := leaves[d.A]
		if !ok {
			return nil, fmt.Errorf("unknown taxon: %s", d.A)
		}
		b, ok := leaves[d.B]
		if !ok {
			return nil, fmt.Errorf("unknown taxon: %s", d.B)
		}
		m.mrca[i] = mrca(a, b)
	}

	p := mcmc.NewBasicFloatParameter(&m.theta, "theta")
	if err := prior.apply(p, true); err != nil {
		return nil, err
	}
	m.parameters = mcmc.FloatParameters{p}
	m.tree.SetPriorFunc(func(t *tree.Tree) float64 {
		return CoalescentLogDensity(t.CoalescentTimes(), m.theta)
	})
	m.operators = []mcmc.Operator{
		mcmc.NewScale(p, 0.75, 1),
		mcmc.NewTreeScale(m.tree, 0.75, 1),
		mcmc.NewNodeHeight(m.tree, 3),
	}
	return m, nil
}

func mrca(a, b *tree.Node) *tree.Node {
	ancestors := make(map[*tree.Node]bool)
	for n := a; n != nil; n = n.Parent {
		ancestors[n] = true
	}
	for n := b; n != nil; n = n.Parent {
		if ancestors[n] {
			return n
		}
	}
	return nil
}

// CoalescentLogDensity is the log density of coalescent times (sorted
// increasingly, leaves at zero) under a constant population size
// theta.
func CoalescentLogDensity(times []float64, theta float64) float64 {
	if theta <= 0 {
		return math.Inf(-1)
	}
	n := len(times) + 1
	lp := 0.0
	prev := 0.0
	for i, t := range times {
		if t < prev {
			return math.Inf(-1)
		}
		k := float64(n - i)
		lp += -math.Log(theta) - k*(k-1)/2*(t-prev)/theta
		prev = t
	}
	return lp
}

func (m *Coalescent) Parameters() mcmc.FloatParameters {
	return m.parameters
}

func (m *Coalescent) Vectors() []*mcmc.Vector {
	return nil
}

func (m *Coalescent) Trees() mcmc.Trees {
	return mcmc.Trees{m.tree}
}

func (m *Coalescent) Operators() []mcmc.Operator {
	return m.operators
}

func (m *Coalescent) LogPrior() float64 {
	return m.parameters.LogPrior() + m.tree.Prior()
}

func (m *Coalescent) LogLikelihood() (float64, error) {
	l := 0.0
	for i, d := range m.divergences {
		n := distuv.Normal{Mu: 2 * m.mrca[i].Height, Sigma: m.sigma}
		l += n.LogProb(d.D)
	}
	return l, nil
}

// Initialize draws theta from the prior and rescales the starting
// tree.
func (m *Coalescent) Initialize(rng *rand.Rand) error {
	m.theta = m.prior.sample(rng)
	s := math.Exp(rng.Float64() - 0.5)
	for _, node := range m.tree.Nodes() {
		node.Height = m.start[node.Id] * s
	}
	m.tree.UpdateLengths()
	return nil
}

// Tree returns the tree state node.
func (m *Coalescent) Tree() *mcmc.Tree {
	return m.tree
}

// Theta returns the current population size.
func (m *Coalescent) Theta() float64 {
	return m.theta
}
