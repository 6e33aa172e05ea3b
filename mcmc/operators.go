package mcmc

import (
	"errors"
	"math"
	"math/rand"

	"bitbucket.org/Davydov/gss/tree"
)

// RandomWalk adds a uniform random value from [-window, window].
type RandomWalk struct {
	operatorBase
	par    FloatParameter
	window float64
}

func NewRandomWalk(par FloatParameter, window, weight float64) *RandomWalk {
	if window <= 0 {
		panic("window should be > 0")
	}
	return &RandomWalk{
		operatorBase: operatorBase{name: par.Name() + ".randomWalk", weight: weight},
		par:          par,
		window:       window,
	}
}

func (o *RandomWalk) Propose(rng *rand.Rand) float64 {
	v := o.par.Get() + (2*rng.Float64()-1)*o.window
	if !o.par.ValueInRange(v) {
		return math.Inf(-1)
	}
	o.par.Set(v)
	return 0
}

func (o *RandomWalk) Optimize(logAlpha float64) {
	o.window = math.Exp(o.delta(logAlpha) + math.Log(o.window))
}

func (o *RandomWalk) Tuning() float64 {
	return o.window
}

func (o *RandomWalk) SetTuning(w float64) {
	if w > 0 {
		o.window = w
	}
}

// Scale multiplies the value by a random factor from
// [factor, 1/factor].
type Scale struct {
	operatorBase
	par    FloatParameter
	factor float64
}

func NewScale(par FloatParameter, factor, weight float64) *Scale {
	if factor <= 0 || factor >= 1 {
		panic("scale factor should be in (0, 1)")
	}
	return &Scale{
		operatorBase: operatorBase{name: par.Name() + ".scale", weight: weight},
		par:          par,
		factor:       factor,
	}
}

// scaler draws a scale from [factor, 1/factor].
func scaler(rng *rand.Rand, factor float64) float64 {
	return factor + rng.Float64()*(1/factor-factor)
}

// optimizeFactor tunes a scale factor on the logit scale.
func optimizeFactor(factor, delta float64) float64 {
	delta += math.Log(1/factor - 1)
	f := 1 / (math.Exp(delta) + 1)
	if f <= 0 || f >= 1 || math.IsNaN(f) {
		return factor
	}
	return f
}

func (o *Scale) Propose(rng *rand.Rand) float64 {
	s := scaler(rng, o.factor)
	v := o.par.Get() * s
	if !o.par.ValueInRange(v) {
		return math.Inf(-1)
	}
	o.par.Set(v)
	return -math.Log(s)
}

func (o *Scale) Optimize(logAlpha float64) {
	o.factor = optimizeFactor(o.factor, o.delta(logAlpha))
}

func (o *Scale) Tuning() float64 {
	return o.factor
}

func (o *Scale) SetTuning(f float64) {
	if f > 0 && f < 1 {
		o.factor = f
	}
}

// Uniform draws a new value uniformly between the parameter bounds.
type Uniform struct {
	operatorBase
	par FloatParameter
}

func NewUniform(par FloatParameter, weight float64) (*Uniform, error) {
	if math.IsInf(par.GetMin(), 0) || math.IsInf(par.GetMax(), 0) {
		return nil, errors.New("uniform operator requires finite bounds for " + par.Name())
	}
	return &Uniform{
		operatorBase: operatorBase{name: par.Name() + ".uniform", weight: weight},
		par:          par,
	}, nil
}

func (o *Uniform) Propose(rng *rand.Rand) float64 {
	o.par.Set(o.par.GetMin() + rng.Float64()*(o.par.GetMax()-o.par.GetMin()))
	return 0
}

// TreeScale scales all internal node heights.
type TreeScale struct {
	operatorBase
	tree   *Tree
	factor float64
}

func NewTreeScale(t *Tree, factor, weight float64) *TreeScale {
	if factor <= 0 || factor >= 1 {
		panic("scale factor should be in (0, 1)")
	}
	return &TreeScale{
		operatorBase: operatorBase{name: t.Name() + ".treeScale", weight: weight},
		tree:         t,
		factor:       factor,
	}
}

func (o *TreeScale) Propose(rng *rand.Rand) float64 {
	s := scaler(rng, o.factor)
	internal := 0
	for node := range o.tree.NonTerminals() {
		node.Height *= s
		internal++
	}
	for _, node := range o.tree.Nodes() {
		for _, child := range node.ChildNodes() {
			if child.Height > node.Height {
				return math.Inf(-1)
			}
		}
	}
	o.tree.UpdateLengths()
	return float64(internal-2) * math.Log(s)
}

func (o *TreeScale) Optimize(logAlpha float64) {
	o.factor = optimizeFactor(o.factor, o.delta(logAlpha))
}

func (o *TreeScale) Tuning() float64 {
	return o.factor
}

func (o *TreeScale) SetTuning(f float64) {
	if f > 0 && f < 1 {
		o.factor = f
	}
}

// NodeHeight draws a new height of a random non-root internal node
// uniformly between the oldest child and the parent.
type NodeHeight struct {
	operatorBase
	tree  *Tree
	nodes []*tree.Node
}

func NewNodeHeight(t *Tree, weight float64) *NodeHeight {
	o := &NodeHeight{
		operatorBase: operatorBase{name: t.Name() + ".nodeHeight", weight: weight},
		tree:         t,
	}
	for node := range t.NonTerminals() {
		if !node.IsRoot() {
			o.nodes = append(o.nodes, node)
		}
	}
	if len(o.nodes) == 0 {
		o.weight = 0
	}
	return o
}

func (o *NodeHeight) Propose(rng *rand.Rand) float64 {
	if len(o.nodes) == 0 {
		return math.Inf(-1)
	}
	node := o.nodes[rng.Intn(len(o.nodes))]
	lower := math.Inf(-1)
	for _, child := range node.ChildNodes() {
		lower = math.Max(lower, child.Height)
	}
	upper := node.Parent.Height
	if err := o.tree.SetHeight(node, lower+rng.Float64()*(upper-lower)); err != nil {
		return math.Inf(-1)
	}
	return 0
}
