// Package refdist implements reference distributions for generalized
// stepping-stone sampling. A reference approximates the posterior of
// every state node of the model: scalar parameters by a kernel density
// estimate or a gamma distribution, vector parameters by independent
// KDEs and trees by the conditional clade distribution.
package refdist

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gss/mcmc"
	"bitbucket.org/Davydov/gss/tree"
)

var log = logging.MustGetLogger("refdist")

// ErrDimension is returned when the value dimension does not match.
var ErrDimension = errors.New("dimension mismatch")

// Kind is the reference distribution kind.
type Kind int

const (
	KindKDE Kind = iota
	KindGamma
	KindClade
	KindMultivariate
	// KindPrior is a prior used as a reference.
	KindPrior
)

func (k Kind) String() string {
	switch k {
	case KindKDE:
		return "kde"
	case KindGamma:
		return "gamma"
	case KindClade:
		return "clade"
	case KindMultivariate:
		return "multivariate"
	case KindPrior:
		return "prior"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Univariate is a one-dimensional density.
type Univariate interface {
	LogDensity(x float64) float64
}

// Multivariate is a product of independent univariate densities.
type Multivariate struct {
	dims []Univariate
}

func NewMultivariate(dims ...Univariate) *Multivariate {
	return &Multivariate{dims: dims}
}

func (m *Multivariate) Dim() int {
	return len(m.dims)
}

// LogDensity returns the sum of the per-dimension log densities.
func (m *Multivariate) LogDensity(x []float64) (float64, error) {
	if len(x) != len(m.dims) {
		return math.NaN(), ErrDimension
	}
	lp := 0.0
	for i, d := range m.dims {
		lp += d.LogDensity(x[i])
	}
	return lp, nil
}

// TreeDensity is a density over trees, e.g. *ccd.Model.
type TreeDensity interface {
	LogDensity(t *tree.Tree) float64
}

// Distribution is a reference bound to the state node it scores.
type Distribution interface {
	Kind() Kind
	Name() string
	LogP() float64
}

type scalar struct {
	kind Kind
	u    Univariate
	par  mcmc.FloatParameter
}

// ForScalar binds a univariate density to a parameter. Values below
// the parameter lower bound have zero density.
func ForScalar(kind Kind, u Univariate, par mcmc.FloatParameter) Distribution {
	return &scalar{kind: kind, u: u, par: par}
}

func (s *scalar) Kind() Kind {
	return s.kind
}

func (s *scalar) Name() string {
	return s.par.Name()
}

func (s *scalar) LogP() float64 {
	x := s.par.Get()
	if x < s.par.GetMin() {
		return math.Inf(-1)
	}
	return s.u.LogDensity(x)
}

type vector struct {
	m   *Multivariate
	vec *mcmc.Vector
}

// ForVector binds a multivariate density to a vector parameter.
func ForVector(m *Multivariate, v *mcmc.Vector) (Distribution, error) {
	if m.Dim() != v.Dim() {
		return nil, fmt.Errorf("%s: %w (%d != %d)", v.Name(), ErrDimension, m.Dim(), v.Dim())
	}
	return &vector{m: m, vec: v}, nil
}

func (v *vector) Kind() Kind {
	return KindMultivariate
}

func (v *vector) Name() string {
	return v.vec.Name()
}

func (v *vector) LogP() float64 {
	for _, e := range v.vec.Elements {
		if e.Get() < e.GetMin() {
			return math.Inf(-1)
		}
	}
	lp, err := v.m.LogDensity(v.vec.Values())
	if err != nil {
		return math.NaN()
	}
	return lp
}

type treeDist struct {
	d TreeDensity
	t *mcmc.Tree
}

// ForTree binds a tree density to a tree state node.
func ForTree(d TreeDensity, t *mcmc.Tree) Distribution {
	return &treeDist{d: d, t: t}
}

func (t *treeDist) Kind() Kind {
	return KindClade
}

func (t *treeDist) Name() string {
	return t.t.Name()
}

func (t *treeDist) LogP() float64 {
	return t.d.LogDensity(t.t.Tree)
}

type prior struct {
	name string
	f    func() float64
}

// ForPrior uses a prior density as a reference.
func ForPrior(name string, f func() float64) Distribution {
	return &prior{name: name, f: f}
}

func (p *prior) Kind() Kind {
	return KindPrior
}

func (p *prior) Name() string {
	return p.name
}

func (p *prior) LogP() float64 {
	return p.f()
}

// Compound is a sum of reference distributions.
type Compound struct {
	Terms []Distribution
}

// Add appends a term.
func (c *Compound) Add(d Distribution) {
	c.Terms = append(c.Terms, d)
}

// LogP returns the sum of all the terms.
func (c *Compound) LogP() (lp float64) {
	for _, d := range c.Terms {
		lp += d.LogP()
	}
	return
}

// Breakdown returns the terms by name.
func (c *Compound) Breakdown() map[string]float64 {
	b := make(map[string]float64, len(c.Terms))
	for _, d := range c.Terms {
		b[d.Kind().String()+":"+d.Name()] = d.LogP()
	}
	return b
}

// Summary returns a human readable description of the terms.
func (c *Compound) Summary() []string {
	res := make([]string, len(c.Terms))
	for i, d := range c.Terms {
		res[i] = fmt.Sprintf("%s (%s)", d.Name(), d.Kind())
	}
	sort.Strings(res)
	return res
}
