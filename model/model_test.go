package model

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/BurntSushi/toml"

	"bitbucket.org/Davydov/gss/mcmc"
)

const coalescentConfig = `
type = "coalescent"
tree = "((A:0.1,B:0.1):0.2,C:0.3);"
thetaRate = 1
sigma = 0.1

[[divergence]]
a = "A"
b = "B"
d = 0.2

[[divergence]]
a = "A"
b = "C"
d = 0.6
`

func appreq(a, b, tol float64) bool {
	return math.Abs(a-b) < tol
}

func TestNormalMarginal(t *testing.T) {
	m, err := NewNormal([]float64{1.2, 0.8, 1.5}, 0.7, 0.5, 2)
	if err != nil {
		t.Fatal(err)
	}
	// trapezoidal integration over mu
	const h = 1e-3
	s := 0.0
	for mu := -20.0; mu <= 20; mu += h {
		m.mu = mu
		l, _ := m.LogLikelihood()
		s += math.Exp(l+m.LogPrior()) * h
	}
	if ml := m.LogMarginalLikelihood(); !appreq(ml, math.Log(s), 1e-6) {
		t.Errorf("log marginal likelihood: %v, numerical: %v", ml, math.Log(s))
	}
}

func TestNormalErrors(t *testing.T) {
	if _, err := NewNormal(nil, 1, 0, 1); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := NewNormal([]float64{1}, 0, 0, 1); err == nil {
		t.Error("expected error for zero sigma")
	}
}

func TestCoalescentLogDensity(t *testing.T) {
	if lp := CoalescentLogDensity([]float64{0.5}, 1); !appreq(lp, -0.5, 1e-12) {
		t.Error("two leaves:", lp)
	}
	exp := -2*math.Log(2) - 0.25
	if lp := CoalescentLogDensity([]float64{0.1, 0.3}, 2); !appreq(lp, exp, 1e-12) {
		t.Errorf("three leaves: %v, expected %v", lp, exp)
	}
	if lp := CoalescentLogDensity([]float64{0.1}, 0); !math.IsInf(lp, -1) {
		t.Error("zero theta:", lp)
	}
}

func newCoalescent(t *testing.T) *Coalescent {
	var cfg Config
	if _, err := toml.Decode(coalescentConfig, &cfg); err != nil {
		t.Fatal(err)
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return m.(*Coalescent)
}

func TestCoalescent(t *testing.T) {
	m := newCoalescent(t)
	if len(m.divergences) != 2 {
		t.Fatal("wrong number of divergences:", len(m.divergences))
	}
	l, err := m.LogLikelihood()
	if err != nil {
		t.Fatal(err)
	}
	exp := 2 * (-math.Log(0.1) - math.Log(2*math.Pi)/2)
	if !appreq(l, exp, 1e-8) {
		t.Errorf("log likelihood: %v, expected %v", l, exp)
	}
	// Exp(1) at theta=1 and coalescent times 0.1, 0.3
	if lp := m.LogPrior(); !appreq(lp, -1.5, 1e-8) {
		t.Errorf("log prior: %v, expected -1.5", lp)
	}
}

func TestCoalescentErrors(t *testing.T) {
	if _, err := New(Config{Type: "foo"}); err == nil || err.Error() != "Unknown model: foo" {
		t.Error("expected unknown model error, got", err)
	}
	exp := Prior{Family: "exponential", Rate: 1}
	if _, err := NewCoalescent("((A:0.1,B:0.2):0.1,C:0.3);", exp, nil, 1); err == nil {
		t.Error("expected error for a non-ultrametric tree")
	}
	if _, err := NewCoalescent("((A:0.1,B:0.1):0.1,C:0.2);", exp, []Divergence{{"A", "D", 1}}, 1); err == nil {
		t.Error("expected error for an unknown taxon")
	}
}

func TestCoalescentChain(t *testing.T) {
	m := newCoalescent(t)
	c, err := mcmc.NewChain(m, nil, mcmc.Settings{
		Mode:        mcmc.PathSampling,
		Beta:        1,
		ChainLength: 5000,
		BurnIn:      500,
		Rng:         rand.New(rand.NewSource(5)),
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted == 0 || res.Rejected == 0 {
		t.Errorf("accepted=%d, rejected=%d", res.Accepted, res.Rejected)
	}
	for _, node := range m.Tree().Nodes() {
		if node.Parent != nil && node.BranchLength < 0 {
			t.Errorf("negative branch length of node %d: %v", node.Id, node.BranchLength)
		}
		if node.IsTerminal() && node.Height != 0 {
			t.Errorf("leaf %s height changed: %v", node.Name, node.Height)
		}
	}
	if lp := m.LogPrior(); math.IsInf(lp, 0) || math.IsNaN(lp) {
		t.Error("final prior is not finite:", lp)
	}
}

func TestPriors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, test := range []struct {
		prior Prior
		x     float64
		lp    float64
	}{
		{Prior{Family: "exponential", Rate: 2}, 0.5, math.Log(2) - 1},
		{Prior{Family: "gamma", Shape: 1, Scale: 0.5}, 0.5, math.Log(2) - 1},
		{Prior{Family: "lognormal", Mean: 0, SD: 1}, 1, -math.Log(2*math.Pi) / 2},
		{Prior{Family: "uniform", Min: 1, Max: 5}, 2, -math.Log(4)},
	} {
		v := 0.0
		p := mcmc.NewBasicFloatParameter(&v, "theta")
		if err := test.prior.apply(p, true); err != nil {
			t.Fatal(err)
		}
		v = test.x
		if lp := p.Prior(); !appreq(lp, test.lp, 1e-9) {
			t.Errorf("%s: log prior %v, expected %v", test.prior.Family, lp, test.lp)
		}
		v = -1
		if !math.IsInf(p.Prior(), -1) {
			t.Errorf("%s: negative value has a finite prior", test.prior.Family)
		}
		for i := 0; i < 100; i++ {
			v = test.prior.sample(rng)
			if !p.InRange() || math.IsInf(p.Prior(), -1) {
				t.Errorf("%s: sample %v is outside of the support", test.prior.Family, v)
				break
			}
		}
	}

	for _, pr := range []Prior{
		{Family: "exponential"},
		{Family: "gamma", Shape: 1},
		{Family: "lognormal"},
		{Family: "normal", SD: 1},
		{Family: "uniform", Min: -1, Max: 1},
		{Family: "uniform", Min: 2, Max: 1},
		{Family: "cauchy"},
	} {
		if err := pr.check(true); err == nil {
			t.Errorf("expected error for %+v", pr)
		}
	}
	if err := (Prior{Family: "normal", SD: 1}).check(false); err != nil {
		t.Error("normal prior of a real parameter:", err)
	}
}

const uniformCoalescent = `
type = "coalescent"
tree = "((A:0.1,B:0.1):0.2,C:0.3);"
sigma = 0.1
operator = "uniform"

[thetaPrior]
family = "uniform"
min = 0.5
max = 1.5

[[divergence]]
a = "A"
b = "B"
d = 0.2
`

func TestConfigPriorOperator(t *testing.T) {
	var cfg Config
	if _, err := toml.Decode(uniformCoalescent, &cfg); err != nil {
		t.Fatal(err)
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	cm := m.(*Coalescent)
	if cm.Theta() != 1 {
		t.Error("theta should start at the prior mean, got", cm.Theta())
	}
	if name := cm.Operators()[0].Name(); name != "theta.uniform" {
		t.Error("wrong theta operator:", name)
	}

	c, err := mcmc.NewChain(m, nil, mcmc.Settings{
		Mode:        mcmc.PathSampling,
		Beta:        1,
		ChainLength: 2000,
		Rng:         rand.New(rand.NewSource(3)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if cm.Theta() < 0.5 || cm.Theta() > 1.5 {
		t.Error("theta left the prior support:", cm.Theta())
	}

	cfg.ThetaPrior = &Prior{Family: "normal", SD: 1}
	if _, err := New(cfg); err == nil {
		t.Error("expected error for a normal prior of theta")
	}

	normal := DefaultConfig()
	normal.Operator = "scale"
	if m, err := New(normal); err != nil || m.Operators()[0].Name() != "mu.scale" {
		t.Error("wrong normal model operator:", err)
	}
	normal.Operator = "uniform"
	if _, err := New(normal); err == nil {
		t.Error("expected error for an unbounded uniform proposal")
	}
	normal.Operator = "slice"
	if _, err := New(normal); err == nil || err.Error() != "Unknown operator: slice" {
		t.Error("expected unknown operator error, got", err)
	}
}
