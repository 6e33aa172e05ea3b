package refdist

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"bitbucket.org/Davydov/gss/ccd"
	"bitbucket.org/Davydov/gss/dist"
	"bitbucket.org/Davydov/gss/kde"
	"bitbucket.org/Davydov/gss/mcmc"
	"bitbucket.org/Davydov/gss/trace"
	"bitbucket.org/Davydov/gss/tree"
)

type testModel struct {
	theta  float64
	rates  []float64
	params mcmc.FloatParameters
	vec    *mcmc.Vector
	trees  mcmc.Trees
}

func newTestModel(t *testing.T) *testModel {
	m := &testModel{theta: 1, rates: []float64{1, 2}}
	p := mcmc.NewBasicFloatParameter(&m.theta, "theta")
	p.SetMin(0)
	p.SetPriorFunc(mcmc.ExponentialPrior(1, false))
	m.vec = mcmc.NewVector("rates", m.rates)
	m.vec.SetMin(0)
	m.vec.SetPriorFunc(mcmc.ExponentialPrior(2, false))
	m.params = mcmc.FloatParameters{p}
	m.params.Append(m.vec.Elements...)
	tr, err := tree.ParseNewickString("((A:1,B:1):1,C:2);")
	if err != nil {
		t.Fatal(err)
	}
	st := mcmc.NewTree("tree", tr)
	st.SetPriorFunc(func(*tree.Tree) float64 { return -7 })
	m.trees = mcmc.Trees{st}
	return m
}

func (m *testModel) Parameters() mcmc.FloatParameters { return m.params }
func (m *testModel) Vectors() []*mcmc.Vector          { return []*mcmc.Vector{m.vec} }
func (m *testModel) Trees() mcmc.Trees                { return m.trees }
func (m *testModel) Operators() []mcmc.Operator       { return nil }
func (m *testModel) LogPrior() float64                { return m.params.LogPrior() + m.trees.LogPrior() }
func (m *testModel) LogLikelihood() (float64, error)  { return 0, nil }
func (m *testModel) Initialize(rng *rand.Rand) error  { return nil }

func traceLog(t *testing.T, n int) *trace.Log {
	rng := rand.New(rand.NewSource(1))
	var b strings.Builder
	b.WriteString("Sample\tposterior\ttheta\trates.1\trates.2\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d\t%v\t%v\t%v\t%v\n", i*100, -rng.ExpFloat64(),
			1+0.1*rng.NormFloat64(), 1+0.1*rng.NormFloat64(), 2+0.1*rng.NormFloat64())
	}
	l, err := trace.Read(strings.NewReader(b.String()), 0)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestBuild(t *testing.T) {
	m := newTestModel(t)
	trees := make([]*tree.Tree, 0, 10)
	for i := 0; i < 10; i++ {
		tr, _ := tree.ParseNewickString("((A:1,B:1):1,C:2);")
		trees = append(trees, tr)
	}
	ref, err := Build(m, traceLog(t, 1000), Options{Trees: ccd.Trees(trees)})
	if err != nil {
		t.Fatal(err)
	}
	kinds := map[string]Kind{}
	for _, d := range ref.Terms {
		kinds[d.Name()] = d.Kind()
	}
	if len(kinds) != 3 || kinds["theta"] != KindKDE || kinds["rates"] != KindMultivariate || kinds["tree"] != KindClade {
		t.Fatal("wrong reference terms:", ref.Summary())
	}
	lp := ref.LogP()
	if math.IsInf(lp, 0) || math.IsNaN(lp) {
		t.Error("reference density should be finite at the posterior mode:", lp)
	}
	b := ref.Breakdown()
	if b["clade:tree"] != 0 {
		t.Error("the only topology should have probability one:", b)
	}

	// lower bound guard
	m.theta = -1
	if lp := ref.LogP(); !math.IsInf(lp, -1) {
		t.Error("value below the lower bound should have zero density, got", lp)
	}
	m.theta = 1
	m.rates[1] = -0.5
	if lp := ref.LogP(); !math.IsInf(lp, -1) {
		t.Error("vector element below the lower bound should have zero density, got", lp)
	}
}

func TestBuildMissing(t *testing.T) {
	m := newTestModel(t)
	l, err := trace.Read(strings.NewReader("Sample\tposterior\n0\t-1\n1\t-2\n"), 0)
	if err != nil {
		t.Fatal(err)
	}
	ref, err := Build(m, l, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range ref.Terms {
		if d.Kind() != KindPrior {
			t.Error("expected prior reference for", d.Name(), d.Kind())
		}
	}
	if lp, exp := ref.LogP(), m.LogPrior(); math.Abs(lp-exp) > 1e-12 {
		t.Errorf("prior reference %v, expected %v", lp, exp)
	}
}

func TestGammaScalar(t *testing.T) {
	m := newTestModel(t)
	l := traceLog(t, 500)
	ref, err := Build(m, l, Options{Scalar: KindGamma})
	if err != nil {
		t.Fatal(err)
	}
	col, _ := l.Column("theta")
	g, err := dist.FitGamma(col)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range ref.Terms {
		if d.Name() == "theta" {
			if d.Kind() != KindGamma {
				t.Fatal("wrong kind:", d.Kind())
			}
			if math.Abs(d.LogP()-g.LogDensity(1)) > 1e-12 {
				t.Error("wrong gamma density:", d.LogP(), g.LogDensity(1))
			}
		}
	}
}

func TestMultivariate(t *testing.T) {
	k1, err := kde.New([]float64{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	g := dist.Gamma{Shape: 2, Scale: 1}
	mv := NewMultivariate(k1, g)
	lp, err := mv.LogDensity([]float64{2.5, 1})
	if err != nil {
		t.Fatal(err)
	}
	if exp := k1.LogDensity(2.5) + g.LogDensity(1); math.Abs(lp-exp) > 1e-12 {
		t.Errorf("log density %v, expected %v", lp, exp)
	}
	if _, err := mv.LogDensity([]float64{1}); !errors.Is(err, ErrDimension) {
		t.Error("expected ErrDimension, got", err)
	}
	if _, err := ForVector(mv, mcmc.NewVector("x", []float64{1, 2, 3})); !errors.Is(err, ErrDimension) {
		t.Error("expected ErrDimension, got", err)
	}
}
