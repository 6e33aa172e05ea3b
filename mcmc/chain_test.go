package mcmc

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/Davydov/gss/checkpoint"
)

// normalModel is y_i ~ N(mu, 1), mu ~ N(0, 1).
type normalModel struct {
	mu        float64
	data      []float64
	params    FloatParameters
	ops       []Operator
	logLik    func() (float64, error)
	initCalls int
}

func newNormalModel() *normalModel {
	m := &normalModel{data: []float64{1.2, 0.8, 1.5, 0.9}}
	p := NewBasicFloatParameter(&m.mu, "mu")
	p.SetPriorFunc(NormalPrior(0, 1))
	m.params = FloatParameters{p}
	m.ops = []Operator{NewRandomWalk(p, 0.5, 1), NewScale(p, 0.75, 0)}
	return m
}

func (m *normalModel) Parameters() FloatParameters { return m.params }
func (m *normalModel) Vectors() []*Vector          { return nil }
func (m *normalModel) Trees() Trees                { return nil }
func (m *normalModel) Operators() []Operator       { return m.ops }
func (m *normalModel) LogPrior() float64           { return m.params.LogPrior() }

func (m *normalModel) LogLikelihood() (float64, error) {
	if m.logLik != nil {
		return m.logLik()
	}
	l := 0.0
	d := distuv.Normal{Mu: m.mu, Sigma: 1}
	for _, y := range m.data {
		l += d.LogProb(y)
	}
	return l, nil
}

func (m *normalModel) Initialize(rng *rand.Rand) error {
	m.initCalls++
	m.mu = rng.NormFloat64()
	return nil
}

type normalRef struct {
	par FloatParameter
	d   distuv.Normal
}

func (r normalRef) LogP() float64 {
	return r.d.LogProb(r.par.Get())
}

type memLogger struct {
	samples []int64
	values  []float64
}

func (l *memLogger) Log(sample int64, values ...float64) error {
	l.samples = append(l.samples, sample)
	l.values = append(l.values, values[0])
	return nil
}

// sampleMu runs the chain and collects mu after the burn-in.
func sampleMu(t *testing.T, m *normalModel, ref Reference, s Settings) []float64 {
	var mu []float64
	s.Progress = func(done, total int) {
		if done > s.BurnIn {
			mu = append(mu, m.mu)
		}
	}
	c, err := NewChain(m, ref, s)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.State() != Finished {
		t.Error("wrong final state:", c.State())
	}
	return mu
}

func TestPriorSampling(t *testing.T) {
	m := newNormalModel()
	mu := sampleMu(t, m, nil, Settings{
		Mode:        PathSampling,
		Beta:        0,
		ChainLength: 50000,
		BurnIn:      1000,
		Rng:         rand.New(rand.NewSource(1)),
	})
	mean, variance := stat.MeanVariance(mu, nil)
	if math.Abs(mean) > 0.1 || math.Abs(variance-1) > 0.2 {
		t.Errorf("prior sample mean=%v, var=%v", mean, variance)
	}
}

func TestPosteriorSampling(t *testing.T) {
	m := newNormalModel()
	ref := normalRef{m.params[0], distuv.Normal{Mu: 3, Sigma: 0.5}}
	mu := sampleMu(t, m, ref, Settings{
		Mode:        SteppingStone,
		Beta:        1,
		ChainLength: 50000,
		BurnIn:      1000,
		Rng:         rand.New(rand.NewSource(2)),
	})
	// posterior is N(0.88, 0.2)
	mean, variance := stat.MeanVariance(mu, nil)
	if math.Abs(mean-0.88) > 0.05 || math.Abs(variance-0.2) > 0.05 {
		t.Errorf("posterior sample mean=%v, var=%v", mean, variance)
	}
}

func TestReferenceSampling(t *testing.T) {
	m := newNormalModel()
	ref := normalRef{m.params[0], distuv.Normal{Mu: 3, Sigma: 0.5}}
	mu := sampleMu(t, m, ref, Settings{
		Mode:        SteppingStone,
		Beta:        0,
		ChainLength: 50000,
		BurnIn:      1000,
		Rng:         rand.New(rand.NewSource(3)),
	})
	mean, variance := stat.MeanVariance(mu, nil)
	if math.Abs(mean-3) > 0.05 || math.Abs(variance-0.25) > 0.05 {
		t.Errorf("reference sample mean=%v, var=%v", mean, variance)
	}
}

func TestLogging(t *testing.T) {
	m := newNormalModel()
	out := &memLogger{}
	c, err := NewChain(m, nil, Settings{
		Mode:        PathSampling,
		Beta:        0.5,
		ChainLength: 100,
		BurnIn:      50,
		LogEvery:    10,
		Output:      out,
		Rng:         rand.New(rand.NewSource(4)),
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(out.samples) != 11 || res.Samples != 11 {
		t.Fatal("wrong number of samples:", out.samples)
	}
	if out.samples[0] != 0 || out.samples[10] != 100 {
		t.Error("wrong sample numbers:", out.samples)
	}
	if res.Accepted+res.Rejected != 151 {
		t.Error("wrong number of iterations:", res.Accepted+res.Rejected)
	}
	// operator statistics are collected after the burn-in only
	rate := res.OperatorRates[0]
	if rate.Accepted+rate.Rejected != 101 {
		t.Error("wrong operator statistics:", rate)
	}
	if res.OperatorRates[1].Accepted+res.OperatorRates[1].Rejected != 0 {
		t.Error("operator with zero weight was selected")
	}
}

func TestCheckpointInterval(t *testing.T) {
	db, err := checkpoint.Open(filepath.Join(t.TempDir(), "step.state"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for _, test := range []struct {
		seconds float64
		iter    int
	}{
		{0, 399},
		// only the first periodic checkpoint is due within an hour
		{3600, 99},
	} {
		cio := checkpoint.NewIO(db, checkpoint.STATE, test.seconds)
		var saved *checkpoint.Data
		s := Settings{
			Step:        1,
			Mode:        PathSampling,
			Beta:        1,
			ChainLength: 1000,
			LogEvery:    10,
			StoreEvery:  100,
			Checkpoint:  cio,
			Rng:         rand.New(rand.NewSource(6)),
		}
		s.Progress = func(done, total int) {
			if done == 500 {
				if saved, err = cio.Load(); err != nil {
					t.Fatal(err)
				}
			}
		}
		c, err := NewChain(newNormalModel(), nil, s)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := c.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		if saved == nil || saved.Iter != test.iter {
			t.Errorf("interval %v: wrong checkpoint %+v", test.seconds, saved)
		}
	}
}

func TestResume(t *testing.T) {
	dir := t.TempDir()
	db, err := checkpoint.Open(filepath.Join(dir, "step.state"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	cio := checkpoint.NewIO(db, checkpoint.STATE, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &memLogger{}
	s := Settings{
		Step:        3,
		Mode:        PathSampling,
		Beta:        0.5,
		ChainLength: 1000,
		BurnIn:      100,
		LogEvery:    10,
		StoreEvery:  200,
		Output:      out,
		Checkpoint:  cio,
		Rng:         rand.New(rand.NewSource(5)),
	}
	s.Progress = func(done, total int) {
		if done == 600 {
			cancel()
		}
	}
	c, err := NewChain(newNormalModel(), nil, s)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatal("expected cancellation, got", err)
	}

	d, err := cio.Load()
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Iter != 499 || d.Final || d.Step != 3 {
		t.Fatal("wrong checkpoint:", d)
	}

	s.Restore = d
	s.Progress = nil
	m := newNormalModel()
	c, err = NewChain(m, nil, s)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(out.samples) != 101 {
		t.Error("wrong number of samples after resume:", len(out.samples))
	}
	for i, sample := range out.samples {
		if sample != int64(i*10) {
			t.Fatal("wrong sample sequence:", out.samples)
		}
	}

	d, err = cio.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !d.Final || d.Iter != 1000 {
		t.Error("wrong final checkpoint:", d)
	}
}

func TestHandOff(t *testing.T) {
	m := newNormalModel()
	s := Settings{
		Step:        0,
		Mode:        PathSampling,
		Beta:        0.7,
		ChainLength: 2000,
		BurnIn:      100,
		Rng:         rand.New(rand.NewSource(6)),
	}
	c, err := NewChain(m, nil, s)
	if err != nil {
		t.Fatal(err)
	}
	res0, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	d := c.checkpointData(s.ChainLength, true)

	m1 := newNormalModel()
	s.Step = 1
	s.Restore = d
	s.BurnIn = 100
	c1, err := NewChain(m1, nil, s)
	if err != nil {
		t.Fatal(err)
	}
	res1, err := c1.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res1.StartLogDensity-res0.EndLogDensity) > 1e-12 {
		t.Errorf("hand-off start logP %v, previous end logP %v", res1.StartLogDensity, res0.EndLogDensity)
	}
	// no burn-in after the hand-off
	if res1.Accepted+res1.Rejected != s.ChainLength+1 {
		t.Error("wrong number of iterations after the hand-off:", res1.Accepted+res1.Rejected)
	}
}

func TestInitError(t *testing.T) {
	m := newNormalModel()
	m.logLik = func() (float64, error) { return math.Inf(-1), nil }
	c, err := NewChain(m, nil, Settings{Mode: PathSampling, Beta: 1, ChainLength: 10})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Run(context.Background())
	var ie *InitError
	if !errors.As(err, &ie) {
		t.Fatal("expected InitError, got", err)
	}
	if ie.Attempts != DefaultInitAttempts || m.initCalls != DefaultInitAttempts {
		t.Error("wrong number of attempts:", ie.Attempts, m.initCalls)
	}
	if !math.IsInf(ie.Terms.Likelihood, -1) {
		t.Error("wrong breakdown:", ie.Terms)
	}
	if _, ok := ie.Breakdown["prior:mu"]; !ok {
		t.Error("parameter prior is missing from the breakdown:", ie.Breakdown)
	}
}

func TestInitRecovery(t *testing.T) {
	m := newNormalModel()
	calls := 0
	m.logLik = func() (float64, error) {
		calls++
		if calls < 3 {
			return math.NaN(), nil
		}
		return -1, nil
	}
	c, err := NewChain(m, nil, Settings{Mode: PathSampling, Beta: 1, ChainLength: 10})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.initCalls != 2 {
		t.Error("wrong number of re-initializations:", m.initCalls)
	}
}

func TestEvalError(t *testing.T) {
	m := newNormalModel()
	calls := 0
	failure := errors.New("numerical failure")
	m.logLik = func() (float64, error) {
		calls++
		if calls > 5 {
			return 0, failure
		}
		return -1, nil
	}
	c, err := NewChain(m, nil, Settings{Mode: PathSampling, Beta: 1, ChainLength: 100})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Run(context.Background())
	var ee *EvalError
	if !errors.As(err, &ee) || !errors.Is(err, failure) {
		t.Fatal("expected EvalError, got", err)
	}
}

func TestNewChainErrors(t *testing.T) {
	m := newNormalModel()
	if _, err := NewChain(m, nil, Settings{Mode: SteppingStone, Beta: 0.5}); err == nil {
		t.Error("expected an error for stepping-stone without a reference")
	}
	if _, err := NewChain(m, nil, Settings{Mode: PathSampling, Beta: 1.5}); err == nil {
		t.Error("expected an error for beta > 1")
	}
}

func TestTarget(t *testing.T) {
	terms := Terms{Prior: -1, Likelihood: math.Inf(-1), Reference: -2}
	if v := SteppingStone.Target(terms, 0); v != -2 {
		t.Error("reference-only target should ignore the likelihood, got", v)
	}
	if v := PathSampling.Target(terms, 0); v != -1 {
		t.Error("prior-only target should ignore the likelihood, got", v)
	}
	terms = Terms{Prior: -1, Likelihood: -3, Reference: math.Inf(-1)}
	if v := SteppingStone.Target(terms, 1); v != -4 {
		t.Error("posterior target should ignore the reference, got", v)
	}
	if v := SteppingStone.Logged(terms); !math.IsInf(v, 1) {
		t.Error("wrong logged value:", v)
	}
	if v := PathSampling.Logged(terms); v != -3 {
		t.Error("wrong logged value:", v)
	}
	for _, mode := range []Mode{SteppingStone, PathSampling} {
		if m, err := ParseMode(mode.String()); err != nil || m != mode {
			t.Error("mode mismatch:", mode, m, err)
		}
	}
}
