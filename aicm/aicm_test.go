package aicm

import (
	"math"
	"math/rand"
	"testing"
)

func appreq(a, b, tol float64) bool {
	return math.Abs(a-b) < tol
}

func TestAICM(t *testing.T) {
	if v := AICM([]float64{-1, -2, -3, -4, -5}); !appreq(v, 11, 1e-12) {
		t.Error("AICM:", v)
	}
}

func TestHarmonic(t *testing.T) {
	// 2 / (1 + 1/3)
	if v := Harmonic([]float64{0, math.Log(3)}); !appreq(v, math.Log(1.5), 1e-12) {
		t.Error("harmonic:", v)
	}
	if v := Harmonic([]float64{-1e6, -1e6}); !appreq(v, -1e6, 1e-6) {
		t.Error("harmonic is not stable:", v)
	}
}

func TestArithmetic(t *testing.T) {
	v := Arithmetic([]float64{0, math.Log(3), math.Inf(-1), math.NaN()})
	if !appreq(v, math.Log(2), 1e-12) {
		t.Error("arithmetic:", v)
	}
	if v := Arithmetic([]float64{math.NaN()}); !math.IsInf(v, -1) {
		t.Error("expected log zero, got", v)
	}
}

func TestSmoothed(t *testing.T) {
	if v := Smoothed([]float64{-5, -5, -5}); !appreq(v, -5, 1e-9) {
		t.Error("smoothed for a constant sample:", v)
	}

	rng := rand.New(rand.NewSource(1))
	v := make([]float64, 500)
	for i := range v {
		v[i] = -20 + rng.NormFloat64()
	}
	h, s, a := Harmonic(v), Smoothed(v), Arithmetic(v)
	if !(h <= s && s <= a) {
		t.Errorf("harmonic %v, smoothed %v, arithmetic %v", h, s, a)
	}
}

func TestSmoothedNotConverging(t *testing.T) {
	defer func(n int) { smoothMaxIter = n }(smoothMaxIter)
	smoothMaxIter = 0

	v := []float64{-10, -20, -30, -40}
	if s := Smoothed(v); !math.IsInf(s, -1) {
		t.Error("expected log zero, got", s)
	}
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"aicm", "hme", "smoothed", "arithmetic"} {
		k, err := ParseKind(name)
		if err != nil {
			t.Fatal(err)
		}
		if k.String() != name {
			t.Error("wrong kind:", k)
		}
	}
	if _, err := ParseKind("geometric"); err == nil {
		t.Error("expected error")
	}
}

func TestAnalyser(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	v := make([]float64, 200)
	for i := range v {
		v[i] = -10 + rng.NormFloat64()
	}
	calls := 0
	a := &Analyser{
		Kind:      KindAICM,
		Bootstrap: 50,
		Rng:       rng,
		Progress:  func(done, total int) { calls++ },
	}
	r, err := a.Analyse(v)
	if err != nil {
		t.Fatal(err)
	}
	if !appreq(r.Estimate, AICM(v), 1e-12) {
		t.Error("estimate", r.Estimate)
	}
	if r.SE <= 0 || r.SE > 1 {
		t.Error("standard error", r.SE)
	}
	if calls != 50 {
		t.Error("progress was called", calls, "times")
	}

	if _, err := a.Analyse([]float64{1}); err == nil {
		t.Error("expected error for a single sample")
	}
}
