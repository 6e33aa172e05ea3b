package cpo

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/gonum/matrix/mat64"
)

func appreq(a, b, tol float64) bool {
	return math.Abs(a-b) < tol
}

const cpoLog = `#weights 2 1
Sample	p1	p2
0	-100	-100
10	0	-1.3862943611198906
20	-0.6931471805599453	-1.3862943611198906
`

func TestReadTable(t *testing.T) {
	tab, err := ReadTable(strings.NewReader(cpoLog), 34)
	if err != nil {
		t.Fatal(err)
	}
	if tab.Patterns() != 2 || tab.Trees() != 2 || tab.Sites() != 3 {
		t.Fatalf("wrong dimensions: %d patterns, %d trees", tab.Patterns(), tab.Trees())
	}
	expected := 2*math.Log(2.0/3) + math.Log(0.25)
	if v := tab.LPML(tab.All()); !appreq(v, expected, 1e-12) {
		t.Errorf("LPML %v, expected %v", v, expected)
	}
	cpo := tab.CPO()
	if !appreq(cpo[0], math.Log(2.0/3), 1e-12) || !appreq(cpo[1], math.Log(0.25), 1e-12) {
		t.Error("CPO:", cpo)
	}
	// a single tree repeated
	if v := tab.LPML([]int{0, 0}); !appreq(v, math.Log(0.25), 1e-12) {
		t.Error("LPML for the first tree:", v)
	}
}

func TestReadTableErrors(t *testing.T) {
	for _, s := range []string{
		"Sample\tp1\n0\t1\n",
		"#weights 1 2\nSample\tp1\n0\t1\n",
		"#weights x\nSample\tp1\n0\t1\n",
	} {
		if _, err := ReadTable(strings.NewReader(s), 0); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
	if _, err := NewTable(mat64.NewDense(2, 1, nil), []int{1}); err == nil {
		t.Error("expected error for mismatching weights")
	}
}

func TestBootstrap(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var b strings.Builder
	b.WriteString("#weights 1 1 1\nSample\tp1\tp2\tp3\n")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, "%d\t%v\t%v\t%v\n", i, -1-rng.Float64(), -2-rng.Float64(), -3-rng.Float64())
	}
	tab, err := ReadTable(strings.NewReader(b.String()), 0)
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	mean, sd, err := tab.Bootstrap(100, rng, func(done, total int) { calls++ })
	if err != nil {
		t.Fatal(err)
	}
	lpml := tab.LPML(tab.All())
	if !appreq(mean, lpml, 0.1) {
		t.Errorf("bootstrap mean %v, LPML %v", mean, lpml)
	}
	if sd <= 0 || sd > 0.1 {
		t.Error("bootstrap SD", sd)
	}
	if calls != 100 {
		t.Error("progress was called", calls, "times")
	}
	if _, _, err := tab.Bootstrap(1, rng, nil); err == nil {
		t.Error("expected error for a single replicate")
	}
}
