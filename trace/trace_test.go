package trace

import (
	"bytes"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const traceLog = `# generated by a test
# second comment
Sample	posterior	likelihood	rate.1	rate.2
0	-10	-5	1	2
1000	-9	-4	1.5	2.5
2000	-8	-3	2	3
3000	-7	-2	2.5	3.5
`

func TestRead(t *testing.T) {
	l, err := Read(strings.NewReader(traceLog), 50)
	if err != nil {
		t.Fatal(err)
	}
	if l.Comment() != "# generated by a test" {
		t.Error("wrong comment:", l.Comment())
	}
	if l.Len() != 2 || l.Burnin() != 2 {
		t.Error("wrong burn-in:", l.Len(), l.Burnin())
	}
	if len(l.Labels()) != 4 {
		t.Error("wrong labels:", l.Labels())
	}
	col, ok := l.Column("likelihood")
	if !ok || col[0] != -3 || col[1] != -2 {
		t.Error("wrong column:", col)
	}
	if m, _ := l.Mean("posterior"); m != -7.5 {
		t.Error("wrong mean:", m)
	}
	if s := l.Samples(); s[0] != 2000 {
		t.Error("wrong samples:", s)
	}
	if _, ok := l.Column("missing"); ok {
		t.Error("found a missing column")
	}
}

func TestReadErrors(t *testing.T) {
	if _, err := Read(strings.NewReader("# only a comment\n"), 0); err == nil {
		t.Error("expected an error for a missing header")
	}
	if _, err := Read(strings.NewReader("Sample\ta\n0\t1\t2\n"), 0); err == nil {
		t.Error("expected an error for a wrong number of columns")
	}
	if _, err := Read(strings.NewReader(traceLog), 100); err == nil {
		t.Error("expected an error for 100% burn-in")
	}
}

func TestInfinity(t *testing.T) {
	l, err := Read(strings.NewReader("Sample\tx\n0\t-Infinity\n1\tNaN\n2\tabc\n"), 0)
	if err != nil {
		t.Fatal(err)
	}
	x := l.ColumnAt(0)
	if !math.IsInf(x[0], -1) || !math.IsNaN(x[1]) || !math.IsNaN(x[2]) {
		t.Error("wrong special values:", x)
	}
}

func TestResolve(t *testing.T) {
	labels := []string{"posterior", "kappa.s:data", "freqs.1", "freqs.2", "freqs.3", "theta"}
	for _, c := range []struct {
		id  string
		dim int
		exp []int
	}{
		{"theta", 1, []int{5}},
		{"kappa.s:data", 1, []int{1}},
		{"freqs.s:data", 3, []int{2, 3, 4}},
		{"freqs", 3, []int{2, 3, 4}},
		{"posterior.x", 1, []int{0}},
	} {
		cols, ok := Resolve(labels, c.id, c.dim)
		if !ok {
			t.Error("not resolved:", c.id)
			continue
		}
		if len(cols) != len(c.exp) {
			t.Error("wrong columns for", c.id, cols)
			continue
		}
		for i := range cols {
			if cols[i] != c.exp[i] {
				t.Error("wrong columns for", c.id, cols)
			}
		}
	}
	if _, ok := Resolve(labels, "missing", 1); ok {
		t.Error("resolved a missing id")
	}
	if _, ok := Resolve(labels, "theta", 2); ok {
		t.Error("resolved beyond the last column")
	}
}

func TestESS(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := make([]float64, 10000)
	for i := range x {
		x[i] = rng.NormFloat64()
	}
	if ess := ESS(x); ess < 8000 || ess > 12000 {
		t.Error("independent sample ESS:", ess)
	}

	// AR(1) with rho=0.9 has ESS of about n(1-rho)/(1+rho)
	y := make([]float64, 10000)
	for i := 1; i < len(y); i++ {
		y[i] = 0.9*y[i-1] + rng.NormFloat64()
	}
	exp := 10000 * 0.1 / 1.9
	if ess := ESS(y); ess < exp/2 || ess > exp*2 {
		t.Errorf("AR(1) ESS %v, expected about %v", ess, exp)
	}

	if ess := ESS([]float64{1, 1, 1, 1}); ess != 4 {
		t.Error("constant trace ESS:", ess)
	}
}

func TestWriter(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "likelihood.log")
	w, err := Create(fn, false, "likelihood")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := w.Log(int64(i*10), -float64(i)-0.5); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Log(60, 1, 2); err == nil {
		t.Error("expected an error for a wrong number of values")
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if err := TruncateAfter(fn, 20); err != nil {
		t.Fatal(err)
	}
	w, err = Create(fn, true, "likelihood")
	if err != nil {
		t.Fatal(err)
	}
	w.Log(30, math.Inf(-1))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	l, err := Open(fn, 0)
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 4 {
		t.Fatal("wrong number of samples:", l.Len())
	}
	x := l.ColumnAt(0)
	if x[2] != -2.5 || !math.IsInf(x[3], -1) {
		t.Error("wrong values:", x)
	}
	data, _ := os.ReadFile(fn)
	if bytes.Count(data, []byte("Sample")) != 1 {
		t.Error("header written twice:", string(data))
	}
}
