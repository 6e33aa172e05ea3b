package mcmc

import (
	"math"
	"math/rand"
	"testing"

	"bitbucket.org/Davydov/gss/tree"
)

func TestScaleHastings(t *testing.T) {
	x := 2.0
	p := NewBasicFloatParameter(&x, "x")
	p.SetMin(0)
	op := NewScale(p, 0.5, 1)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		old := x
		hr := op.Propose(rng)
		if math.Abs(hr+math.Log(x/old)) > 1e-12 {
			t.Fatal("wrong Hastings ratio:", hr, x/old)
		}
		if x/old < 0.5 || x/old > 2 {
			t.Fatal("scale outside of [0.5, 2]:", x/old)
		}
	}
}

func TestRandomWalkBounds(t *testing.T) {
	x := 0.5
	p := NewBasicFloatParameter(&x, "x")
	p.SetMin(0)
	p.SetMax(1)
	op := NewRandomWalk(p, 10, 1)
	rng := rand.New(rand.NewSource(2))
	invalid := 0
	for i := 0; i < 100; i++ {
		p.Store()
		if hr := op.Propose(rng); math.IsInf(hr, -1) {
			invalid++
			if x != 0.5 {
				t.Fatal("invalid proposal changed the value")
			}
		}
		p.Restore()
	}
	if invalid < 80 {
		t.Error("too few out of range proposals:", invalid)
	}
}

func TestTuning(t *testing.T) {
	x := 0.0
	p := NewBasicFloatParameter(&x, "x")
	rw := NewRandomWalk(p, 1, 1)
	for i := 0; i < 10; i++ {
		rw.Optimize(math.Inf(-1))
		rw.Reject()
	}
	if rw.Tuning() >= 1 {
		t.Error("window should shrink after rejections:", rw.Tuning())
	}
	w := rw.Tuning()
	for i := 0; i < 10; i++ {
		rw.Optimize(0)
		rw.Accept()
	}
	if rw.Tuning() <= w {
		t.Error("window should grow after acceptances:", rw.Tuning())
	}

	sc := NewScale(p, 0.5, 1)
	sc.Optimize(math.Inf(-1))
	if sc.Tuning() <= 0.5 || sc.Tuning() >= 1 {
		t.Error("scale factor should move towards 1 after a rejection:", sc.Tuning())
	}
	sc.SetTuning(2)
	if sc.Tuning() >= 1 {
		t.Error("invalid tuning was accepted")
	}
}

func TestSchedule(t *testing.T) {
	x := 0.0
	p := NewBasicFloatParameter(&x, "x")
	a := NewRandomWalk(p, 1, 3)
	b := NewRandomWalk(p, 1, 0)
	c := NewRandomWalk(p, 1, 1)
	s := NewSchedule(a, b, c)
	rng := rand.New(rand.NewSource(3))
	counts := map[Operator]int{}
	n := 40000
	for i := 0; i < n; i++ {
		counts[s.Select(rng)]++
	}
	if counts[b] != 0 {
		t.Error("operator with zero weight was selected")
	}
	if f := float64(counts[a]) / float64(n); math.Abs(f-0.75) > 0.02 {
		t.Error("wrong selection frequency:", f)
	}
}

func TestTreeOperators(t *testing.T) {
	tr, err := tree.ParseNewickString("(((A:1,B:1):1,C:2):1,D:3);")
	if err != nil {
		t.Fatal(err)
	}
	st := NewTree("tree", tr)
	rng := rand.New(rand.NewSource(4))

	ts := NewTreeScale(st, 0.5, 1)
	st.Store()
	root := tr.RootHeight()
	hr := ts.Propose(rng)
	s := tr.RootHeight() / root
	// three internal nodes
	if math.Abs(hr-math.Log(s)) > 1e-12 {
		t.Error("wrong tree scale Hastings ratio:", hr, math.Log(s))
	}
	for _, node := range tr.Nodes() {
		if node.Parent != nil && math.Abs(node.Parent.Height-node.Height-node.BranchLength) > 1e-12 {
			t.Error("branch lengths are inconsistent with heights")
		}
	}
	st.Restore()
	if tr.RootHeight() != root {
		t.Error("restore failed:", tr.RootHeight())
	}

	nh := NewNodeHeight(st, 1)
	for i := 0; i < 100; i++ {
		if hr := nh.Propose(rng); hr != 0 {
			t.Fatal("wrong node height Hastings ratio:", hr)
		}
		for _, node := range tr.Nodes() {
			if node.Parent != nil && node.BranchLength < 0 {
				t.Fatal("negative branch length:", tr)
			}
		}
	}
	if tr.RootHeight() != root {
		t.Error("node height operator changed the root")
	}

	s1 := tr.String()
	tr2, _ := tree.ParseNewickString("(((A:1,B:1):1,C:2):1,D:3);")
	st2 := NewTree("tree", tr2)
	if err := st2.Load(s1); err != nil {
		t.Fatal(err)
	}
	for i, h := range tr.Heights() {
		if math.Abs(tr2.Heights()[i]-h) > 1e-12 {
			t.Error("loaded heights differ:", tr2.Heights(), tr.Heights())
			break
		}
	}
}
