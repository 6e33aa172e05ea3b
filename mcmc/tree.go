package mcmc

import (
	"fmt"

	"bitbucket.org/Davydov/gss/tree"
)

// Tree is a tree state node. Only node heights are sampled, the
// topology is fixed.
type Tree struct {
	name string
	*tree.Tree
	heights   []float64
	priorFunc func(*tree.Tree) float64
}

// NewTree creates a tree state node.
func NewTree(name string, t *tree.Tree) *Tree {
	return &Tree{
		name:      name,
		Tree:      t,
		priorFunc: func(*tree.Tree) float64 { return 0 },
	}
}

func (t *Tree) Name() string {
	return t.name
}

// SetPriorFunc sets the tree prior.
func (t *Tree) SetPriorFunc(f func(*tree.Tree) float64) {
	t.priorFunc = f
}

// Prior returns the log tree prior.
func (t *Tree) Prior() float64 {
	return t.priorFunc(t.Tree)
}

// Store saves node heights.
func (t *Tree) Store() {
	nodes := t.Nodes()
	if len(t.heights) != len(nodes) {
		t.heights = make([]float64, len(nodes))
	}
	for i, node := range nodes {
		t.heights[i] = node.Height
	}
}

// Restore restores node heights and branch lengths saved by Store.
func (t *Tree) Restore() {
	for i, node := range t.Nodes() {
		node.Height = t.heights[i]
	}
	t.UpdateLengths()
}

// Load sets the node heights from a newick string of a tree with the
// same topology, as written by String.
func (t *Tree) Load(newick string) error {
	src, err := tree.ParseNewickString(newick)
	if err != nil {
		return err
	}
	if src.NNodes() != t.NNodes() {
		return fmt.Errorf("tree %s: expected %d nodes, got %d", t.name, t.NNodes(), src.NNodes())
	}
	srcNodes := src.Nodes()
	for i, node := range t.Nodes() {
		if node.Name != srcNodes[i].Name {
			return fmt.Errorf("tree %s: node %d name mismatch (%q != %q)", t.name, i, node.Name, srcNodes[i].Name)
		}
		node.Height = srcNodes[i].Height
	}
	t.UpdateLengths()
	return nil
}

// Trees is a list of tree state nodes.
type Trees []*Tree

func (ts Trees) Store() {
	for _, t := range ts {
		t.Store()
	}
}

func (ts Trees) Restore() {
	for _, t := range ts {
		t.Restore()
	}
}

// LogPrior returns the sum of the tree priors.
func (ts Trees) LogPrior() (lp float64) {
	for _, t := range ts {
		lp += t.Prior()
	}
	return
}
