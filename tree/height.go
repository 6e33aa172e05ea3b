package tree

import (
	"fmt"
	"sort"
)

// UpdateHeights computes node heights from branch lengths. The height of
// a node is the maximum root-to-tip distance minus the root-to-node
// distance, so the deepest leaf has zero height.
func (tree *Tree) UpdateHeights() {
	depth := make(map[*Node]float64, tree.NNodes())
	maxDepth := 0.0
	var walk func(*Node, float64)
	walk = func(node *Node, d float64) {
		depth[node] = d
		if d > maxDepth {
			maxDepth = d
		}
		for _, child := range node.childNodes {
			walk(child, d+child.BranchLength)
		}
	}
	walk(tree.Node, 0)
	for node, d := range depth {
		node.Height = maxDepth - d
	}
}

// UpdateLengths recomputes branch lengths from node heights.
func (tree *Tree) UpdateLengths() {
	for _, node := range tree.Nodes() {
		if node.Parent != nil {
			node.BranchLength = node.Parent.Height - node.Height
		}
	}
}

// RootHeight returns the height of the root.
func (tree *Tree) RootHeight() float64 {
	return tree.Node.Height
}

// Heights returns node heights indexed by node id.
func (tree *Tree) Heights() []float64 {
	h := make([]float64, tree.NNodes())
	for _, node := range tree.Nodes() {
		h[node.Id] = node.Height
	}
	return h
}

// SetHeight changes the node height and adjusts the lengths of the
// branches above and below it. The new height has to lie between the
// heights of the children and the height of the parent.
func (tree *Tree) SetHeight(node *Node, h float64) error {
	if node.Parent != nil && h > node.Parent.Height {
		return fmt.Errorf("node %d height %g is above its parent (%g)", node.Id, h, node.Parent.Height)
	}
	for _, child := range node.childNodes {
		if h < child.Height {
			return fmt.Errorf("node %d height %g is below its child (%g)", node.Id, h, child.Height)
		}
	}
	node.Height = h
	if node.Parent != nil {
		node.BranchLength = node.Parent.Height - h
	}
	for _, child := range node.childNodes {
		child.BranchLength = h - child.Height
	}
	return nil
}

// CoalescentTimes returns the heights of the internal nodes in
// increasing order. The last one is the root height.
func (tree *Tree) CoalescentTimes() []float64 {
	times := make([]float64, 0, tree.NNodes()/2+1)
	for node := range tree.NonTerminals() {
		times = append(times, node.Height)
	}
	sort.Float64s(times)
	return times
}

// BranchLengths returns the lengths of all non-root branches.
func (tree *Tree) BranchLengths() []float64 {
	res := make([]float64, 0, tree.NNodes()-1)
	for _, node := range tree.Nodes() {
		if node.Parent != nil {
			res = append(res, node.BranchLength)
		}
	}
	return res
}

// TreeLength returns the sum of all branch lengths.
func (tree *Tree) TreeLength() (l float64) {
	for _, b := range tree.BranchLengths() {
		l += b
	}
	return
}
