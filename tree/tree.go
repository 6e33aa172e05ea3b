// Package tree implements rooted trees with branch lengths and node
// heights.
package tree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("tree")

type Tree struct {
	*Node
	nNodes    int
	nodes     []*Node
	nodeOrder []*Node
}

func (tree *Tree) ClearCache() {
	tree.nNodes = 0
	tree.nodes = nil
	tree.nodeOrder = nil
}

func (tree *Tree) NNodes() int {
	if tree.nNodes == 0 {
		tree.nNodes = tree.NSubNodes()
	}
	return tree.nNodes
}

// Nodes returns all the nodes indexed by node id.
func (tree *Tree) Nodes() []*Node {
	if tree.nodes == nil {
		tree.nodes = make([]*Node, tree.NNodes())
		for node := range tree.Walker(nil) {
			tree.nodes[node.Id] = node
		}
	}
	return tree.nodes
}

func (tree *Tree) Terminals() <-chan *Node {
	return tree.Walker(func(n *Node) bool {
		return n.IsTerminal()
	})
}

func (tree *Tree) NonTerminals() <-chan *Node {
	return tree.Walker(func(node *Node) bool {
		return !node.IsTerminal()
	})
}

func (tree *Tree) NLeaves() (i int) {
	for range tree.Terminals() {
		i++
	}
	return
}

// LeafNames returns the leaf names in walk order.
func (tree *Tree) LeafNames() []string {
	names := make([]string, 0, tree.NNodes())
	for node := range tree.Terminals() {
		names = append(names, node.Name)
	}
	return names
}

func (tree *Tree) Walker(filter func(*Node) bool) <-chan *Node {
	ch := make(chan *Node, tree.NNodes())
	tree.Walk(ch, filter)
	close(ch)
	return ch
}

// Copy creates independent copy of the tree.
func (tree *Tree) Copy() (newTree *Tree) {
	nNodes := tree.NNodes()
	newTree = &Tree{
		nNodes: nNodes,
		nodes:  make([]*Node, nNodes),
	}

	// Create node list.
	for i, node := range tree.Nodes() {
		if i != node.Id {
			panic("node id mismatch")
		}
		newTree.nodes[i] = node.Copy()
	}

	// Rewire node/parent connections.
	for i, node := range tree.Nodes() {
		newNode := newTree.nodes[i]
		for _, child := range node.childNodes {
			newNode.AddChild(newTree.nodes[child.Id])
		}
	}

	if tree.nodeOrder != nil {
		newTree.nodeOrder = make([]*Node, len(tree.nodeOrder))
		for i, node := range tree.nodeOrder {
			newTree.nodeOrder[i] = newTree.nodes[node.Id]
		}
	}

	newTree.Node = newTree.nodes[tree.Node.Id]

	return
}

// NodeOrder returns the internal nodes so that every node comes after
// all of its children. The root is the last one.
func (tree *Tree) NodeOrder() []*Node {
	if tree.nodeOrder == nil {
		tree.nodeOrder = make([]*Node, 0, tree.NNodes())
		computed := make(map[*Node]bool, tree.NNodes())
		awaiting := make(chan *Node, tree.NNodes()*2)
		for node := range tree.Terminals() {
			computed[node] = true
			awaiting <- node.Parent
		}

		for node := range awaiting {
			if node == nil {
				break
			}
			if computed[node] {
				continue
			}
			allComputed := true
			for _, childNode := range node.ChildNodes() {
				if !computed[childNode] {
					allComputed = false
					break
				}
			}
			if !allComputed {
				awaiting <- node
			} else {
				tree.nodeOrder = append(tree.nodeOrder, node)
				computed[node] = true
				awaiting <- node.Parent
			}
		}
	}
	return tree.nodeOrder
}

type Node struct {
	Name         string
	BranchLength float64
	// Height is the distance from the present, leaves of an
	// ultrametric tree have zero height.
	Height     float64
	Parent     *Node
	childNodes []*Node
	Id         int
	LeafId     int
}

func NewNode(parent *Node, nodeId int) (node *Node) {
	node = &Node{Parent: parent, Id: nodeId}
	return
}

// Copy creates copy of node with empty parent and children.
func (node *Node) Copy() *Node {
	return &Node{
		Name:         node.Name,
		BranchLength: node.BranchLength,
		Height:       node.Height,
		childNodes:   make([]*Node, 0, len(node.childNodes)),
		Id:           node.Id,
		LeafId:       node.LeafId,
	}
}

func (node *Node) AddChild(subNode *Node) {
	subNode.Parent = node
	node.childNodes = append(node.childNodes, subNode)
}

func formatLength(l float64) string {
	return strconv.FormatFloat(l, 'g', -1, 64)
}

// String returns the newick representation of the subtree. Branch
// lengths are written with full precision, so that parsing the string
// restores the same tree.
func (node *Node) String() string {
	var b strings.Builder
	node.writeNewick(&b)
	if node.IsRoot() {
		b.WriteByte(';')
	}
	return b.String()
}

func (node *Node) writeNewick(b *strings.Builder) {
	if !node.IsTerminal() {
		b.WriteByte('(')
		for i, child := range node.childNodes {
			if i > 0 {
				b.WriteByte(',')
			}
			child.writeNewick(b)
		}
		b.WriteByte(')')
	}
	b.WriteString(node.Name)
	if !node.IsRoot() {
		b.WriteByte(':')
		b.WriteString(formatLength(node.BranchLength))
	}
}

func (node *Node) LongString() (s string) {
	s = "<"
	if node.Parent == nil {
		s += "root, "
	}
	if node.Name != "" {
		s += "name=" + node.Name + ", "
	}
	s += fmt.Sprintf("Id=%v, BranchLength=%v, Height=%v", node.Id, node.BranchLength, node.Height)
	if node.IsTerminal() {
		s += fmt.Sprintf(", TipId=%v", node.LeafId)
	}
	s += ">"
	return
}

func (node *Node) ChildNodes() []*Node {
	return node.childNodes
}

func (node *Node) Walk(ch chan *Node, filter func(*Node) bool) {
	if filter == nil || filter(node) {
		ch <- node
	}
	for _, node := range node.childNodes {
		node.Walk(ch, filter)
	}
}

func (node *Node) NSubNodes() (size int) {
	for _, node := range node.childNodes {
		size += node.NSubNodes()
	}
	return size + 1
}

func (node *Node) IsRoot() bool {
	return node.Parent == nil
}

func (node *Node) IsTerminal() bool {
	return len(node.childNodes) == 0
}
