// Package ccd implements the conditional clade distribution of a tree
// sample. It is used as a reference distribution for tree topologies,
// optionally with a branch length or node height component.
package ccd

import (
	"errors"
	"fmt"
	"math"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gss/dist"
	"bitbucket.org/Davydov/gss/kde"
	"bitbucket.org/Davydov/gss/tree"
)

var log = logging.MustGetLogger("ccd")

// Floor is the log density of a topology which cannot be scored.
const Floor = -1e8

// BranchLengthMode selects the branch length component.
type BranchLengthMode int

const (
	// None scores only the topology.
	None BranchLengthMode = iota
	// Gamma adds a gamma density for every branch length.
	Gamma
	// Intervals adds a KDE for every coalescent time and the root
	// height.
	Intervals
)

func (m BranchLengthMode) String() string {
	switch m {
	case None:
		return "none"
	case Gamma:
		return "gamma"
	case Intervals:
		return "intervals"
	}
	return fmt.Sprintf("BranchLengthMode(%d)", int(m))
}

// ParseMode converts a mode name into BranchLengthMode.
func ParseMode(s string) (BranchLengthMode, error) {
	switch s {
	case "none", "":
		return None, nil
	case "gamma":
		return Gamma, nil
	case "intervals":
		return Intervals, nil
	}
	return None, fmt.Errorf("Unknown branch length mode: %s", s)
}

// Source is a restartable sequence of trees, e.g. *tree.Sample.
type Source interface {
	Reset() error
	HasNext() bool
	Next() (*tree.Tree, error)
}

type sliceSource struct {
	trees []*tree.Tree
	i     int
}

func (s *sliceSource) Reset() error {
	s.i = 0
	return nil
}

func (s *sliceSource) HasNext() bool {
	return s.i < len(s.trees)
}

func (s *sliceSource) Next() (*tree.Tree, error) {
	t := s.trees[s.i]
	s.i++
	return t, nil
}

// Trees wraps a slice of trees into a Source.
func Trees(trees []*tree.Tree) Source {
	return &sliceSource{trees: trees}
}

// Model is the conditional clade distribution.
type Model struct {
	taxa   *tree.TaxonIndex
	mode   BranchLengthMode
	floor  float64
	nTrees int

	cladeCount  map[string]int
	conditional map[string]map[string]int

	gamma   dist.Gamma
	streams []*kde.KDE
}

// Option modifies model construction.
type Option func(*Model)

// WithFloor sets the log density returned for unscorable topologies.
func WithFloor(f float64) Option {
	return func(m *Model) {
		m.floor = f
	}
}

// New builds the model from a tree sample. The sample is read once, and
// for the branch length modes a second time.
func New(src Source, mode BranchLengthMode, opts ...Option) (*Model, error) {
	m := &Model{
		mode:        mode,
		floor:       Floor,
		cladeCount:  make(map[string]int),
		conditional: make(map[string]map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := src.Reset(); err != nil {
		return nil, err
	}

	var lengths []float64
	var streams [][]float64

	for src.HasNext() {
		t, err := src.Next()
		if err != nil {
			return nil, err
		}
		if m.taxa == nil {
			m.taxa, err = tree.NewTaxonIndex(t)
			if err != nil {
				return nil, err
			}
		}
		if _, err := m.addClades(t.Node); err != nil {
			return nil, fmt.Errorf("tree %d: %w", m.nTrees, err)
		}
		m.nTrees++

		switch mode {
		case Gamma:
			for _, l := range t.BranchLengths() {
				if l > 0 {
					lengths = append(lengths, l)
				}
			}
		case Intervals:
			times := t.CoalescentTimes()
			if streams == nil {
				streams = make([][]float64, len(times)+1)
			}
			for i, h := range times {
				if i < len(streams)-1 {
					streams[i] = append(streams[i], h)
				}
			}
			streams[len(streams)-1] = append(streams[len(streams)-1], t.RootHeight())
		}
	}
	if m.nTrees == 0 {
		return nil, errors.New("empty tree sample")
	}

	switch mode {
	case Gamma:
		g, err := dist.FitGamma(lengths)
		if err != nil {
			return nil, err
		}
		m.gamma = g
		log.Infof("Branch length gamma fit: shape=%g, scale=%g", g.Shape, g.Scale)
	case Intervals:
		m.streams = make([]*kde.KDE, len(streams))
		for i, s := range streams {
			if len(s) == 0 {
				continue
			}
			k, err := kde.New(s)
			if err != nil {
				log.Warningf("Interval %d: %v, interval is not scored", i, err)
				continue
			}
			m.streams[i] = k
		}
	}

	log.Infof("Processed %d trees, %d taxa, %d clades", m.nTrees, m.taxa.Len(), len(m.cladeCount))
	return m, nil
}

// addClades registers the clades below the node and returns the node
// clade.
func (m *Model) addClades(node *tree.Node) (bitset, error) {
	bits := newBitset(m.taxa.Len())
	if node.IsTerminal() {
		i, ok := m.taxa.Index(node.Name)
		if !ok {
			return nil, fmt.Errorf("unknown taxon %q", node.Name)
		}
		bits.set(i)
		return bits, nil
	}
	children := node.ChildNodes()
	if len(children) != 2 {
		return nil, fmt.Errorf("node %d has %d children, only binary trees are supported", node.Id, len(children))
	}
	left, err := m.addClades(children[0])
	if err != nil {
		return nil, err
	}
	right, err := m.addClades(children[1])
	if err != nil {
		return nil, err
	}
	bits.or(left)
	bits.or(right)

	key := bits.key()
	m.cladeCount[key]++
	cond := m.conditional[key]
	if cond == nil {
		cond = make(map[string]int)
		m.conditional[key] = cond
	}
	cond[left.key()]++
	cond[right.key()]++
	return bits, nil
}

// LogDensity returns the log density of the tree.
func (m *Model) LogDensity(t *tree.Tree) float64 {
	lp, _ := m.topology(t.Node)
	switch m.mode {
	case Gamma:
		for _, l := range t.BranchLengths() {
			if l > 0 {
				lp += m.gamma.LogDensity(l)
			}
		}
	case Intervals:
		lp += m.intervals(t)
	}
	return lp
}

// TopologyLogDensity returns the log conditional clade probability of
// the tree topology.
func (m *Model) TopologyLogDensity(t *tree.Tree) float64 {
	lp, _ := m.topology(t.Node)
	return lp
}

func (m *Model) topology(node *tree.Node) (float64, bitset) {
	bits := newBitset(m.taxa.Len())
	if node.IsTerminal() {
		i, ok := m.taxa.Index(node.Name)
		if !ok {
			return m.floor, nil
		}
		bits.set(i)
		return 0, bits
	}
	children := node.ChildNodes()
	if len(children) != 2 {
		return m.floor, nil
	}
	lpl, left := m.topology(children[0])
	lpr, right := m.topology(children[1])
	if left == nil || right == nil {
		return m.floor, nil
	}
	bits.or(left)
	bits.or(right)
	return lpl + lpr + m.credibility(bits, left, right), bits
}

// credibility returns the log probability of the split given the clade.
func (m *Model) credibility(bits, left, right bitset) float64 {
	key := bits.key()
	cladeCount := m.cladeCount[key]
	if cladeCount == 0 {
		return m.floor
	}
	cond, ok := m.conditional[key]
	if !ok {
		return m.floor
	}
	maxCount := cond[left.key()]
	if c := cond[right.key()]; c > maxCount {
		maxCount = c
	}
	if maxCount == 0 {
		return m.floor
	}
	return math.Log(float64(maxCount)) - math.Log(float64(cladeCount))
}

func (m *Model) intervals(t *tree.Tree) (lp float64) {
	term := func(k *kde.KDE, x float64) float64 {
		if k == nil {
			return 0
		}
		l := k.LogDensity(x)
		if math.IsInf(l, 0) || math.IsNaN(l) {
			return m.floor
		}
		return l
	}
	last := len(m.streams) - 1
	for i, h := range t.CoalescentTimes() {
		if i < last && h > 0 {
			lp += term(m.streams[i], h)
		}
	}
	lp += term(m.streams[last], t.RootHeight())
	return
}

// Mode returns the branch length mode.
func (m *Model) Mode() BranchLengthMode {
	return m.mode
}

// NTrees returns the number of trees in the sample.
func (m *Model) NTrees() int {
	return m.nTrees
}

// Taxa returns the taxon index.
func (m *Model) Taxa() *tree.TaxonIndex {
	return m.taxa
}

// BranchGamma returns the fitted branch length distribution in the
// Gamma mode.
func (m *Model) BranchGamma() dist.Gamma {
	return m.gamma
}
