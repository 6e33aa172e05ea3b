package tree

import (
	"fmt"
	"sort"
)

// TaxonIndex maps leaf names to consecutive indices. Names are sorted,
// so trees with the same taxa produce the same index regardless of the
// leaf order.
type TaxonIndex struct {
	names []string
	index map[string]int
}

// NewTaxonIndex creates the index from the tree leaves.
func NewTaxonIndex(t *Tree) (*TaxonIndex, error) {
	names := t.LeafNames()
	sort.Strings(names)
	ti := &TaxonIndex{
		names: names,
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if _, ok := ti.index[name]; ok {
			return nil, fmt.Errorf("duplicate taxon name: %q", name)
		}
		ti.index[name] = i
	}
	return ti, nil
}

// Index returns the index of the taxon.
func (ti *TaxonIndex) Index(name string) (int, bool) {
	i, ok := ti.index[name]
	return i, ok
}

func (ti *TaxonIndex) Names() []string {
	return ti.names
}

func (ti *TaxonIndex) Len() int {
	return len(ti.names)
}
