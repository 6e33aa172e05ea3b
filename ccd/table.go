package ccd

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Split is a child clade observed below a clade.
type Split struct {
	Taxa  []string
	Count int
	// Probability is Count divided by the parent clade count.
	Probability float64
}

// Clade is a clade observed in the sample.
type Clade struct {
	Taxa  []string
	Count int
	// Probability is the fraction of trees containing the clade.
	Probability float64
	Splits      []Split
}

func (m *Model) names(b bitset) []string {
	all := m.taxa.Names()
	members := b.members()
	res := make([]string, len(members))
	for i, j := range members {
		res[i] = all[j]
	}
	return res
}

// Clades returns all the clades sorted by decreasing count and then by
// size.
func (m *Model) Clades() []Clade {
	res := make([]Clade, 0, len(m.cladeCount))
	for key, count := range m.cladeCount {
		c := Clade{
			Taxa:        m.names(fromKey(key)),
			Count:       count,
			Probability: float64(count) / float64(m.nTrees),
		}
		for child, n := range m.conditional[key] {
			c.Splits = append(c.Splits, Split{
				Taxa:        m.names(fromKey(child)),
				Count:       n,
				Probability: float64(n) / float64(count),
			})
		}
		sort.Slice(c.Splits, func(i, j int) bool {
			return less(c.Splits[i].Count, c.Splits[j].Count, c.Splits[i].Taxa, c.Splits[j].Taxa)
		})
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool {
		return less(res[i].Count, res[j].Count, res[i].Taxa, res[j].Taxa)
	})
	return res
}

func less(ci, cj int, ti, tj []string) bool {
	if ci != cj {
		return ci > cj
	}
	if len(ti) != len(tj) {
		return len(ti) > len(tj)
	}
	return strings.Join(ti, ",") < strings.Join(tj, ",")
}

// WriteTable prints clades with their conditional split probabilities.
func (m *Model) WriteTable(w io.Writer) error {
	for _, c := range m.Clades() {
		if _, err := fmt.Fprintf(w, "{%s}\t%d\t%0.4f\n", strings.Join(c.Taxa, ","), c.Count, c.Probability); err != nil {
			return err
		}
		for _, s := range c.Splits {
			if _, err := fmt.Fprintf(w, "\t{%s}\t%d\t%0.4f\n", strings.Join(s.Taxa, ","), s.Count, s.Probability); err != nil {
				return err
			}
		}
	}
	return nil
}
