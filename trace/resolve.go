package trace

import "strings"

// Resolve finds the columns of a state node with dim dimensions. The
// labels are tried in order: the id itself, the id with the last
// ".suffix" removed, that short id with ".1", and the id with ".1".
// Multi-dimensional nodes occupy dim consecutive columns.
func Resolve(labels []string, id string, dim int) ([]int, bool) {
	short := id
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		short = id[:i]
	}
	for _, cand := range []string{id, short, short + ".1", id + ".1"} {
		for i, lab := range labels {
			if lab != cand {
				continue
			}
			if i+dim > len(labels) {
				return nil, false
			}
			res := make([]int, dim)
			for j := range res {
				res[j] = i + j
			}
			return res, true
		}
	}
	return nil, false
}
