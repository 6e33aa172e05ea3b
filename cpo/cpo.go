// Package cpo computes conditional predictive ordinates and the log
// pseudo marginal likelihood (LPML) from per pattern log-likelihoods
// logged for every sampled tree.
package cpo

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"bitbucket.org/Davydov/gss/dist"
	"bitbucket.org/Davydov/gss/input"
	"bitbucket.org/Davydov/gss/trace"
)

var log = logging.MustGetLogger("cpo")

// WeightsPrefix starts the first line of a CPO log.
const WeightsPrefix = "#weights"

// Table holds the log-likelihood of every pattern (rows) for every
// sampled tree (columns).
type Table struct {
	LogP    *mat64.Dense
	Weights []int
	minLogP []float64
}

// NewTable creates a table and precomputes the per pattern minima.
func NewTable(logP *mat64.Dense, weights []int) (*Table, error) {
	r, c := logP.Dims()
	if r != len(weights) {
		return nil, fmt.Errorf("%d weights for %d patterns", len(weights), r)
	}
	if c == 0 {
		return nil, errors.New("no trees in the table")
	}
	t := &Table{LogP: logP, Weights: weights, minLogP: make([]float64, r)}
	for i := range t.minLogP {
		t.minLogP[i] = floats.Min(logP.RawRowView(i))
	}
	return t, nil
}

// Patterns returns the number of patterns.
func (t *Table) Patterns() int {
	r, _ := t.LogP.Dims()
	return r
}

// Trees returns the number of trees.
func (t *Table) Trees() int {
	_, c := t.LogP.Dims()
	return c
}

// Sites returns the sum of the pattern weights.
func (t *Table) Sites() int {
	n := 0
	for _, w := range t.Weights {
		n += w
	}
	return n
}

// Open reads a table from a file.
func Open(path string, burninPct int) (*Table, error) {
	f, err := input.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadTable(f, burninPct)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadTable reads a CPO log: a "#weights w1 w2 ..." line followed by a
// trace log with a column per pattern and a row per tree.
func ReadTable(r io.Reader, burninPct int) (*Table, error) {
	l, err := trace.Read(r, burninPct)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(l.Comment())
	if len(fields) == 0 || fields[0] != WeightsPrefix {
		return nil, errors.New("pattern weights line not found")
	}
	patterns := len(l.Labels())
	if len(fields) != patterns+1 {
		return nil, errors.New("weights in file are not equal to columns in file")
	}
	weights := make([]int, patterns)
	for i, f := range fields[1:] {
		if weights[i], err = strconv.Atoi(f); err != nil {
			return nil, fmt.Errorf("pattern weight %d: %w", i, err)
		}
	}
	trees := l.Len()
	if trees == 0 {
		return nil, errors.New("no trees after burn-in")
	}
	m := mat64.NewDense(patterns, trees, nil)
	for i := 0; i < patterns; i++ {
		m.SetRow(i, l.ColumnAt(i))
	}
	log.Debugf("Read %d patterns for %d trees", patterns, trees)
	return NewTable(m, weights)
}

// LPML computes the log pseudo marginal likelihood using the trees
// given by order (indices may repeat).
func (t *Table) LPML(order []int) float64 {
	n := float64(len(order))
	lpml := 0.0
	for i, w := range t.Weights {
		lo := t.minLogP[i]
		p := t.LogP.RawRowView(i)
		sum := 0.0
		for _, k := range order {
			sum += math.Exp(lo - p[k])
		}
		cpo := math.Log(n) + lo - math.Log(sum)
		lpml += cpo * float64(w)
	}
	return lpml
}

// CPO returns the log conditional predictive ordinate of every pattern
// using all the trees.
func (t *Table) CPO() []float64 {
	trees := t.Trees()
	res := make([]float64, t.Patterns())
	neg := make([]float64, trees)
	for i := range res {
		for k, v := range t.LogP.RawRowView(i) {
			neg[k] = -v
		}
		res[i] = math.Log(float64(trees)) - dist.LogSumExp(neg)
	}
	return res
}

// All returns the identity order.
func (t *Table) All() []int {
	order := make([]int, t.Trees())
	for i := range order {
		order[i] = i
	}
	return order
}

// Bootstrap computes LPML for replicates resamples of the trees and
// returns the mean and the standard deviation.
func (t *Table) Bootstrap(replicates int, rng *rand.Rand, progress func(done, total int)) (mean, sd float64, err error) {
	if replicates < 2 {
		return 0, 0, errors.New("bootstrap requires at least two replicates")
	}
	order := make([]int, t.Trees())
	lpml := make([]float64, replicates)
	for r := range lpml {
		dist.SampleIndices(rng, len(order), order)
		lpml[r] = t.LPML(order)
		if progress != nil {
			progress(r+1, replicates)
		}
	}
	mean, variance := stat.MeanVariance(lpml, nil)
	return mean, math.Sqrt(variance), nil
}
