// Package trace reads and writes tab-separated trace logs.
//
// A trace log has optional comment lines starting with '#', a header
// line with column labels and one line per logged sample. The first
// column is the sample number.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/stat"

	"bitbucket.org/Davydov/gss/input"
)

var log = logging.MustGetLogger("trace")

// Log is a trace log with burn-in removed.
type Log struct {
	comment string
	labels  []string
	samples []int64
	columns [][]float64
	total   int
	burnin  int
}

// Open reads a trace log from a file; .gz files are decompressed.
func Open(path string, burninPct int) (*Log, error) {
	f, err := input.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	l, err := Read(f, burninPct)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Read reads a trace log and removes the first burninPct percent of the
// samples.
func Read(r io.Reader, burninPct int) (*Log, error) {
	if burninPct < 0 || burninPct >= 100 {
		return nil, fmt.Errorf("burn-in percentage %d is outside of [0, 100)", burninPct)
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	l := &Log{}
	var rows [][]float64
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if l.comment == "" {
				l.comment = line
			}
			continue
		}
		fields := strings.Split(line, "\t")
		if l.labels == nil {
			l.labels = fields[1:]
			continue
		}
		if len(fields) != len(l.labels)+1 {
			return nil, fmt.Errorf("line %d: expected %d columns, got %d", lineNo, len(l.labels)+1, len(fields))
		}
		sample, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		row := make([]float64, len(l.labels))
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				v = math.NaN()
			}
			row[i] = v
		}
		l.samples = append(l.samples, sample)
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if l.labels == nil {
		return nil, errors.New("no header found")
	}

	l.total = len(rows)
	l.burnin = l.total * burninPct / 100
	rows = rows[l.burnin:]
	l.samples = l.samples[l.burnin:]

	l.columns = make([][]float64, len(l.labels))
	for i := range l.columns {
		col := make([]float64, len(rows))
		for j, row := range rows {
			col[j] = row[i]
		}
		l.columns[i] = col
	}
	log.Debugf("Read %d samples, %d burn-in, %d columns", l.total, l.burnin, len(l.labels))
	return l, nil
}

// Comment returns the first comment line.
func (l *Log) Comment() string {
	return l.comment
}

// Labels returns column labels without the sample column.
func (l *Log) Labels() []string {
	return l.labels
}

// Len returns the number of samples after the burn-in.
func (l *Log) Len() int {
	return len(l.samples)
}

// Burnin returns the number of removed samples.
func (l *Log) Burnin() int {
	return l.burnin
}

// Samples returns the sample numbers.
func (l *Log) Samples() []int64 {
	return l.samples
}

// ColumnAt returns the i-th column (not counting the sample column).
func (l *Log) ColumnAt(i int) []float64 {
	return l.columns[i]
}

// Column returns the column with the label.
func (l *Log) Column(label string) ([]float64, bool) {
	for i, lab := range l.labels {
		if lab == label {
			return l.columns[i], true
		}
	}
	return nil, false
}

// Mean returns the mean of the column.
func (l *Log) Mean(label string) (float64, bool) {
	col, ok := l.Column(label)
	if !ok || len(col) == 0 {
		return math.NaN(), false
	}
	return stat.Mean(col, nil), true
}

// ESS returns the effective sample size of the column.
func (l *Log) ESS(label string) (float64, bool) {
	col, ok := l.Column(label)
	if !ok {
		return math.NaN(), false
	}
	return ESS(col), true
}
