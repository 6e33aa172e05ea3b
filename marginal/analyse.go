package marginal

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"bitbucket.org/Davydov/gss/trace"
)

// StepDir returns the directory of step i.
func StepDir(root string, i int) string {
	return filepath.Join(root, "step"+strconv.Itoa(i))
}

// Options control the analysis of a run directory.
type Options struct {
	// Steps is the number of steps, zero means all the step
	// directories found.
	Steps int
	// Betas are used for the steps without a step configuration.
	Betas            []float64
	Spacing          Spacing
	BurnInPercentage int
	// Column is the trace column, likelihood by default.
	Column string

	Cross     int
	Repeats   int
	Bootstrap int
	Rng       *rand.Rand
}

// StepSummary describes a single step.
type StepSummary struct {
	Step int     `json:"step"`
	Beta float64 `json:"beta"`
	// Mean is the mean logged value.
	Mean float64 `json:"mean"`
	// Contribution is the term of the estimate computed from the step
	// samples.
	Contribution float64 `json:"contribution"`
	ESS          float64 `json:"ess"`
}

// Summary is the analysis result.
type Summary struct {
	RunID string  `json:"runID,omitempty"`
	LogML float64 `json:"logML"`
	// CrossSD is the cross-validation standard deviation.
	CrossSD float64 `json:"crossSD,omitempty"`
	// BootstrapSD is the bootstrap standard deviation.
	BootstrapSD float64       `json:"bootstrapSD,omitempty"`
	Spacing     string        `json:"spacing"`
	Steps       []StepSummary `json:"steps"`
	SumESS      float64       `json:"sumESS"`
}

func countSteps(root string) int {
	n := 0
	for {
		st, err := os.Stat(StepDir(root, n))
		if err != nil || !st.IsDir() {
			return n
		}
		n++
	}
}

// stepBeta reads beta from the step configuration.
func stepBeta(dir string) (float64, bool, error) {
	var sc struct {
		Beta *float64 `toml:"beta"`
	}
	_, err := toml.DecodeFile(filepath.Join(dir, "step.toml"), &sc)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if sc.Beta == nil {
		return 0, false, nil
	}
	return *sc.Beta, true, nil
}

// Analyse reads the step logs from the run directory and combines
// them.
func Analyse(root string, opts Options) (*Summary, error) {
	n := opts.Steps
	if n == 0 {
		n = countSteps(root)
	}
	if n < 2 {
		return nil, fmt.Errorf("found %d steps in %s, at least two are required", n, root)
	}
	column := opts.Column
	if column == "" {
		column = "likelihood"
	}

	betas := make([]float64, n)
	traces := make([][]float64, n)
	for i := 0; i < n; i++ {
		dir := StepDir(root, i)
		beta, ok, err := stepBeta(dir)
		if err != nil {
			return nil, err
		}
		if !ok {
			if i >= len(opts.Betas) {
				return nil, fmt.Errorf("no beta for step %d", i)
			}
			beta = opts.Betas[i]
		}
		betas[i] = beta

		tl, err := trace.Open(filepath.Join(dir, "likelihood.log"), opts.BurnInPercentage)
		if err != nil {
			return nil, err
		}
		col, ok := tl.Column(column)
		if !ok {
			return nil, fmt.Errorf("column %s not found in step %d log", column, i)
		}
		if len(col) == 0 {
			return nil, fmt.Errorf("no samples after burn-in in step %d", i)
		}
		traces[i] = col
		log.Debugf("Step %d: beta=%v, %d samples", i, beta, len(col))
	}

	e, err := Combine(traces, betas, opts.Spacing)
	if err != nil {
		return nil, err
	}
	s := &Summary{
		LogML:   e.LogML,
		Spacing: opts.Spacing.String(),
		Steps:   make([]StepSummary, n),
	}
	for k, i := range e.Order {
		st := StepSummary{
			Step: i,
			Beta: e.Betas[k],
			Mean: e.Means[k],
			ESS:  e.ESS[k],
		}
		if k < len(e.Contributions) {
			st.Contribution = e.Contributions[k]
		}
		s.Steps[i] = st
		s.SumESS += st.ESS
	}

	rng := opts.Rng
	if (opts.Cross > 0 || opts.Bootstrap > 0) && rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Cross > 0 {
		if opts.Cross < 2 {
			return nil, errors.New("cross-validation requires at least two folds")
		}
		if s.CrossSD, err = CrossValidate(traces, betas, opts.Spacing, opts.Cross, opts.Repeats, rng); err != nil {
			return nil, err
		}
	}
	if opts.Bootstrap > 0 {
		if s.BootstrapSD, err = Bootstrap(traces, betas, opts.Spacing, opts.Bootstrap, rng); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func format(v float64) string {
	return fmt.Sprintf("%-12s", strconv.FormatFloat(v, 'f', 4, 64))
}

// Write prints the step table and the estimate.
func (s *Summary) Write(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "Step        theta       likelihood  contribution ESS"); err != nil {
		return err
	}
	for _, st := range s.Steps {
		if _, err := fmt.Fprintf(w, "%-11d %s%s%s%s\n", st.Step,
			format(st.Beta), format(st.Mean), format(st.Contribution), format(st.ESS)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "sum(ESS) = %s\n\n", format(s.SumESS)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "marginal L estimate = %v\n", s.LogML); err != nil {
		return err
	}
	if s.CrossSD > 0 {
		if _, err := fmt.Fprintf(w, "SD: %v\n", s.CrossSD); err != nil {
			return err
		}
	}
	if s.BootstrapSD > 0 {
		if _, err := fmt.Fprintf(w, "bootstrap SD: %v\n", s.BootstrapSD); err != nil {
			return err
		}
	}
	return nil
}
