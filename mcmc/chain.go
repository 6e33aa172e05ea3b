// Package mcmc implements a Metropolis-Hastings sampler of power
// posteriors used by the annealing steps of path sampling and
// generalized stepping-stone sampling.
package mcmc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gss/checkpoint"
)

var log = logging.MustGetLogger("mcmc")

// DefaultInitAttempts is the number of re-initializations of a state
// with non-finite density.
const DefaultInitAttempts = 10

// State of a chain.
type State int

const (
	Initializing State = iota
	BurningIn
	Sampling
	Finished
)

func (s State) String() string {
	return [...]string{"initializing", "burning in", "sampling", "finished"}[s]
}

// Logger receives logged samples, e.g. *trace.Writer.
type Logger interface {
	Log(sample int64, values ...float64) error
}

// InitError is returned when no state with finite density was found.
type InitError struct {
	Attempts   int
	LogDensity float64
	Terms      Terms
	// Breakdown lists the priors of individual parameters and the
	// reference terms.
	Breakdown map[string]float64
}

func (e *InitError) Error() string {
	keys := make([]string, 0, len(e.Breakdown))
	for k := range e.Breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := fmt.Sprintf("could not find a proper state to initialise after %d attempts: logP=%v (prior=%v, likelihood=%v, reference=%v)",
		e.Attempts, e.LogDensity, e.Terms.Prior, e.Terms.Likelihood, e.Terms.Reference)
	for _, k := range keys {
		s += fmt.Sprintf("; %s=%v", k, e.Breakdown[k])
	}
	return s
}

// EvalError is returned when the model evaluation fails.
type EvalError struct {
	Iter int
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("iteration %d: %v", e.Iter, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// Settings are the chain settings.
type Settings struct {
	Step int
	Beta float64
	Mode Mode
	// ChainLength is the number of sampling iterations.
	ChainLength int
	// BurnIn is the number of iterations before sampling starts.
	BurnIn int
	// LogEvery is the sampling frequency.
	LogEvery int
	// StoreEvery is the checkpointing frequency, zero disables
	// periodic checkpoints.
	StoreEvery   int
	InitAttempts int
	RunID        string

	Rng *rand.Rand
	// Output receives the logged samples.
	Output Logger
	// Checkpoint saves the state, may be nil.
	Checkpoint *checkpoint.IO
	// Restore is a checkpoint to start from.
	Restore *checkpoint.Data
	// Progress is called after every iteration.
	Progress func(done, total int)
}

// OperatorRate is the operator acceptance summary.
type OperatorRate struct {
	Name     string
	Tuning   float64
	Accepted int
	Rejected int
}

// Rate returns the acceptance rate.
func (r OperatorRate) Rate() float64 {
	return float64(r.Accepted) / float64(r.Accepted+r.Rejected)
}

// Result summarizes a finished chain.
type Result struct {
	StartLogDensity float64
	EndLogDensity   float64
	Accepted        int
	Rejected        int
	Samples         int
	OperatorRates   []OperatorRate
	Duration        time.Duration
}

// WriteOperatorRates prints the operator acceptance table.
func (r *Result) WriteOperatorRates(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%-30s\t%10s\t%8s\t%8s\t%8s\n", "Operator", "Tuning", "#accept", "#reject", "Pr(acc)"); err != nil {
		return err
	}
	for _, r := range r.OperatorRates {
		if _, err := fmt.Fprintf(w, "%-30s\t%10.5f\t%8d\t%8d\t%8.4f\n", r.Name, r.Tuning, r.Accepted, r.Rejected, r.Rate()); err != nil {
			return err
		}
	}
	return nil
}

// Chain is an annealed MCMC chain at a fixed power beta.
type Chain struct {
	Settings
	model     Model
	ref       Reference
	params    FloatParameters
	trees     Trees
	schedule  *Schedule
	state     State
	terms     Terms
	logP      float64
	startIter int
}

// NewChain creates a chain. The reference is required for the
// stepping-stone mode.
func NewChain(model Model, ref Reference, s Settings) (*Chain, error) {
	if s.Mode == SteppingStone && ref == nil {
		return nil, errors.New("stepping-stone sampling requires a reference distribution")
	}
	if s.Beta < 0 || s.Beta > 1 {
		return nil, fmt.Errorf("beta=%v is outside of [0, 1]", s.Beta)
	}
	if s.ChainLength < 0 || s.BurnIn < 0 {
		return nil, errors.New("chain length and burn-in should be non-negative")
	}
	if s.LogEvery <= 0 {
		s.LogEvery = 1
	}
	if s.InitAttempts <= 0 {
		s.InitAttempts = DefaultInitAttempts
	}
	if s.Rng == nil {
		s.Rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	ops := model.Operators()
	if len(ops) == 0 {
		return nil, errors.New("model has no operators")
	}
	return &Chain{
		Settings: s,
		model:    model,
		ref:      ref,
		params:   model.Parameters(),
		trees:    model.Trees(),
		schedule: NewSchedule(ops...),
	}, nil
}

// State returns the current chain state.
func (c *Chain) State() State {
	return c.state
}

// evaluate computes the density terms of the current state.
func (c *Chain) evaluate() (Terms, float64, error) {
	var t Terms
	var err error
	t.Prior = c.model.LogPrior()
	t.Likelihood, err = c.model.LogLikelihood()
	if err != nil {
		return t, math.NaN(), err
	}
	if c.Mode == SteppingStone {
		t.Reference = c.ref.LogP()
	}
	return t, c.Mode.Target(t, c.Beta), nil
}

func (c *Chain) breakdown() map[string]float64 {
	b := make(map[string]float64)
	for _, par := range c.params {
		b["prior:"+par.Name()] = par.Prior()
	}
	for _, t := range c.trees {
		b["prior:"+t.Name()] = t.Prior()
	}
	if bd, ok := c.ref.(Breakdowner); ok && c.Mode == SteppingStone {
		for k, v := range bd.Breakdown() {
			b["reference:"+k] = v
		}
	}
	return b
}

// restore applies a checkpoint and decides where to start.
func (c *Chain) restore() error {
	d := c.Restore
	c.startIter = -c.BurnIn
	if d == nil {
		return nil
	}
	for name, v := range d.Parameters {
		par := c.params.ByName(name)
		if par == nil || len(v) != 1 {
			return fmt.Errorf("checkpoint parameter %s does not match the model", name)
		}
		par.Set(v[0])
	}
	for _, t := range c.trees {
		if s, ok := d.Trees[t.Name()]; ok {
			if err := t.Load(s); err != nil {
				return err
			}
		}
	}
	for _, op := range c.schedule.Operators() {
		if v, ok := d.Operators[op.Name()]; ok {
			op.SetTuning(v)
		}
	}
	switch {
	case d.Step == c.Step && !d.Final:
		c.startIter = d.Iter + 1
		log.Infof("Resuming step %d from iteration %d", c.Step, c.startIter)
	case d.Step == c.Step && d.Final:
		c.startIter = c.ChainLength + 1
		log.Infof("Step %d is already finished", c.Step)
	default:
		c.startIter = 0
		log.Infof("Starting step %d from the final state of step %d", c.Step, d.Step)
	}
	return nil
}

// initialize makes sure the starting state has a finite density.
func (c *Chain) initialize() error {
	var err error
	c.terms, c.logP, err = c.evaluate()
	if err != nil {
		return &EvalError{Iter: c.startIter, Err: err}
	}
	for attempt := 1; !finite(c.logP) || !c.params.InRange(); attempt++ {
		if attempt > c.InitAttempts {
			return &InitError{
				Attempts:   c.InitAttempts,
				LogDensity: c.logP,
				Terms:      c.terms,
				Breakdown:  c.breakdown(),
			}
		}
		log.Warningf("Initial state has logP=%v (prior=%v, likelihood=%v, reference=%v), reinitializing (attempt %d)",
			c.logP, c.terms.Prior, c.terms.Likelihood, c.terms.Reference, attempt)
		if err := c.model.Initialize(c.Rng); err != nil {
			return err
		}
		c.terms, c.logP, err = c.evaluate()
		if err != nil {
			return &EvalError{Iter: c.startIter, Err: err}
		}
	}
	return nil
}

func (c *Chain) checkpointData(iter int, final bool) *checkpoint.Data {
	d := &checkpoint.Data{
		RunID:      c.RunID,
		Step:       c.Step,
		Beta:       c.Beta,
		Iter:       iter,
		Final:      final,
		Parameters: make(map[string][]float64, len(c.params)),
		Trees:      make(map[string]string, len(c.trees)),
		Operators:  make(map[string]float64),
		LogDensity: c.logP,
		Terms:      c.terms.Map(),
	}
	for _, par := range c.params {
		d.Parameters[par.Name()] = []float64{par.Get()}
	}
	for _, t := range c.trees {
		d.Trees[t.Name()] = t.String()
	}
	for _, op := range c.schedule.Operators() {
		if v := op.Tuning(); !math.IsNaN(v) {
			d.Operators[op.Name()] = v
		}
	}
	return d
}

func (c *Chain) save(iter int, final bool) error {
	if c.Checkpoint == nil {
		return nil
	}
	return c.Checkpoint.Save(c.checkpointData(iter, final))
}

func (c *Chain) store() {
	c.params.Store()
	c.trees.Store()
}

func (c *Chain) restoreState() {
	c.params.Restore()
	c.trees.Restore()
}

func (c *Chain) result(start time.Time, startLogP float64) *Result {
	res := &Result{
		StartLogDensity: startLogP,
		EndLogDensity:   c.logP,
		Duration:        time.Since(start),
	}
	for _, op := range c.schedule.Operators() {
		res.OperatorRates = append(res.OperatorRates, OperatorRate{
			Name:     op.Name(),
			Tuning:   op.Tuning(),
			Accepted: op.Accepted(),
			Rejected: op.Rejected(),
		})
	}
	return res
}

// Run runs the chain. On cancellation the state is saved and the
// context error is returned.
func (c *Chain) Run(ctx context.Context) (*Result, error) {
	startTime := time.Now()
	c.state = Initializing
	if err := c.restore(); err != nil {
		return nil, err
	}
	if err := c.initialize(); err != nil {
		return nil, err
	}
	startLogP := c.logP
	if len(c.params) > 0 {
		log.Debugf("Step %d parameters: %s", c.Step, c.params.NamesString())
	}
	log.Infof("Step %d (beta=%v): start logP=%v (prior=%v, likelihood=%v, reference=%v)",
		c.Step, c.Beta, c.logP, c.terms.Prior, c.terms.Likelihood, c.terms.Reference)

	var accepted, rejected, samples int
	total := c.ChainLength - c.startIter + 1
	report := total / 10
	if report < 1 {
		report = 1
	}

	for i := c.startIter; i <= c.ChainLength; i++ {
		if i < 0 {
			c.state = BurningIn
		} else {
			c.state = Sampling
		}
		if c.StoreEvery > 0 && i > 0 && i%c.StoreEvery == 0 && c.Checkpoint != nil && c.Checkpoint.Old() {
			if err := c.save(i-1, false); err != nil {
				return nil, err
			}
		}
		select {
		case <-ctx.Done():
			log.Warningf("Step %d interrupted at iteration %d", c.Step, i)
			if err := c.save(i-1, false); err != nil {
				log.Error("Error saving checkpoint:", err)
			}
			return nil, ctx.Err()
		default:
		}

		op := c.schedule.Select(c.Rng)
		c.store()
		logHR := op.Propose(c.Rng)

		ok := false
		if !math.IsInf(logHR, -1) {
			terms, logP, err := c.evaluate()
			if err != nil {
				return nil, &EvalError{Iter: i, Err: err}
			}
			logAlpha := logP - c.logP + logHR
			if logAlpha >= 0 || c.Rng.Float64() < math.Exp(logAlpha) {
				ok = true
				c.terms, c.logP = terms, logP
			}
			if i >= 0 {
				op.Optimize(logAlpha)
			}
		}
		if ok {
			accepted++
			if i >= 0 {
				op.Accept()
			}
		} else {
			c.restoreState()
			rejected++
			if i >= 0 {
				op.Reject()
			}
		}

		if i >= 0 && i%c.LogEvery == 0 {
			if c.Output != nil {
				if err := c.Output.Log(int64(i), c.Mode.Logged(c.terms)); err != nil {
					return nil, err
				}
			}
			samples++
		}
		done := i - c.startIter + 1
		if c.Progress != nil {
			c.Progress(done, total)
		}
		if done%report == 0 {
			log.Debugf("Step %d, iteration %d: logP=%v, accepted %d/%d, %s", c.Step, i, c.logP, accepted, accepted+rejected, c.params.ValuesString())
		}
	}

	c.state = Finished
	if err := c.save(c.ChainLength, true); err != nil {
		return nil, err
	}
	res := c.result(startTime, startLogP)
	res.Accepted, res.Rejected, res.Samples = accepted, rejected, samples
	log.Infof("Step %d finished: end logP=%v (%v)", c.Step, c.logP, res.Duration)
	return res, nil
}
