// Package pathsampler runs generalized stepping-stone and path
// sampling: it plans the temperature schedule, sets up a directory
// with a configuration and launch scripts for every step, runs the
// steps and combines their logs into the marginal likelihood estimate.
package pathsampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/op/go-logging"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/Davydov/gss/checkpoint"
	"bitbucket.org/Davydov/gss/marginal"
)

var log = logging.MustGetLogger("pathsampler")

// RunConfigFile stores the run configuration in the root directory.
const RunConfigFile = "run.toml"

// ErrOldLogs is returned when a step directory contains logs of an
// earlier run.
var ErrOldLogs = errors.New("old log file")

// StepError is a failure of a single step.
type StepError struct {
	Step int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepRunner runs a single step which was set up in dir.
type StepRunner interface {
	RunStep(ctx context.Context, step int, dir string, resume bool) error
}

// InProcess runs the step chain in the current process.
type InProcess struct {
	Progress func(done, total int)
}

// RunStep runs the step.
func (r *InProcess) RunStep(ctx context.Context, step int, dir string, resume bool) error {
	// the old logs were checked by the sampler, like --overwrite in run.sh
	_, err := RunStep(ctx, dir, StepOptions{Resume: resume, Overwrite: !resume, Progress: r.Progress})
	return err
}

// Process runs the step launch script with /bin/sh.
type Process struct {
	Shell string
}

// RunStep executes run.sh or resume.sh of the step.
func (r *Process) RunStep(ctx context.Context, step int, dir string, resume bool) error {
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	script := "run.sh"
	if resume {
		script = "resume.sh"
	}
	cmd := exec.CommandContext(ctx, shell, filepath.Join(dir, script))
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	log.Debugf("Step %d output:\n%s", step, out)
	if err != nil {
		return fmt.Errorf("%s failed: %w\n%s", script, err, out)
	}
	return nil
}

// Sampler orchestrates the steps of a run.
type Sampler struct {
	Config   *Config
	Schedule Schedule
	Runner   StepRunner
	// Out receives the instructions printed when the steps are not
	// run.
	Out io.Writer

	rng *rand.Rand
}

// New validates the configuration and plans the schedule.
func New(cfg *Config) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sched, err := Plan(cfg.Sampler.Steps, cfg.Sampler.Alpha, cfg.Sampler.Posterior2Prior)
	if err != nil {
		return nil, err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	seed := cfg.Sampler.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Sampler{
		Config:   cfg,
		Schedule: sched,
		Out:      os.Stdout,
		rng:      rand.New(rand.NewSource(seed)),
	}
	switch cfg.Sampler.Runner {
	case "process":
		s.Runner = &Process{}
	default:
		s.Runner = &InProcess{}
	}
	log.Infof("Run %s: %d steps, alpha=%v, mode=%s", cfg.RunID, len(sched), cfg.Sampler.Alpha, cfg.Sampler.Mode)
	return s, nil
}

// StepDir returns the directory of step i.
func (s *Sampler) StepDir(i int) string {
	return marginal.StepDir(s.Config.Sampler.RootDir, i)
}

func (s *Sampler) statePath(i int) string {
	return filepath.Join(s.StepDir(i), StateFile)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (s *Sampler) binary() string {
	if s.Config.Sampler.Binary != "" {
		return s.Config.Sampler.Binary
	}
	if exe, err := os.Executable(); err == nil {
		return exe
	}
	return "gss"
}

// command substitutes the script template for step i.
func (s *Sampler) command(i int, seed int64) string {
	sc := &s.Config.Sampler
	r := []string{
		"$(dir)", quote(s.StepDir(i)),
		"$(seed)", strconv.FormatInt(seed, 10),
		"$(binary)", s.binary(),
	}
	if len(sc.Hosts) > 0 {
		r = append(r, "$(host)", sc.Hosts[i%len(sc.Hosts)])
	}
	if i < sc.Threads {
		r = append(r, "$(resume/overwrite)", "--overwrite")
	} else {
		r = append(r, "$(resume/overwrite)", "--resume")
	}
	cmd := strings.NewReplacer(r...).Replace(sc.Script)
	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	return cmd
}

func writeScript(path, content string) error {
	return os.WriteFile(path, []byte(content), 0755)
}

// Setup creates the step directories with the step configurations and
// the launch scripts. The steps sharing a worker slot k are chained in
// the root level run<k>.sh.
func (s *Sampler) Setup() error {
	cfg := s.Config
	sc := &cfg.Sampler
	root, err := filepath.Abs(sc.RootDir)
	if err != nil {
		return err
	}
	sc.RootDir = root
	if _, err := os.Stat(root); os.IsNotExist(err) {
		log.Warningf("Created directory %s", root)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}

	ref := &cfg.Reference
	for _, p := range []*string{&ref.Trace, &ref.Trees} {
		if *p != "" {
			if *p, err = filepath.Abs(*p); err != nil {
				return err
			}
		}
	}

	f, err := os.Create(filepath.Join(root, RunConfigFile))
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	slots := make([]strings.Builder, sc.Threads)
	for i, beta := range s.Schedule {
		dir := s.StepDir(i)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		step := &StepConfig{
			RunID:        cfg.RunID,
			Step:         i,
			Beta:         beta,
			Seed:         s.rng.Int63n(1<<31-1) + 1,
			Mode:         sc.Mode,
			ChainLength:  sc.ChainLength,
			LogEvery:     sc.logEvery(),
			StoreEvery:   sc.StoreEvery,
			StoreSeconds: sc.StoreSeconds,
			Reference:    *ref,
			Model:        cfg.Model,
		}
		if i < sc.Threads {
			step.BurnIn = sc.PreBurnin
		}
		if err := WriteStepConfig(dir, step); err != nil {
			return err
		}

		cmd := s.command(i, step.Seed)
		if err := writeScript(filepath.Join(dir, "run.sh"), cmd); err != nil {
			return err
		}
		resume := strings.ReplaceAll(cmd, "--overwrite", "--resume")
		if err := writeScript(filepath.Join(dir, "resume.sh"), resume); err != nil {
			return err
		}

		slot := &slots[i%sc.Threads]
		if i >= sc.Threads {
			fmt.Fprintf(slot, "cp %s %s\n", quote(s.statePath(i-sc.Threads)), quote(dir))
		}
		slot.WriteString(cmd)
		log.Debugf("Step %d: beta=%v, seed=%d", i, beta, step.Seed)
	}
	for k := range slots {
		fn := filepath.Join(root, "run"+strconv.Itoa(k)+".sh")
		if err := writeScript(fn, slots[k].String()); err != nil {
			return err
		}
	}
	log.Infof("Set up %d steps in %s", len(s.Schedule), root)
	return nil
}

// CheckLogFiles deletes the old logs in the directory of step i if
// deleteOldLogs is set and fails with ErrOldLogs otherwise.
func (s *Sampler) CheckLogFiles(i int) error {
	dir := s.StepDir(i)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".log") || strings.HasSuffix(name, ".trees")) {
			continue
		}
		path := filepath.Join(dir, name)
		if !s.Config.Sampler.DeleteOldLogs {
			return fmt.Errorf("%w: found %s and will not overwrite (unless deleteOldLogs flag is set to true)", ErrOldLogs, path)
		}
		log.Warningf("Deleting file %s", path)
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sampler) printInstructions() {
	root := s.Config.Sampler.RootDir
	fmt.Fprintf(s.Out, "batch files can be found in %s\n", root)
	fmt.Fprintln(s.Out, "Run these and then run")
	fmt.Fprintf(s.Out, "%s analyse %s\n", s.binary(), root)
}

// Run sets up and runs all the steps, then analyses the logs. The steps
// run in waves of Threads steps; step i of a later wave starts from the
// final state of step i-Threads. If doNotRun is set, only the setup is
// done and the returned summary is nil.
func (s *Sampler) Run(ctx context.Context) (*marginal.Summary, error) {
	if err := s.Setup(); err != nil {
		return nil, err
	}
	if s.Config.Sampler.DoNotRun {
		s.printInstructions()
		return nil, nil
	}

	start := time.Now()
	threads := s.Config.Sampler.Threads
	n := len(s.Schedule)
	for w := 0; w < n; w += threads {
		end := w + threads
		if end > n {
			end = n
		}
		for i := w; i < end; i++ {
			if i >= threads {
				if err := checkpoint.Copy(s.statePath(i-threads), s.statePath(i)); err != nil {
					return nil, &StepError{Step: i, Err: err}
				}
			}
			if err := s.CheckLogFiles(i); err != nil {
				return nil, &StepError{Step: i, Err: err}
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(threads)
		for i := w; i < end; i++ {
			g.Go(func() error {
				log.Infof("Starting step %d (beta=%v)", i, s.Schedule[i])
				if err := s.Runner.RunStep(gctx, i, s.StepDir(i), i >= threads); err != nil {
					return &StepError{Step: i, Err: err}
				}
				log.Infof("Finished step %d", i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	log.Infof("Total wall time: %v", time.Since(start).Round(time.Second))

	return Analyse(s.Config, s.rng)
}

// ReadRunConfig reads the configuration stored in the root directory by
// Setup.
func ReadRunConfig(root string) (*Config, error) {
	return ReadConfig(filepath.Join(root, RunConfigFile))
}

// Analyse combines the step logs of a run. If the number of steps is
// zero, all the step directories are used. The plot is saved if
// configured, relative paths are relative to the root directory.
func Analyse(cfg *Config, rng *rand.Rand) (*marginal.Summary, error) {
	sc := &cfg.Sampler
	// without the number of steps the betas are read from the step
	// configurations
	var sched Schedule
	if sc.Steps > 0 {
		var err error
		if sched, err = Plan(sc.Steps, sc.Alpha, sc.Posterior2Prior); err != nil {
			return nil, err
		}
	}
	sum, err := marginal.Analyse(sc.RootDir, marginal.Options{
		Steps:            sc.Steps,
		Betas:            sched,
		Spacing:          marginal.SpacingFor(sc.Alpha),
		BurnInPercentage: sc.BurnInPercentage,
		Cross:            cfg.Analysis.Cross,
		Repeats:          cfg.Analysis.Repeats,
		Bootstrap:        cfg.Analysis.Bootstrap,
		Rng:              rng,
	})
	if err != nil {
		return nil, err
	}
	sum.RunID = cfg.RunID
	if fn := cfg.Analysis.Plot; fn != "" {
		if !filepath.IsAbs(fn) {
			fn = filepath.Join(sc.RootDir, fn)
		}
		if err := marginal.Plot(sum, fn); err != nil {
			return nil, err
		}
		log.Infof("Saved path plot to %s", fn)
	}
	return sum, nil
}
