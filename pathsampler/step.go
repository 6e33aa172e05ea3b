package pathsampler

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"bitbucket.org/Davydov/gss/ccd"
	"bitbucket.org/Davydov/gss/checkpoint"
	"bitbucket.org/Davydov/gss/mcmc"
	"bitbucket.org/Davydov/gss/model"
	"bitbucket.org/Davydov/gss/refdist"
	"bitbucket.org/Davydov/gss/trace"
	"bitbucket.org/Davydov/gss/tree"
)

const (
	// StateFile is the step checkpoint.
	StateFile = "step.state"
	// LogFile is the trace of the logged values.
	LogFile = "likelihood.log"
)

// StepOptions modify a single step run.
type StepOptions struct {
	// Resume continues from the checkpoint in the step directory,
	// otherwise the checkpoint is removed.
	Resume bool
	// Overwrite allows to replace the log of an earlier run. Without
	// Resume or Overwrite an existing log is an ErrOldLogs error.
	Overwrite bool
	// Seed overrides the configured seed if non-zero.
	Seed     int64
	Progress func(done, total int)
}

// BuildReference reads the posterior sample and builds the reference
// distribution for the model.
func BuildReference(m mcmc.Model, rc *ReferenceConfig) (*refdist.Compound, error) {
	tl, err := trace.Open(rc.Trace, rc.Burnin)
	if err != nil {
		return nil, err
	}
	opts := refdist.Options{GridSize: rc.GridSize}
	if opts.Scalar, err = scalarKind(rc.Scalar); err != nil {
		return nil, err
	}
	if opts.BranchLengths, err = ccd.ParseMode(rc.BranchLengths); err != nil {
		return nil, err
	}
	if rc.Trees != "" {
		s, err := tree.OpenSample(rc.Trees, rc.Burnin)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		opts.Trees = s
	}
	return refdist.Build(m, tl, opts)
}

// RunStep runs the annealed chain of the step in dir, as configured by
// its step.toml. The logged values are written to likelihood.log.
func RunStep(ctx context.Context, dir string, opts StepOptions) (*mcmc.Result, error) {
	sc, err := ReadStepConfig(dir)
	if err != nil {
		return nil, err
	}
	logPath := filepath.Join(dir, LogFile)
	if !opts.Resume && !opts.Overwrite {
		if _, err := os.Stat(logPath); err == nil {
			return nil, fmt.Errorf("%w: found %s and will not overwrite (unless overwrite is requested)", ErrOldLogs, logPath)
		}
	}
	m, err := model.New(sc.Model)
	if err != nil {
		return nil, err
	}
	mode, err := mcmc.ParseMode(sc.Mode)
	if err != nil {
		return nil, err
	}
	var ref mcmc.Reference
	if mode == mcmc.SteppingStone {
		c, err := BuildReference(m, &sc.Reference)
		if err != nil {
			return nil, err
		}
		ref = c
	}

	statePath := filepath.Join(dir, StateFile)
	if !opts.Resume {
		if err := os.Remove(statePath); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	db, err := checkpoint.Open(statePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	cio := checkpoint.NewIO(db, checkpoint.STATE, sc.StoreSeconds)

	var restore *checkpoint.Data
	if opts.Resume {
		if restore, err = cio.Load(); err != nil {
			return nil, err
		}
		if restore == nil {
			log.Warningf("No checkpoint found in %s, starting from scratch", statePath)
		}
	}

	appendMode := restore != nil && restore.Step == sc.Step
	if appendMode {
		if err := trace.TruncateAfter(logPath, int64(restore.Iter)); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	out, err := trace.Create(logPath, appendMode, "likelihood")
	if err != nil {
		return nil, err
	}

	seed := sc.Seed
	if opts.Seed != 0 {
		seed = opts.Seed
	}
	chain, err := mcmc.NewChain(m, ref, mcmc.Settings{
		Step:        sc.Step,
		Beta:        sc.Beta,
		Mode:        mode,
		ChainLength: sc.ChainLength,
		BurnIn:      sc.BurnIn,
		LogEvery:    sc.LogEvery,
		StoreEvery:  sc.StoreEvery,
		RunID:       sc.RunID,
		Rng:         rand.New(rand.NewSource(seed)),
		Output:      out,
		Checkpoint:  cio,
		Restore:     restore,
		Progress:    opts.Progress,
	})
	if err != nil {
		out.Close()
		return nil, err
	}
	res, err := chain.Run(ctx)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	res.WriteOperatorRates(&b)
	log.Infof("Step %d operators:\n%s", sc.Step, b.String())
	return res, nil
}
