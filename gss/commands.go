package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"

	"bitbucket.org/Davydov/gss/aicm"
	"bitbucket.org/Davydov/gss/ccd"
	"bitbucket.org/Davydov/gss/cpo"
	"bitbucket.org/Davydov/gss/marginal"
	"bitbucket.org/Davydov/gss/mcmc"
	"bitbucket.org/Davydov/gss/pathsampler"
	"bitbucket.org/Davydov/gss/progress"
	"bitbucket.org/Davydov/gss/trace"
	"bitbucket.org/Davydov/gss/tree"
)

// stepProgress returns a progress callback which starts a new bar
// for every chain.
func stepProgress() func(done, total int) {
	var bar *progress.Bar
	last := 0
	return func(done, total int) {
		if bar == nil || done < last {
			bar = progress.NewBar(os.Stderr, total)
		}
		last = done
		bar.Report(done, total)
	}
}

// bootstrapProgress returns nil if the progress is disabled.
func bootstrapProgress(title string, n int) func(done, total int) {
	if *noProgress || n <= 1 {
		return nil
	}
	fmt.Fprintln(os.Stderr, title)
	return progress.NewBar(os.Stderr, n).Report
}

// setInt overrides v unless the flag has the default value -1.
func setInt(v *int, flag int) {
	if flag != -1 {
		*v = flag
	}
}

func setAnalysis(cfg *pathsampler.Config, alpha float64, burnIn, cross, repeats, bootstrap int, plot string) {
	if !math.IsNaN(alpha) {
		cfg.Sampler.Alpha = alpha
	}
	setInt(&cfg.Sampler.BurnInPercentage, burnIn)
	setInt(&cfg.Analysis.Cross, cross)
	setInt(&cfg.Analysis.Repeats, repeats)
	setInt(&cfg.Analysis.Bootstrap, bootstrap)
	if plot != "" {
		cfg.Analysis.Plot = plot
	}
}

func runPathSampler(ctx context.Context, seedSet bool) (*marginal.Summary, error) {
	cfg, err := pathsampler.ReadConfig(*runConfig)
	if err != nil {
		return nil, err
	}
	sc := &cfg.Sampler
	setInt(&sc.Steps, *runSteps)
	setInt(&sc.ChainLength, *runChain)
	setInt(&sc.PreBurnin, *runPreBurnin)
	setInt(&sc.Threads, *runThreads)
	setAnalysis(cfg, *runAlpha, *runBurnIn, *runCross, *runRepeats, *runBootstrap, *runPlot)
	if *runRootDir != "" {
		sc.RootDir = *runRootDir
	}
	if *runDeleteLogs {
		sc.DeleteOldLogs = true
	}
	if *runDoNotRun {
		sc.DoNotRun = true
	}
	if *runForward {
		sc.Posterior2Prior = false
	}
	if *runRunner != "" {
		sc.Runner = *runRunner
	}
	if seedSet {
		sc.Seed = *seed
	}

	s, err := pathsampler.New(cfg)
	if err != nil {
		return nil, err
	}
	if _, ok := s.Runner.(*pathsampler.InProcess); ok && sc.Threads == 1 && !*noProgress {
		s.Runner = &pathsampler.InProcess{Progress: stepProgress()}
	}
	sum, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}
	if sum != nil {
		if err := sum.Write(os.Stdout); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

func runStep(ctx context.Context, seedSet bool) (*mcmc.Result, error) {
	if *stepResume && *stepOverwrite {
		return nil, errors.New("--resume and --overwrite cannot be used together")
	}
	opts := pathsampler.StepOptions{Resume: *stepResume, Overwrite: *stepOverwrite}
	if seedSet {
		opts.Seed = *seed
	}
	if !*noProgress {
		opts.Progress = stepProgress()
	}
	res, err := pathsampler.RunStep(ctx, *stepDir, opts)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Start log density: %v, end log density: %v, %d samples\n",
		res.StartLogDensity, res.EndLogDensity, res.Samples)
	if err := res.WriteOperatorRates(os.Stdout); err != nil {
		return nil, err
	}
	return res, nil
}

func analyse() (*marginal.Summary, error) {
	root := *anRootDir
	cfg, err := pathsampler.ReadRunConfig(root)
	if errors.Is(err, os.ErrNotExist) {
		log.Warningf("No %s in %s, the betas are read from the step configurations", pathsampler.RunConfigFile, root)
		cfg = pathsampler.DefaultConfig()
		cfg.Sampler.Steps = 0
	} else if err != nil {
		return nil, err
	}
	cfg.Sampler.RootDir = root
	setInt(&cfg.Sampler.Steps, *anSteps)
	setAnalysis(cfg, *anAlpha, *anBurnIn, *anCross, *anRepeats, *anBootstrap, *anPlot)

	sum, err := pathsampler.Analyse(cfg, rand.New(rand.NewSource(*seed)))
	if err != nil {
		return nil, err
	}
	if err := sum.Write(os.Stdout); err != nil {
		return nil, err
	}
	return sum, nil
}

func runAICM() (*aicm.Result, error) {
	tl, err := trace.Open(*aicmTrace, *aicmBurnIn)
	if err != nil {
		return nil, err
	}
	v, ok := tl.Column(*aicmColumn)
	if !ok {
		return nil, fmt.Errorf("trace %s not found in %s", *aicmColumn, *aicmTrace)
	}
	kind, err := aicm.ParseKind(*aicmType)
	if err != nil {
		return nil, err
	}
	a := &aicm.Analyser{
		Kind:      kind,
		Bootstrap: *aicmBootstrap,
		Rng:       rand.New(rand.NewSource(*seed)),
		Progress:  bootstrapProgress("Bootstrapping "+kind.Description(), *aicmBootstrap),
	}
	r, err := a.Analyse(v)
	if err != nil {
		return nil, err
	}
	fmt.Printf("%s (%s:%s, burnin=%d%%, samples=%d)\n", r, *aicmTrace, *aicmColumn, *aicmBurnIn, r.Samples)
	return r, nil
}

func runCPO() (*CPOSummary, error) {
	tab, err := cpo.Open(*cpoLog, *cpoBurnIn)
	if err != nil {
		return nil, err
	}
	log.Infof("Read %d patterns (%d sites) from %d trees", tab.Patterns(), tab.Sites(), tab.Trees())
	s := &CPOSummary{
		Patterns: tab.Patterns(),
		Trees:    tab.Trees(),
		LPML:     tab.LPML(tab.All()),
	}
	fmt.Printf("log pseudomarginal likelihood (LPML) = %v\n", s.LPML)
	if *cpoBootstrap > 1 {
		rng := rand.New(rand.NewSource(*seed))
		s.Mean, s.SD, err = tab.Bootstrap(*cpoBootstrap, rng,
			bootstrapProgress("Calculating variance of CPO", *cpoBootstrap))
		if err != nil {
			return nil, err
		}
		fmt.Printf("bootstrap mean = %v, standard deviation = %v\n", s.Mean, s.SD)
	}
	return s, nil
}

func runCCD() error {
	sample, err := tree.OpenSample(*ccdTrees, *ccdBurnIn)
	if err != nil {
		return err
	}
	defer sample.Close()
	mode, err := ccd.ParseMode(*ccdLengths)
	if err != nil {
		return err
	}
	m, err := ccd.New(sample, mode)
	if err != nil {
		return err
	}
	log.Noticef("%d trees, %d taxa, %d clades", m.NTrees(), m.Taxa().Len(), len(m.Clades()))
	if *ccdTable {
		if err := m.WriteTable(os.Stdout); err != nil {
			return err
		}
	}

	var query ccd.Source = sample
	if *ccdQuery != "" {
		q, err := tree.OpenSample(*ccdQuery, 0)
		if err != nil {
			return err
		}
		defer q.Close()
		query = q
	}
	if err := query.Reset(); err != nil {
		return err
	}
	fmt.Println("tree\tlogDensity")
	for i := 0; query.HasNext(); i++ {
		t, err := query.Next()
		if err != nil {
			return err
		}
		fmt.Printf("%d\t%v\n", i, m.LogDensity(t))
	}
	return nil
}
