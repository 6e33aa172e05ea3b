// Gss estimates the marginal likelihood of a model using generalized
// stepping-stone sampling (GSS) or path sampling.
//
// A run is described by a TOML configuration:
//
//	gss run config.toml
//
// This sets up a directory for every step, runs the annealed chains and
// prints the marginal likelihood estimate. A single step can be run (or
// resumed) with:
//
//	gss step --resume /tmp/run/step3
//
// The logs of a finished run can be analysed again:
//
//	gss analyse --bootstrap 100 /tmp/run
//
// Other estimators are available through the aicm and cpo commands, the
// conditional clade distribution of a tree sample is printed by ccd.
//
// To see all the options run:
//
//	gss --help
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/op/go-logging"
	"gopkg.in/alecthomas/kingpin.v2"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("gss")
var formatter = logging.MustStringFormatter(`%{message}`)

// modules are the loggers which level is set from the command line.
var modules = []string{
	"gss", "pathsampler", "mcmc", "marginal", "refdist", "ccd", "kde",
	"trace", "tree", "checkpoint", "model", "aicm", "cpo",
}

// command-line options
var (
	// application
	app = kingpin.New("gss", "generalized stepping-stone and path sampling marginal likelihood estimator").Version(version)

	// technical
	seed       = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()
	noProgress = app.Flag("noprogress", "do not show the progress bar").Bool()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()

	// run
	runCmd        = app.Command("run", "set up and run all the steps, then analyse them")
	runConfig     = runCmd.Arg("config", "run configuration (TOML)").Required().ExistingFile()
	runSteps      = runCmd.Flag("steps", "number of steps").Default("-1").Int()
	runAlpha      = runCmd.Flag("alpha", "alpha of the Beta(alpha, 1) schedule, uniform spacing if <= 0").Default("NaN").Float64()
	runChain      = runCmd.Flag("chainlength", "number of iterations of every step").Default("-1").Int()
	runPreBurnin  = runCmd.Flag("preburnin", "burn-in of the first steps").Default("-1").Int()
	runBurnIn     = runCmd.Flag("burnin", "burn-in percentage used in the analysis").Default("-1").Int()
	runRootDir    = runCmd.Flag("rootdir", "root directory for the steps").String()
	runThreads    = runCmd.Flag("threads", "number of steps to run in parallel").Default("-1").Int()
	runDeleteLogs = runCmd.Flag("deleteoldlogs", "delete the logs of an earlier run").Bool()
	runDoNotRun   = runCmd.Flag("donotrun", "only set up the step directories and scripts").Bool()
	runForward    = runCmd.Flag("prior2posterior", "anneal from the reference to the posterior").Bool()
	runRunner     = runCmd.Flag("runner", "step runner").Enum("inprocess", "process")
	runCross      = runCmd.Flag("cross", "number of cross-validation folds").Default("-1").Int()
	runRepeats    = runCmd.Flag("repeats", "number of cross-validation repeats").Default("-1").Int()
	runBootstrap  = runCmd.Flag("bootstrap", "number of bootstrap replicates").Default("-1").Int()
	runPlot       = runCmd.Flag("plot", "save the path plot to a file").String()

	// step
	stepCmd       = app.Command("step", "run a single step")
	stepDir       = stepCmd.Arg("dir", "step directory").Required().ExistingDir()
	stepResume    = stepCmd.Flag("resume", "continue from the checkpoint").Bool()
	stepOverwrite = stepCmd.Flag("overwrite", "start from scratch, overwriting the logs").Bool()

	// analyse
	anCmd       = app.Command("analyse", "combine the step logs of a run")
	anRootDir   = anCmd.Arg("rootdir", "root directory of the run").Required().ExistingDir()
	anSteps     = anCmd.Flag("steps", "number of steps, all the step directories by default").Default("-1").Int()
	anAlpha     = anCmd.Flag("alpha", "alpha of the schedule").Default("NaN").Float64()
	anBurnIn    = anCmd.Flag("burnin", "burn-in percentage").Default("-1").Int()
	anCross     = anCmd.Flag("cross", "number of cross-validation folds").Default("-1").Int()
	anRepeats   = anCmd.Flag("repeats", "number of cross-validation repeats").Default("-1").Int()
	anBootstrap = anCmd.Flag("bootstrap", "number of bootstrap replicates").Default("-1").Int()
	anPlot      = anCmd.Flag("plot", "save the path plot to a file").String()

	// aicm
	aicmCmd       = app.Command("aicm", "AICM and harmonic, smoothed harmonic or arithmetic mean estimators")
	aicmTrace     = aicmCmd.Arg("log", "trace log").Required().ExistingFile()
	aicmColumn    = aicmCmd.Flag("trace", "name of the trace to use").Default("likelihood").String()
	aicmBurnIn    = aicmCmd.Flag("burnin", "burn-in percentage").Default("10").Int()
	aicmType      = aicmCmd.Flag("type", "estimator").Default("aicm").Enum("aicm", "hme", "smoothed", "arithmetic")
	aicmBootstrap = aicmCmd.Flag("bootstrap", "number of bootstrap replicates").Default("1000").Int()

	// cpo
	cpoCmd       = app.Command("cpo", "conditional predictive ordinates and LPML")
	cpoLog       = cpoCmd.Arg("log", "CPO log with pattern weights").Required().ExistingFile()
	cpoBurnIn    = cpoCmd.Flag("burnin", "burn-in percentage").Default("10").Int()
	cpoBootstrap = cpoCmd.Flag("bootstrap", "number of bootstrap replicates").Default("1000").Int()

	// ccd
	ccdCmd     = app.Command("ccd", "conditional clade distribution of a tree sample")
	ccdTrees   = ccdCmd.Arg("trees", "tree sample").Required().ExistingFile()
	ccdQuery   = ccdCmd.Arg("query", "trees to evaluate, the sample itself by default").ExistingFile()
	ccdBurnIn  = ccdCmd.Flag("burnin", "burn-in percentage").Default("10").Int()
	ccdLengths = ccdCmd.Flag("branchlengths", "branch length component").Default("none").Enum("none", "gamma", "intervals")
	ccdTable   = ccdCmd.Flag("table", "print the clade table").Bool()
)

func setupLogging() (close func()) {
	logging.SetFormatter(formatter)

	close = func() {}
	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		close = func() { f.Close() }
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, m := range modules {
		logging.SetLevel(level, m)
	}
	return close
}

func saveJSON(summary *RunSummary) {
	if *jsonF == "" {
		return
	}
	j, err := json.Marshal(summary)
	if err != nil {
		log.Error(err)
		return
	}
	log.Debug(string(j))
	f, err := os.Create(*jsonF)
	if err != nil {
		log.Error("Error creating json output file:", err)
		return
	}
	f.Write(j)
	f.Close()
}

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	closeLog := setupLogging()
	defer closeLog()

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	seedSet := *seed != -1
	if !seedSet {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	summary := &RunSummary{}

	var err error
	switch command {
	case runCmd.FullCommand():
		summary.Marginal, err = runPathSampler(ctx, seedSet)
	case stepCmd.FullCommand():
		summary.Step, err = runStep(ctx, seedSet)
	case anCmd.FullCommand():
		summary.Marginal, err = analyse()
	case aicmCmd.FullCommand():
		summary.AICM, err = runAICM()
	case cpoCmd.FullCommand():
		summary.CPO, err = runCPO()
	case ccdCmd.FullCommand():
		err = runCCD()
	}
	if err != nil {
		log.Fatal(err)
	}

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)

	summary.Version = version
	summary.CommandLine = os.Args
	summary.Seed = *seed
	summary.Time = deltaT.Seconds()
	saveJSON(summary)
}
