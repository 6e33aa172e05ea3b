package pathsampler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"bitbucket.org/Davydov/gss/ccd"
	"bitbucket.org/Davydov/gss/mcmc"
	"bitbucket.org/Davydov/gss/model"
	"bitbucket.org/Davydov/gss/refdist"
)

// StepConfigFile is the name of the step configuration file.
const StepConfigFile = "step.toml"

// DefaultScript is the launch script template. $(dir), $(seed),
// $(host), $(binary) and $(resume/overwrite) are substituted for every
// step.
const DefaultScript = `cd $(dir)
$(binary) step $(resume/overwrite) --seed $(seed) .
`

// SamplerConfig are the settings of the annealing steps.
type SamplerConfig struct {
	Steps       int     `toml:"steps"`
	Alpha       float64 `toml:"alpha"`
	ChainLength int     `toml:"chainLength"`

	// PreBurnin is the burn-in of the steps of the first wave.
	PreBurnin int `toml:"preBurnin"`

	// BurnInPercentage is used for analysing the step logs.
	BurnInPercentage int    `toml:"burnInPercentage"`
	StoreEvery       int    `toml:"storeEvery"`
	LogEvery         int    `toml:"logEvery"`
	Threads          int    `toml:"threads"`
	RootDir          string `toml:"rootdir"`
	DeleteOldLogs    bool   `toml:"deleteOldLogs"`
	DoNotRun         bool   `toml:"doNotRun"`
	Posterior2Prior  bool   `toml:"posterior2prior"`
	Seed             int64  `toml:"seed"`

	// StoreSeconds is the minimal time between two periodic
	// checkpoints.
	StoreSeconds float64 `toml:"storeSeconds,omitempty"`

	// Mode is gss (generalized stepping-stone) or ps (path sampling).
	Mode   string   `toml:"mode"`
	Script string   `toml:"script"`
	Hosts  []string `toml:"hosts"`

	// Binary replaces $(binary) in the script.
	Binary string `toml:"binary"`

	// Runner is either inprocess or process.
	Runner string `toml:"runner"`
}

// AnalysisConfig are the settings of the marginal likelihood analysis.
type AnalysisConfig struct {
	// Cross is the number of cross-validation folds, zero disables
	// the cross-validation.
	Cross     int    `toml:"cross"`
	Repeats   int    `toml:"repeats"`
	Bootstrap int    `toml:"bootstrap"`
	Plot      string `toml:"plot"`
}

// ReferenceConfig describes the posterior sample the reference
// distribution is built from.
type ReferenceConfig struct {
	Trace  string `toml:"trace"`
	Trees  string `toml:"trees"`
	Burnin int    `toml:"burnin"`

	// BranchLengths is none, gamma or intervals.
	BranchLengths string `toml:"branchLengths"`

	// Scalar is kde or gamma.
	Scalar   string `toml:"scalar"`
	GridSize int    `toml:"gridSize"`
}

// Config is the run configuration.
type Config struct {
	RunID     string          `toml:"runID"`
	Sampler   SamplerConfig   `toml:"sampler"`
	Analysis  AnalysisConfig  `toml:"analysis"`
	Reference ReferenceConfig `toml:"reference"`
	Model     model.Config    `toml:"model"`
}

// DefaultConfig returns the configuration with the default values.
func DefaultConfig() *Config {
	return &Config{
		Sampler: SamplerConfig{
			Steps:            8,
			Alpha:            0.3,
			ChainLength:      100000,
			PreBurnin:        100000,
			BurnInPercentage: 50,
			StoreEvery:       10000,
			Threads:          1,
			RootDir:          "/tmp",
			Posterior2Prior:  true,
			Mode:             "gss",
			Script:           DefaultScript,
			Runner:           "inprocess",
		},
		Analysis: AnalysisConfig{
			Repeats: 100,
		},
		Reference: ReferenceConfig{
			Burnin:        10,
			BranchLengths: "none",
			Scalar:        "kde",
		},
		Model: model.DefaultConfig(),
	}
}

// ReadConfig reads a TOML configuration on top of the defaults.
func ReadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warningf("Unknown configuration keys: %v", undecoded)
	}
	return cfg, nil
}

func (c *SamplerConfig) logEvery() int {
	if c.LogEvery > 0 {
		return c.LogEvery
	}
	if c.ChainLength/1000 < 1 {
		return 1
	}
	return c.ChainLength / 1000
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	s := &c.Sampler
	if s.Steps < 2 {
		return errors.New("number of steps should be at least 2")
	}
	if s.BurnInPercentage < 0 || s.BurnInPercentage >= 100 {
		return errors.New("burnInPercentage should be between 0 and 100")
	}
	if s.ChainLength < 1 || s.PreBurnin < 0 || s.StoreEvery < 0 || s.StoreSeconds < 0 {
		return errors.New("chainLength should be positive, preBurnin, storeEvery and storeSeconds non-negative")
	}
	if s.Threads < 1 {
		return errors.New("number of threads should be positive")
	}
	if s.RootDir == "" {
		return errors.New("empty rootdir")
	}
	if st, err := os.Stat(s.RootDir); err == nil && !st.IsDir() {
		return fmt.Errorf("%s is not a directory", s.RootDir)
	}
	mode, err := mcmc.ParseMode(s.Mode)
	if err != nil {
		return err
	}
	switch s.Runner {
	case "inprocess", "process":
	default:
		return fmt.Errorf("Unknown runner: %s", s.Runner)
	}
	if c.Analysis.Cross < 0 || c.Analysis.Repeats < 0 || c.Analysis.Bootstrap < 0 {
		return errors.New("cross-validation and bootstrap settings should be non-negative")
	}

	r := &c.Reference
	if _, err := ccd.ParseMode(r.BranchLengths); err != nil {
		return err
	}
	if _, err := scalarKind(r.Scalar); err != nil {
		return err
	}
	if r.Burnin < 0 || r.Burnin >= 100 {
		return errors.New("reference burnin should be between 0 and 100")
	}
	if mode == mcmc.SteppingStone {
		if r.Trace == "" {
			return errors.New("generalized stepping-stone sampling requires a reference trace log")
		}
		if _, err := os.Stat(r.Trace); err != nil {
			return err
		}
	}
	if r.Trees != "" {
		if _, err := os.Stat(r.Trees); err != nil {
			return err
		}
	}
	return nil
}

func scalarKind(s string) (refdist.Kind, error) {
	switch s {
	case "", "kde":
		return refdist.KindKDE, nil
	case "gamma":
		return refdist.KindGamma, nil
	}
	return 0, fmt.Errorf("Unknown scalar reference: %s", s)
}

// StepConfig is everything a single step needs to run.
type StepConfig struct {
	RunID       string          `toml:"runID"`
	Step        int             `toml:"step"`
	Beta        float64         `toml:"beta"`
	Seed        int64           `toml:"seed"`
	Mode        string          `toml:"mode"`
	ChainLength int             `toml:"chainLength"`
	BurnIn      int             `toml:"burnIn"`
	LogEvery    int             `toml:"logEvery"`
	StoreEvery  int             `toml:"storeEvery"`
	Reference   ReferenceConfig `toml:"reference"`
	Model       model.Config    `toml:"model"`

	// StoreSeconds throttles the periodic checkpoints.
	StoreSeconds float64 `toml:"storeSeconds,omitempty"`
}

// WriteStepConfig writes the step configuration to the step directory.
func WriteStepConfig(dir string, sc *StepConfig) error {
	f, err := os.Create(filepath.Join(dir, StepConfigFile))
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(sc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadStepConfig reads the step configuration from the step directory.
func ReadStepConfig(dir string) (*StepConfig, error) {
	var sc StepConfig
	if _, err := toml.DecodeFile(filepath.Join(dir, StepConfigFile), &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
