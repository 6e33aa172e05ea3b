package main

import (
	"math"
	"testing"

	"bitbucket.org/Davydov/gss/pathsampler"
)

func TestSetAnalysis(t *testing.T) {
	cfg := pathsampler.DefaultConfig()
	setAnalysis(cfg, math.NaN(), -1, 5, -1, 0, "")
	if cfg.Sampler.Alpha != 0.3 || cfg.Sampler.BurnInPercentage != 50 {
		t.Error("defaults were overridden:", cfg.Sampler.Alpha, cfg.Sampler.BurnInPercentage)
	}
	if cfg.Analysis.Cross != 5 || cfg.Analysis.Repeats != 100 || cfg.Analysis.Bootstrap != 0 {
		t.Error("wrong analysis settings:", cfg.Analysis)
	}

	setAnalysis(cfg, 0, 20, -1, 10, 50, "path.png")
	if cfg.Sampler.Alpha != 0 || cfg.Sampler.BurnInPercentage != 20 {
		t.Error("alpha and burn-in are not set:", cfg.Sampler.Alpha, cfg.Sampler.BurnInPercentage)
	}
	if cfg.Analysis.Repeats != 10 || cfg.Analysis.Bootstrap != 50 || cfg.Analysis.Plot != "path.png" {
		t.Error("wrong analysis settings:", cfg.Analysis)
	}
}
