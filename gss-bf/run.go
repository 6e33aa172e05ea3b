package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"bitbucket.org/Davydov/gss/marginal"
)

// hyp is the marginal likelihood estimate of a single hypothesis.
type hyp struct {
	Config string `json:"config"`
	*marginal.Summary
}

// sd returns the cross-validation standard deviation, or the bootstrap
// one if there was no cross-validation.
func (h *hyp) sd() float64 {
	if h.CrossSD > 0 {
		return h.CrossSD
	}
	return h.BootstrapSD
}

type runner struct {
	binary string
	dir    string
	extra  []string
}

// args constructs arguments for running gss.
func (r *runner) args(k int, config string) []string {
	args := []string{"run",
		"--json", filepath.Join(r.dir, fmt.Sprintf("H%d.json", k)),
		"--rootdir", filepath.Join(r.dir, fmt.Sprintf("H%d", k)),
	}
	args = append(args, r.extra...)
	return append(args, config)
}

// run runs gss for the hypothesis k and reads its json output.
func (r *runner) run(k int, config string) (*hyp, error) {
	args := r.args(k, config)
	log.Debugf("%s %v", r.binary, args)
	cmd := exec.Command(r.binary, args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(r.dir, fmt.Sprintf("H%d.json", k)))
	if err != nil {
		return nil, err
	}
	return parseResult(b, config)
}

func parseResult(b []byte, config string) (*hyp, error) {
	var res struct {
		Marginal *marginal.Summary `json:"marginal"`
	}
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, err
	}
	if res.Marginal == nil {
		return nil, fmt.Errorf("no marginal likelihood estimate for %s", config)
	}
	return &hyp{Config: config, Summary: res.Marginal}, nil
}
