package main

import (
	"bitbucket.org/Davydov/gss/aicm"
	"bitbucket.org/Davydov/gss/marginal"
	"bitbucket.org/Davydov/gss/mcmc"
)

// CallSummary stores information on the gss call.
type CallSummary struct {
	// Version stores gss version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
}

// CPOSummary is the result of the cpo command.
type CPOSummary struct {
	Patterns int     `json:"patterns"`
	Trees    int     `json:"trees"`
	LPML     float64 `json:"lpml"`
	// Mean and SD are the bootstrap LPML mean and standard deviation.
	Mean float64 `json:"mean,omitempty"`
	SD   float64 `json:"sd,omitempty"`
}

// RunSummary is the json output, only the part of the executed command
// is set.
type RunSummary struct {
	CallSummary
	// Marginal is the marginal likelihood estimate of run and analyse.
	Marginal *marginal.Summary `json:"marginal,omitempty"`
	// Step is the result of a single step.
	Step *mcmc.Result `json:"step,omitempty"`
	AICM *aicm.Result `json:"aicm,omitempty"`
	CPO  *CPOSummary  `json:"cpo,omitempty"`
}
