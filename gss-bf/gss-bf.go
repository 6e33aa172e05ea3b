// Gss-bf is a wrapper for gss. It estimates the marginal likelihoods of
// two models and reports the log Bayes factor of H1 against H0.
//
//	gss-bf h0.toml h1.toml
package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/op/go-logging"
	"gopkg.in/alecthomas/kingpin.v2"
)

// setting up logging
var formatter = logging.MustStringFormatter(`%{message}`)
var log = logging.MustGetLogger("gss-bf")

// program parameters
var (
	app     = kingpin.New("gss-bf", "log Bayes factor of two models estimated by gss")
	config0 = app.Arg("h0", "H0 run configuration").Required().ExistingFile()
	config1 = app.Arg("h1", "H1 run configuration").Required().ExistingFile()
	binary  = app.Flag("binary", "binary name or full path to gss").Default("gss").String()
	debug   = app.Flag("debug", "enable debug mode").Bool()
	jsonF   = app.Flag("json", "write json output to a file").String()
	workDir = app.Flag("workdir", "directory for the runs, a temporary directory is removed at exit").String()
	extra   = app.Flag("arg", "additional argument for gss run, can be repeated").Strings()
)

// summary is storing summary information.
type summary struct {
	H0 *hyp `json:"H0"`
	H1 *hyp `json:"H1"`
	// LogBF is log(ML1) - log(ML0).
	LogBF float64 `json:"logBF"`
	// SE is the standard error of LogBF, zero if neither run
	// estimated the variance.
	SE float64 `json:"se,omitempty"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
}

func saveJSON(sum *summary) {
	if *jsonF == "" {
		return
	}
	j, err := json.Marshal(sum)
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
	startTime := time.Now()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logging.SetFormatter(formatter)
	logging.SetBackend(logging.NewLogBackend(os.Stderr, "", 0))
	if !*debug {
		logging.SetLevel(logging.INFO, "gss-bf")
	}

	dir := *workDir
	if dir == "" {
		var err error
		if dir, err = os.MkdirTemp("", "gss-bf"); err != nil {
			log.Fatal(err)
		}
		defer os.RemoveAll(dir)
	} else if err := os.MkdirAll(dir, 0777); err != nil {
		log.Fatal(err)
	}

	r := &runner{binary: *binary, dir: dir, extra: *extra}
	h0, err := r.run(0, *config0)
	if err != nil {
		log.Fatal("Error running H0:", err)
	}
	h1, err := r.run(1, *config1)
	if err != nil {
		log.Fatal("Error running H1:", err)
	}

	sum := &summary{H0: h0, H1: h1, LogBF: h1.LogML - h0.LogML}
	sd0, sd1 := h0.sd(), h1.sd()
	if sd0 > 0 || sd1 > 0 {
		sum.SE = math.Sqrt(sd0*sd0 + sd1*sd1)
	}

	log.Infof("logML0=%f, logML1=%f", h0.LogML, h1.LogML)
	if sum.SE > 0 {
		fmt.Printf("log BF = %v +/- %v\n", sum.LogBF, sum.SE)
	} else {
		fmt.Printf("log BF = %v\n", sum.LogBF)
	}

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)
	sum.Time = deltaT.Seconds()

	saveJSON(sum)
}
