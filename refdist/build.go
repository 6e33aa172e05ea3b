package refdist

import (
	"fmt"

	"bitbucket.org/Davydov/gss/ccd"
	"bitbucket.org/Davydov/gss/dist"
	"bitbucket.org/Davydov/gss/kde"
	"bitbucket.org/Davydov/gss/mcmc"
	"bitbucket.org/Davydov/gss/trace"
)

// Options control reference construction.
type Options struct {
	// Scalar is KindKDE or KindGamma.
	Scalar Kind
	// GridSize is the KDE grid size.
	GridSize int
	// Trees is the posterior tree sample.
	Trees ccd.Source
	// BranchLengths is the tree branch length component.
	BranchLengths ccd.BranchLengthMode
}

// Build derives the reference distribution for every state node of the
// model from a posterior trace log and a tree sample. A state node
// without a trace column keeps its prior as the reference.
func Build(model mcmc.Model, tl *trace.Log, opts Options) (*Compound, error) {
	c := &Compound{}
	var labels []string
	if tl != nil {
		labels = tl.Labels()
	}

	inVector := make(map[string]bool)
	for _, v := range model.Vectors() {
		for _, e := range v.Elements {
			inVector[e.Name()] = true
		}
		d, err := buildVector(v, tl, labels, opts)
		if err != nil {
			return nil, err
		}
		c.Add(d)
	}

	for _, par := range model.Parameters() {
		if inVector[par.Name()] {
			continue
		}
		d, err := buildScalar(par, tl, labels, opts)
		if err != nil {
			return nil, err
		}
		c.Add(d)
	}

	trees := model.Trees()
	if len(trees) > 0 {
		var m *ccd.Model
		if opts.Trees != nil {
			var err error
			m, err = ccd.New(opts.Trees, opts.BranchLengths)
			if err != nil {
				return nil, fmt.Errorf("tree reference: %w", err)
			}
		}
		for i, t := range trees {
			if m == nil {
				log.Warningf("Did not find %s in log.", t.Name())
				c.Add(ForPrior(t.Name(), t.Prior))
				continue
			}
			if i > 0 {
				log.Warningf("Using the same tree sample for %s", t.Name())
			}
			c.Add(ForTree(m, t))
		}
	}

	log.Infof("Reference distribution: %v", c.Summary())
	return c, nil
}

func univariate(x []float64, opts Options) (Univariate, Kind, error) {
	if opts.Scalar == KindGamma {
		g, err := dist.FitGamma(x)
		if err != nil {
			return nil, KindGamma, err
		}
		return g, KindGamma, nil
	}
	var kopts []kde.Option
	if opts.GridSize > 0 {
		kopts = append(kopts, kde.GridSize(opts.GridSize))
	}
	k, err := kde.New(x, kopts...)
	if err != nil {
		return nil, KindKDE, err
	}
	return k, KindKDE, nil
}

func buildScalar(par mcmc.FloatParameter, tl *trace.Log, labels []string, opts Options) (Distribution, error) {
	cols, ok := trace.Resolve(labels, par.Name(), 1)
	if !ok {
		log.Warningf("Did not find %s in log.", par.Name())
		return ForPrior(par.Name(), par.Prior), nil
	}
	u, kind, err := univariate(tl.ColumnAt(cols[0]), opts)
	if err != nil {
		log.Warningf("Cannot build reference for %s (%v), using prior", par.Name(), err)
		return ForPrior(par.Name(), par.Prior), nil
	}
	return ForScalar(kind, u, par), nil
}

func buildVector(v *mcmc.Vector, tl *trace.Log, labels []string, opts Options) (Distribution, error) {
	cols, ok := trace.Resolve(labels, v.Name(), v.Dim())
	if !ok {
		log.Warningf("Did not find %s in log.", v.Name())
		return ForPrior(v.Name(), v.Prior), nil
	}
	dims := make([]Univariate, v.Dim())
	for i, col := range cols {
		u, _, err := univariate(tl.ColumnAt(col), opts)
		if err != nil {
			log.Warningf("Cannot build reference for %s (%v), using prior", v.Name(), err)
			return ForPrior(v.Name(), v.Prior), nil
		}
		dims[i] = u
	}
	return ForVector(NewMultivariate(dims...), v)
}
