package marginal

import (
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Plot saves the mean logged value against beta. The image format is
// chosen by the file extension.
func Plot(s *Summary, file string) error {
	steps := append([]StepSummary(nil), s.Steps...)
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Beta < steps[j].Beta
	})
	pts := make(plotter.XYs, len(steps))
	for i, st := range steps {
		pts[i].X = st.Beta
		pts[i].Y = st.Mean
	}

	p := plot.New()
	p.Title.Text = "Path"
	p.X.Label.Text = "beta"
	p.Y.Label.Text = "mean log likelihood"
	if err := plotutil.AddLinePoints(p, "steps", pts); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, file)
}
