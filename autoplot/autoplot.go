// Package autoplot draws the standard diagnostic plots of a tuning run
// with gonum/plot.
package autoplot

import (
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/tidytune/explain"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/tune"
)

// meanSE feeds plotter.NewYErrorBars.
type meanSE struct {
	plotter.XYs
	plotter.YErrors
}

// TuneResults plots the resampled mean of metric, with one standard error
// bars, against the parameter paramID. When the workflow tunes other
// parameters too, each distinct combination of them gets its own line.
func TuneResults(res *tune.Results, paramID, metric string) (*plot.Plot, error) {
	if metric == "" && len(res.MetricSet) > 0 {
		metric = res.MetricSet[0].Name
	}
	series := map[string]*meanSE{}
	var keys []string
	for _, s := range res.Summarize() {
		if s.Metric != metric || math.IsNaN(s.Mean) {
			continue
		}
		x, ok := s.Point[paramID]
		if !ok {
			return nil, errors.NewValidationError("param", "not a tuned parameter of these results", paramID)
		}
		rest := s.Point.Restrict(func(id string) bool { return id != paramID })
		k := rest.String()
		if _, ok := series[k]; !ok {
			series[k] = &meanSE{}
			keys = append(keys, k)
		}
		se := series[k]
		se.XYs = append(se.XYs, plotter.XY{X: x, Y: s.Mean})
		se.YErrors = append(se.YErrors, struct{ Low, High float64 }{s.StdErr, s.StdErr})
	}
	if len(series) == 0 {
		return nil, errors.NewMetricError(metric, "no estimates to plot")
	}
	sort.Strings(keys)

	p := plot.New()
	p.Title.Text = res.WorkflowID
	p.X.Label.Text = paramID
	p.Y.Label.Text = metric
	if logScale(res.Grid, paramID, series) {
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	for i, k := range keys {
		se := series[k]
		sort.Sort(byX{se})
		line, points, err := plotter.NewLinePoints(se.XYs)
		if err != nil {
			return nil, errors.Wrap(err, "autoplot")
		}
		line.Color = plotutil.Color(i)
		points.Color = plotutil.Color(i)
		bars, err := plotter.NewYErrorBars(se)
		if err != nil {
			return nil, errors.Wrap(err, "autoplot")
		}
		bars.Color = plotutil.Color(i)
		p.Add(line, points, bars)
		if len(keys) > 1 {
			p.Legend.Add(k, line, points)
		}
	}
	return p, nil
}

// logScale reports whether paramID is log10 transformed and all x values
// are positive.
func logScale(g *param.Grid, paramID string, series map[string]*meanSE) bool {
	if g == nil {
		return false
	}
	pp, ok := g.Params.Get(paramID)
	if !ok || pp.Trans != param.Log10 {
		return false
	}
	for _, se := range series {
		for _, xy := range se.XYs {
			if xy.X <= 0 {
				return false
			}
		}
	}
	return true
}

type byX struct{ *meanSE }

func (b byX) Len() int           { return len(b.XYs) }
func (b byX) Less(i, j int) bool { return b.XYs[i].X < b.XYs[j].X }
func (b byX) Swap(i, j int) {
	b.XYs[i], b.XYs[j] = b.XYs[j], b.XYs[i]
	b.YErrors[i], b.YErrors[j] = b.YErrors[j], b.YErrors[i]
}

// Importance draws horizontal bars, largest at the top.
func Importance(imps []explain.Importance) (*plot.Plot, error) {
	if len(imps) == 0 {
		return nil, errors.NewValidationError("importance", "nothing to plot", 0)
	}
	n := len(imps)
	values := make(plotter.Values, n)
	names := make([]string, n)
	for i, imp := range imps {
		// Bars are drawn bottom-up.
		values[n-1-i] = imp.Importance
		names[n-1-i] = imp.Variable
	}

	p := plot.New()
	p.Title.Text = "Variable importance"
	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return nil, errors.Wrap(err, "autoplot")
	}
	bars.Horizontal = true
	bars.Color = plotutil.Color(0)
	p.Add(bars)
	p.NominalY(names...)
	return p, nil
}

// Predictions plots predicted against observed values of a regression
// last fit, with the identity line.
func Predictions(ff *tune.FinalFit) (*plot.Plot, error) {
	if len(ff.Predictions) == 0 || ff.Predictions[0].Class != "" {
		return nil, errors.NewValidationError("predictions", "observed vs predicted needs regression predictions", nil)
	}
	xys := make(plotter.XYs, len(ff.Predictions))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, r := range ff.Predictions {
		xys[i] = plotter.XY{X: r.Truth, Y: r.Estimate}
		lo = math.Min(lo, math.Min(r.Truth, r.Estimate))
		hi = math.Max(hi, math.Max(r.Truth, r.Estimate))
	}

	p := plot.New()
	p.Title.Text = ff.Workflow.WorkflowID
	p.X.Label.Text = "observed"
	p.Y.Label.Text = "predicted"
	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, errors.Wrap(err, "autoplot")
	}
	identity, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return nil, errors.Wrap(err, "autoplot")
	}
	identity.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(scatter, identity)
	return p, nil
}

// Save writes p to path; the format follows the extension (.png, .svg,
// .pdf, ...).
func Save(p *plot.Plot, path string, w, h vg.Length) error {
	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}
