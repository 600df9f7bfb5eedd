package tune

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/param"
)

// MetricResult is one metric computed on one resample for one grid point.
type MetricResult struct {
	ConfigID  string
	Point     param.Point
	Fold      string
	Metric    string
	Estimator string
	Value     float64
}

// Note records a failed unit.
type Note struct {
	ConfigID string
	Fold     string
	Stage    string
	Message  string
}

// RaceEntry records the elimination of a grid point.
type RaceEntry struct {
	ConfigID string
	// AfterFold is the number of resamples completed at elimination.
	AfterFold int
	Mean      float64
	BestMean  float64
	PValue    float64
}

// Results holds everything a tuning run produced for one workflow.
type Results struct {
	RunID      string
	WorkflowID string
	// Model is the model type, e.g. "logistic_reg".
	Model string
	// MetricSet is the metrics evaluated, in order; the first is the default
	// for ranking.
	MetricSet metrics.Set `json:"-"`
	Metrics   []MetricResult
	Notes     []Note
	RaceLog   []RaceEntry
	Grid      *param.Grid
	// ConfigIDs[i] names Grid.Points[i].
	ConfigIDs []string
	// Folds is the number of resamples.
	Folds int
}

// Summary aggregates a metric over resamples for one grid point.
type Summary struct {
	ConfigID  string
	Point     param.Point
	Metric    string
	Estimator string
	Mean      float64
	// StdErr is sd/sqrt(N), zero when N is 1.
	StdErr float64
	// N counts resamples with a defined value.
	N int
	// Eliminated marks points removed by racing; their N is partial.
	Eliminated bool
}

// Summarize computes mean and standard error per grid point and metric.
// Undefined (NaN) estimates are skipped. Rows are ordered by config id, then
// by the order of the metric set.
func (r *Results) Summarize() []Summary {
	type key struct{ config, metric string }
	values := map[key][]float64{}
	first := map[key]MetricResult{}
	for _, m := range r.Metrics {
		k := key{m.ConfigID, m.Metric}
		if _, ok := first[k]; !ok {
			first[k] = m
		}
		if !math.IsNaN(m.Value) {
			values[k] = append(values[k], m.Value)
		}
	}
	eliminated := map[string]bool{}
	for _, e := range r.RaceLog {
		eliminated[e.ConfigID] = true
	}
	order := map[string]int{}
	for i, m := range r.MetricSet {
		order[m.Name] = i
	}

	out := make([]Summary, 0, len(first))
	for k, m := range first {
		v := values[k]
		s := Summary{
			ConfigID:   k.config,
			Point:      m.Point,
			Metric:     k.metric,
			Estimator:  m.Estimator,
			N:          len(v),
			Mean:       math.NaN(),
			Eliminated: eliminated[k.config],
		}
		if len(v) > 0 {
			s.Mean = stat.Mean(v, nil)
		}
		if len(v) > 1 {
			s.StdErr = stat.StdDev(v, nil) / math.Sqrt(float64(len(v)))
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConfigID != out[j].ConfigID {
			return out[i].ConfigID < out[j].ConfigID
		}
		return order[out[i].Metric] < order[out[j].Metric]
	})
	return out
}

// ConfigPoint returns the grid point with the given config id.
func (r *Results) ConfigPoint(id string) (param.Point, bool) {
	for i, c := range r.ConfigIDs {
		if c == id {
			return r.Grid.Points[i].Clone(), true
		}
	}
	return nil, false
}

// metric resolves a metric name against the set; "" is the first metric.
func (r *Results) metric(name string) (metrics.Metric, error) {
	if name == "" {
		if len(r.MetricSet) == 0 {
			return metrics.Metric{}, errNoMetrics
		}
		return r.MetricSet[0], nil
	}
	m, ok := r.MetricSet.Get(name)
	if !ok {
		return metrics.Metric{}, metricNotEvaluated(name)
	}
	return m, nil
}
