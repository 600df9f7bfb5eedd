package tune

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/pkg/log"
)

// race evaluates every point on the burn-in folds, then adds one fold at a
// time. Before each added fold the surviving points are tested and the
// clearly worse ones are dropped. Eliminated points keep the results they
// already have.
func (t *tuner) race(ctx context.Context) ([]RaceEntry, error) {
	rc, err := t.ctrl.Race.withDefaults()
	if err != nil {
		return nil, err
	}
	metric := t.ms[0]
	if rc.Metric != "" {
		m, ok := t.ms.Get(rc.Metric)
		if !ok {
			return nil, metricNotEvaluated(rc.Metric)
		}
		metric = m
	}

	nFolds := len(t.rs.Folds)
	completed := rc.BurnIn
	if completed > nFolds {
		completed = nFolds
	}
	if err := t.run(ctx, seq(completed), t.alive()); err != nil {
		return nil, err
	}
	remaining := t.alive()

	var entries []RaceEntry
	for completed < nFolds {
		if len(remaining) > 1 {
			out := t.raceTest(remaining, completed, metric, rc.Alpha)
			if len(out) > 0 {
				gone := make(map[string]bool, len(out))
				for _, e := range out {
					gone[e.ConfigID] = true
				}
				var keep []int
				for _, p := range remaining {
					if !gone[t.ids[p]] {
						keep = append(keep, p)
					}
				}
				remaining = keep
				entries = append(entries, out...)
				t.logger.Info("racing eliminated grid points",
					log.RaceEliminatedKey, len(out),
					log.RaceRemainingKey, len(remaining),
					log.FoldIDKey, t.rs.Folds[completed-1].Label(),
				)
			}
		}
		if err := t.run(ctx, []int{completed}, remaining); err != nil {
			return nil, err
		}
		completed++
		remaining = t.survivors(remaining)
	}
	return entries, nil
}

// survivors drops points that failed since the last fold.
func (t *tuner) survivors(points []int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int
	for _, p := range points {
		if !t.failed[p] {
			out = append(out, p)
		}
	}
	return out
}

// raceTest runs a two-way (config x fold) ANOVA on the first completed
// folds. When the config effect is significant, every point is compared
// with the current best by a one-sided paired t-test and those with
// p < alpha are returned for elimination. Folds where any point has an
// undefined value are left out of both tests.
func (t *tuner) raceTest(points []int, completed int, metric metrics.Metric, alpha float64) []RaceEntry {
	t.mu.Lock()
	var folds []int
	values := make([][]float64, len(points))
	for f := 0; f < completed; f++ {
		col := make([]float64, len(points))
		ok := true
		for i, p := range points {
			v, found := metricValue(t.results[p][f], metric.Name)
			if !found || math.IsNaN(v) {
				ok = false
				break
			}
			col[i] = v
		}
		if !ok {
			continue
		}
		folds = append(folds, f)
		for i := range points {
			values[i] = append(values[i], col[i])
		}
	}
	t.mu.Unlock()

	k, b := len(points), len(folds)
	if k < 2 || b < 2 {
		return nil
	}
	if p := anovaPValue(values); p >= alpha {
		t.logger.Debug("racing: no significant config effect", log.RacePValueKey, p)
		return nil
	}

	means := make([]float64, k)
	best := 0
	for i := range values {
		means[i] = stat.Mean(values[i], nil)
		if metric.Direction.Better(means[i], means[best]) {
			best = i
		}
	}

	var out []RaceEntry
	diff := make([]float64, b)
	for i := range values {
		if i == best {
			continue
		}
		for j := range diff {
			if metric.Direction == metrics.Maximize {
				diff[j] = values[best][j] - values[i][j]
			} else {
				diff[j] = values[i][j] - values[best][j]
			}
		}
		p := pairedPValue(diff)
		if p < alpha {
			out = append(out, RaceEntry{
				ConfigID:  t.ids[points[i]],
				AfterFold: completed,
				Mean:      means[i],
				BestMean:  means[best],
				PValue:    p,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConfigID < out[j].ConfigID })
	return out
}

func metricValue(rows []MetricResult, name string) (float64, bool) {
	for _, r := range rows {
		if r.Metric == name {
			return r.Value, true
		}
	}
	return 0, false
}

// anovaPValue tests for a row (config) effect in a randomized block design
// without replication. values[i][j] is config i on block (fold) j.
func anovaPValue(values [][]float64) float64 {
	k, b := len(values), len(values[0])
	var grand float64
	rowMean := make([]float64, k)
	colMean := make([]float64, b)
	for i := range values {
		for j, v := range values[i] {
			grand += v
			rowMean[i] += v / float64(b)
			colMean[j] += v / float64(k)
		}
	}
	grand /= float64(k * b)

	var ssTotal, ssRow, ssCol float64
	for i := range values {
		ssRow += float64(b) * (rowMean[i] - grand) * (rowMean[i] - grand)
		for _, v := range values[i] {
			ssTotal += (v - grand) * (v - grand)
		}
	}
	for j := range colMean {
		ssCol += float64(k) * (colMean[j] - grand) * (colMean[j] - grand)
	}
	ssErr := ssTotal - ssRow - ssCol

	df1 := float64(k - 1)
	df2 := float64((k - 1) * (b - 1))
	if ssErr <= 1e-12*math.Max(ssTotal, 1) {
		if ssRow > 0 {
			return 0
		}
		return 1
	}
	f := (ssRow / df1) / (ssErr / df2)
	return 1 - distuv.F{D1: df1, D2: df2}.CDF(f)
}

// pairedPValue is the one-sided p-value for mean(diff) > 0.
func pairedPValue(diff []float64) float64 {
	mean, sd := stat.MeanStdDev(diff, nil)
	if sd == 0 {
		if mean > 0 {
			return 0
		}
		return 1
	}
	n := float64(len(diff))
	tStat := mean / (sd / math.Sqrt(n))
	return 1 - distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 1}.CDF(tStat)
}
