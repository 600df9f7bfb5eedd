package tune

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/YuminosukeSato/tidytune/core/parallel"
	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/modelspec"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
	"github.com/YuminosukeSato/tidytune/recipe"
	"github.com/YuminosukeSato/tidytune/workflow"
)

var errNoMetrics = errors.New("results carry no metrics")

func metricNotEvaluated(name string) error {
	return errors.NewMetricError(name, "metric was not evaluated in this run")
}

// group is a set of grid points sharing the same preprocessing values, so
// one trained recipe per fold serves all of them.
type group struct {
	pre    param.Point
	points []int
}

// unit is one fold and one group: the smallest piece of work handed to a
// worker.
type unit struct {
	fold  int
	group int
	// points is the subset of the group's points still alive.
	points []int
}

type tuner struct {
	wf      *workflow.Workflow
	rs      *Resamples
	grid    *param.Grid
	ids     []string
	ms      metrics.Set
	ctrl    Control
	levels  []string
	groups  []group
	logger  log.Logger
	results [][][]MetricResult // [point][fold]
	mu      sync.Mutex
	notes   []Note
	failed  map[int]bool
}

// TuneGrid evaluates every point of grid on every resample. For each
// resample the recipe is prepped on the analysis rows only, the model is
// fitted on the baked analysis rows, and every metric is computed on the
// baked assessment rows. A nil grid is allowed when the workflow has no
// tunable parameters.
func TuneGrid(ctx context.Context, wf *workflow.Workflow, rs *Resamples, grid *param.Grid, ms metrics.Set, ctrl Control) (*Results, error) {
	ctrl = ctrl.withDefaults()
	t, err := newTuner(wf, rs, grid, ms, ctrl)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	t.logger.Info("tuning started",
		log.GridSizeKey, len(t.grid.Points),
		log.SamplesKey, rs.Data.NRows(),
		log.WorkersKey, parallel.Workers(ctrl.Workers),
	)

	var raceLog []RaceEntry
	if ctrl.Race != nil {
		raceLog, err = t.race(ctx)
	} else {
		err = t.run(ctx, seq(len(rs.Folds)), t.alive())
	}
	if err != nil {
		return nil, err
	}

	res := t.collect(raceLog)
	if len(res.Metrics) == 0 {
		return nil, errors.Wrapf(errors.ErrNoResults, "workflow %s: %d of %d grid points failed", wf.ID, len(t.failed), len(t.grid.Points))
	}
	t.logger.Info("tuning finished",
		log.DurationMsKey, time.Since(start).Milliseconds(),
		log.RaceEliminatedKey, len(raceLog),
		"notes", len(res.Notes),
	)

	if ctrl.Journal != nil {
		if err := ctrl.Journal.SaveResults(ctx, res); err != nil {
			return nil, errors.Wrap(err, "journal")
		}
	}
	return res, nil
}

// FitResamples evaluates a workflow without tunable parameters.
func FitResamples(ctx context.Context, wf *workflow.Workflow, rs *Resamples, ms metrics.Set, ctrl Control) (*Results, error) {
	return TuneGrid(ctx, wf, rs, nil, ms, ctrl)
}

func newTuner(wf *workflow.Workflow, rs *Resamples, grid *param.Grid, ms metrics.Set, ctrl Control) (*tuner, error) {
	if rs == nil || len(rs.Folds) == 0 {
		return nil, errors.NewValidationError("resamples", "at least one resample is required", 0)
	}
	if len(ms) == 0 {
		ms = metrics.Defaults(wf.Mode())
	}
	if err := ms.Check(wf.Mode()); err != nil {
		return nil, err
	}
	open, err := wf.Tunable()
	if err != nil {
		return nil, err
	}
	if grid == nil {
		if len(open) > 0 {
			return nil, errors.NewValidationError("grid", "workflow has tunable parameters but no grid was given", open.IDs())
		}
		grid = &param.Grid{Points: []param.Point{{}}}
	}
	if len(grid.Points) == 0 {
		return nil, errors.NewValidationError("grid", "grid has no points", 0)
	}
	for i, pt := range grid.Points {
		for _, p := range open {
			if _, ok := pt[p.ID]; !ok {
				return nil, errors.NewValidationError(p.ID, fmt.Sprintf("grid point %d has no value for a tunable parameter", i+1), pt.String())
			}
		}
	}
	if err := dataset.RequireColumns(rs.Data, wf.Outcome()); err != nil {
		return nil, err
	}

	var levels []string
	if wf.Mode() == modelspec.Classification {
		if levels, err = rs.Data.Levels(wf.Outcome()); err != nil {
			return nil, err
		}
	}

	t := &tuner{
		wf:     wf,
		rs:     rs,
		grid:   grid,
		ids:    grid.ConfigIDs(wf.IsPreprocessor),
		ms:     ms,
		ctrl:   ctrl,
		levels: levels,
		failed: map[int]bool{},
		logger: ctrl.Logger.With(log.WorkflowIDKey, wf.ID, log.RunIDKey, ctrl.RunID),
	}
	t.results = make([][][]MetricResult, len(grid.Points))
	for i := range t.results {
		t.results[i] = make([][]MetricResult, len(rs.Folds))
	}

	byKey := map[string]int{}
	for i, pt := range grid.Points {
		pre := pt.Restrict(wf.IsPreprocessor)
		k := pre.Key()
		gi, ok := byKey[k]
		if !ok {
			gi = len(t.groups)
			byKey[k] = gi
			t.groups = append(t.groups, group{pre: pre})
		}
		t.groups[gi].points = append(t.groups[gi].points, i)
	}
	return t, nil
}

// alive returns the points not yet failed.
func (t *tuner) alive() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int
	for i := range t.grid.Points {
		if !t.failed[i] {
			out = append(out, i)
		}
	}
	return out
}

// run evaluates the given points on the given folds.
func (t *tuner) run(ctx context.Context, folds []int, points []int) error {
	keep := make(map[int]bool, len(points))
	for _, p := range points {
		keep[p] = true
	}
	var units []unit
	for _, f := range folds {
		for gi, g := range t.groups {
			var pts []int
			for _, p := range g.points {
				if keep[p] {
					pts = append(pts, p)
				}
			}
			if len(pts) > 0 {
				units = append(units, unit{fold: f, group: gi, points: pts})
			}
		}
	}
	return parallel.ForEach(ctx, len(units), t.ctrl.Workers, func(ctx context.Context, i int) error {
		return t.evaluate(ctx, units[i])
	})
}

// evaluate preps the recipe once for the unit's fold and group, then fits
// and scores every point.
func (t *tuner) evaluate(ctx context.Context, u unit) error {
	fold := t.rs.Folds[u.fold]
	label := fold.Label()
	analysis := t.rs.Data.Subset(fold.Analysis)
	assessment := t.rs.Data.Subset(fold.Assessment)

	prepped, bakedAnalysis, bakedAssessment, err := t.prep(u, analysis, assessment)
	if err != nil {
		return t.fail(u.points, label, "preprocessor", err)
	}

	for _, pi := range u.points {
		if err := ctx.Err(); err != nil {
			return err
		}
		pt := t.grid.Points[pi]
		var scores []metrics.Estimate
		err := errors.SafeExecute("tune.evaluate", func() error {
			fitted, err := t.wf.FitModel(prepped, bakedAnalysis, pt, workflow.WithLevels(t.levels))
			if err != nil {
				return err
			}
			pred, err := fitted.PredictBaked(bakedAssessment)
			if err != nil {
				return err
			}
			truth, err := fitted.Truth(bakedAssessment)
			if err != nil {
				return err
			}
			scores, err = t.ms.Evaluate(truth, pred)
			return err
		})
		if err != nil {
			if ferr := t.fail([]int{pi}, label, "model", err); ferr != nil {
				return ferr
			}
			continue
		}

		rows := make([]MetricResult, len(scores))
		for k, s := range scores {
			rows[k] = MetricResult{
				ConfigID:  t.ids[pi],
				Point:     pt,
				Fold:      label,
				Metric:    s.Metric,
				Estimator: s.Estimator,
				Value:     s.Value,
			}
		}
		t.mu.Lock()
		t.results[pi][u.fold] = rows
		t.mu.Unlock()
		t.logger.Debug("unit evaluated", log.ConfigIDKey, t.ids[pi], log.FoldIDKey, label)
	}
	return nil
}

// prep trains the recipe for a unit under panic recovery and bakes both
// sides of the fold.
func (t *tuner) prep(u unit, analysis, assessment *dataset.Frame) (*recipe.Prepped, *dataset.Frame, *dataset.Frame, error) {
	var (
		prepped                        *recipe.Prepped
		bakedAnalysis, bakedAssessment *dataset.Frame
	)
	err := errors.SafeExecute("tune.prep", func() error {
		p, baked, err := t.wf.Prep(analysis, t.groups[u.group].pre)
		if err != nil {
			return err
		}
		assess, err := p.Bake(assessment)
		if err != nil {
			return err
		}
		prepped, bakedAnalysis, bakedAssessment = p, baked, assess
		return nil
	})
	return prepped, bakedAnalysis, bakedAssessment, err
}

// fail records a failure for the given points. With FailFast the error is
// returned and aborts the run.
func (t *tuner) fail(points []int, fold, stage string, err error) error {
	if t.ctrl.FailFast {
		return errors.Wrapf(err, "%s %s on %s", stage, t.ids[points[0]], fold)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range points {
		t.failed[p] = true
		t.notes = append(t.notes, Note{ConfigID: t.ids[p], Fold: fold, Stage: stage, Message: err.Error()})
	}
	t.logger.Warn("grid point failed",
		log.ConfigIDKey, t.ids[points[0]],
		log.FoldIDKey, fold,
		log.PhaseKey, stage,
		"error", err,
	)
	return nil
}

// collect flattens per-point results, dropping failed points.
func (t *tuner) collect(raceLog []RaceEntry) *Results {
	res := &Results{
		RunID:      t.ctrl.RunID,
		WorkflowID: t.wf.ID,
		Model:      t.wf.Spec.Name,
		MetricSet:  t.ms,
		Notes:      t.notes,
		RaceLog:    raceLog,
		Grid:       t.grid,
		ConfigIDs:  t.ids,
		Folds:      len(t.rs.Folds),
	}
	order := seq(len(t.grid.Points))
	sort.SliceStable(order, func(a, b int) bool { return t.ids[order[a]] < t.ids[order[b]] })
	for _, pi := range order {
		if t.failed[pi] {
			continue
		}
		for _, rows := range t.results[pi] {
			res.Metrics = append(res.Metrics, rows...)
		}
	}
	sort.SliceStable(res.Notes, func(i, j int) bool {
		if res.Notes[i].ConfigID != res.Notes[j].ConfigID {
			return res.Notes[i].ConfigID < res.Notes[j].ConfigID
		}
		return res.Notes[i].Fold < res.Notes[j].Fold
	})
	return res
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
