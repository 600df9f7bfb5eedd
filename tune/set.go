package tune

import (
	"context"
	"sort"

	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
	"github.com/YuminosukeSato/tidytune/workflow"
)

// GridFunc builds the grid for one workflow from its open parameters. It
// is not called for workflows without tunable parameters.
type GridFunc func(wf *workflow.Workflow, params param.Set) (*param.Grid, error)

// RegularGrid returns a GridFunc producing regular grids.
func RegularGrid(levels int) GridFunc {
	return func(_ *workflow.Workflow, ps param.Set) (*param.Grid, error) {
		return param.Regular(ps, levels)
	}
}

// LatinHypercubeGrid returns a GridFunc producing space-filling grids.
func LatinHypercubeGrid(size int, seed uint64) GridFunc {
	return func(_ *workflow.Workflow, ps param.Set) (*param.Grid, error) {
		return param.LatinHypercube(ps, size, seed)
	}
}

// RandomGrid returns a GridFunc producing random grids.
func RandomGrid(size int, seed uint64) GridFunc {
	return func(_ *workflow.Workflow, ps param.Set) (*param.Grid, error) {
		return param.Random(ps, size, seed)
	}
}

// SetResults holds the results of every workflow of a candidate set.
type SetResults struct {
	RunID   string
	Results []*Results
	// Failed maps workflow ids to the error that removed them.
	Failed map[string]string
}

// Get returns the results of one workflow.
func (s *SetResults) Get(id string) (*Results, error) {
	for _, r := range s.Results {
		if r.WorkflowID == id {
			return r, nil
		}
	}
	return nil, errors.NewValidationError("id", "no results for workflow", id)
}

// TuneSet tunes every workflow of set on the same resamples. Workflows run
// one after another, each using ctrl.Workers for its own units. A workflow
// with no successful grid point is recorded in Failed unless FailFast.
func TuneSet(ctx context.Context, set *workflow.Set, rs *Resamples, grid GridFunc, ms metrics.Set, ctrl Control) (*SetResults, error) {
	ctrl = ctrl.withDefaults()
	out := &SetResults{RunID: ctrl.RunID, Failed: map[string]string{}}
	for _, wf := range set.Workflows {
		open, err := wf.Tunable()
		if err != nil {
			return nil, err
		}
		var g *param.Grid
		if len(open) > 0 {
			if grid == nil {
				return nil, errors.NewValidationError("grid", "workflow has tunable parameters but no grid function was given", wf.ID)
			}
			if g, err = grid(wf, open); err != nil {
				return nil, errors.Wrapf(err, "grid for %s", wf.ID)
			}
		}

		wms := ms
		if len(wms) == 0 {
			wms = metrics.Defaults(wf.Mode())
		}
		res, err := TuneGrid(ctx, wf, rs, g, wms, ctrl)
		if err != nil {
			if ctrl.FailFast || !errors.Is(err, errors.ErrNoResults) {
				return nil, errors.Wrapf(err, "workflow %s", wf.ID)
			}
			out.Failed[wf.ID] = err.Error()
			ctrl.Logger.Warn("workflow produced no results", log.WorkflowIDKey, wf.ID, "error", err)
			continue
		}
		out.Results = append(out.Results, res)
	}
	if len(out.Results) == 0 {
		return nil, errors.Wrap(errors.ErrNoResults, "every workflow failed")
	}
	return out, nil
}

// Rank is one row of RankResults.
type Rank struct {
	Rank       int
	WorkflowID string
	Model      string
	Summary
}

// RankResults ranks grid points across workflows by metric ("" for the
// first metric of each workflow's set). With selectBest only the best point
// of each workflow is listed.
func RankResults(sr *SetResults, metric string, selectBest bool) ([]Rank, error) {
	var (
		rows []Rank
		dir  metrics.Direction
		name string
	)
	for _, res := range sr.Results {
		cands, m, err := candidates(res, metric)
		if err != nil {
			if errors.Is(err, errors.ErrNoResults) {
				continue
			}
			return nil, err
		}
		if name == "" {
			name, dir = m.Name, m.Direction
		} else if m.Name != name {
			return nil, errors.NewMetricError(m.Name, "workflows were ranked by different metrics; name one explicitly")
		}
		if selectBest {
			cands = cands[:1]
		}
		for _, c := range cands {
			rows = append(rows, Rank{WorkflowID: res.WorkflowID, Model: res.Model, Summary: c})
		}
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(errors.ErrNoResults, "nothing to rank")
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Mean != rows[j].Mean {
			return dir.Better(rows[i].Mean, rows[j].Mean)
		}
		if rows[i].WorkflowID != rows[j].WorkflowID {
			return rows[i].WorkflowID < rows[j].WorkflowID
		}
		return rows[i].ConfigID < rows[j].ConfigID
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}
