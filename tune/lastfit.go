package tune

import (
	"context"
	"time"

	"github.com/YuminosukeSato/tidytune/explain"
	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/modelspec"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
	"github.com/YuminosukeSato/tidytune/resample"
	"github.com/YuminosukeSato/tidytune/workflow"
)

// ImportanceKind selects how LastFit computes variable importance.
type ImportanceKind int

const (
	NoImportance ImportanceKind = iota
	// NativeImportance uses the engine's own measure.
	NativeImportance
	// PermutationImportance shuffles baked training predictors.
	PermutationImportance
)

// LastFitOptions configures LastFit.
type LastFitOptions struct {
	Importance ImportanceKind
	// Permutation configures PermutationImportance.
	Permutation explain.Options
	Logger      log.Logger
}

// PredictionRow is the prediction for one test row.
type PredictionRow struct {
	// Row is the index in the data the split was made from.
	Row   int
	Truth float64
	// Estimate is the numeric prediction, or the predicted class index.
	Estimate float64
	// Class and TruthClass are the level names for classification.
	Class      string
	TruthClass string
	// Prob has one entry per outcome level.
	Prob []float64
}

// FinalFit is the outcome of the final evaluation.
type FinalFit struct {
	Workflow    *workflow.Fitted
	Metrics     []metrics.Estimate
	Predictions []PredictionRow
	Importance  []explain.Importance
}

// LastFit pins wf to p, fits it on the whole training set and evaluates it
// once on the test set. The split's test rows are read here and nowhere
// else; a second call on the same split returns ErrTestSetConsumed.
func LastFit(ctx context.Context, wf *workflow.Workflow, p param.Point, split *resample.Split, ms metrics.Set, opts LastFitOptions) (*FinalFit, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	logger = logger.With(log.WorkflowIDKey, wf.ID, log.PhaseKey, log.PhaseLastFit)

	if split.TestConsumed() {
		return nil, errors.WithStack(errors.ErrTestSetConsumed)
	}
	if len(ms) == 0 {
		ms = metrics.Defaults(wf.Mode())
	}
	if err := ms.Check(wf.Mode()); err != nil {
		return nil, err
	}
	final, err := workflow.Finalize(wf, p)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	train := split.Training()
	fitted, err := final.Fit(train, nil)
	if err != nil {
		return nil, errors.Wrap(err, "last fit")
	}

	test, err := split.Testing()
	if err != nil {
		return nil, err
	}
	pred, err := fitted.Predict(test)
	if err != nil {
		return nil, err
	}
	truth, err := fitted.Truth(test)
	if err != nil {
		return nil, err
	}
	est, err := ms.Evaluate(truth, pred)
	if err != nil {
		return nil, err
	}

	out := &FinalFit{Workflow: fitted, Metrics: est, Predictions: predictionRows(fitted, split.TestIndices(), truth, pred)}

	switch opts.Importance {
	case NativeImportance:
		if out.Importance, err = explain.Native(fitted); err != nil {
			return nil, err
		}
	case PermutationImportance:
		if out.Importance, err = explain.Permutation(ctx, fitted, train, ms[0], opts.Permutation); err != nil {
			return nil, err
		}
	}

	fields := []any{log.DurationMsKey, time.Since(start).Milliseconds(), log.SamplesKey, test.NRows()}
	for _, e := range est {
		fields = append(fields, e.Metric, e.Value)
	}
	logger.Info("last fit evaluated on test set", fields...)
	return out, nil
}

func predictionRows(f *workflow.Fitted, rows []int, truth []float64, pred metrics.Predictions) []PredictionRow {
	out := make([]PredictionRow, len(truth))
	for i := range truth {
		r := PredictionRow{Row: rows[i], Truth: truth[i]}
		if f.Mode == modelspec.Regression {
			r.Estimate = pred.Numeric[i]
		} else {
			r.Estimate = pred.Class[i]
			r.Class = f.Label(pred.Class[i])
			r.TruthClass = f.Label(truth[i])
			if pred.Prob != nil {
				r.Prob = append([]float64(nil), pred.Prob.RawRowView(i)...)
			}
		}
		out[i] = r
	}
	return out
}
