// Package explain computes variable importance for fitted workflows.
//
// Native reads the importance an engine reports itself (split gains for
// trees, absolute coefficients for linear models). Permutation is model
// agnostic: it shuffles one baked predictor at a time and measures how much
// a metric degrades.
package explain

import (
	"context"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tidytune/core/parallel"
	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/workflow"
)

// Importance is the score of one baked predictor.
type Importance struct {
	Variable   string
	Importance float64
	// StdDev is the spread over permutation repeats; zero for Native.
	StdDev float64
}

// Native returns the engine's own importance, largest first. Engines that
// have none return ErrNotImplemented.
func Native(f *workflow.Fitted) ([]Importance, error) {
	vals, ok, err := f.Model.Importance()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotImplemented, "%s has no native variable importance", f.Model.Spec.Name)
	}
	names := f.Prepped.Predictors()
	if len(vals) != len(names) {
		return nil, errors.NewDimensionError("explain.Native", len(names), len(vals), 1)
	}
	out := make([]Importance, len(names))
	for i, n := range names {
		out[i] = Importance{Variable: n, Importance: vals[i]}
	}
	sortImportance(out)
	return out, nil
}

// Options configures Permutation.
type Options struct {
	// Repeats is the number of shuffles per predictor. Default 5.
	Repeats int
	Seed    uint64
	// Workers bounds concurrency; zero means one per CPU.
	Workers int
}

// Permutation scores each baked predictor by the loss in metric when its
// values are shuffled. Positive values mean the model relies on the
// predictor, whichever direction the metric is optimized in.
func Permutation(ctx context.Context, f *workflow.Fitted, data *dataset.Frame, metric metrics.Metric, opts Options) ([]Importance, error) {
	if opts.Repeats == 0 {
		opts.Repeats = 5
	}
	if opts.Repeats < 1 {
		return nil, errors.NewValidationError("repeats", "must be at least 1", opts.Repeats)
	}

	X, err := f.Bake(data)
	if err != nil {
		return nil, err
	}
	truth, err := f.Truth(data)
	if err != nil {
		return nil, err
	}
	set := metrics.Set{metric}
	score := func(X *mat.Dense) (float64, error) {
		pred, err := f.PredictMatrix(X)
		if err != nil {
			return 0, err
		}
		est, err := set.Evaluate(truth, pred)
		if err != nil {
			return 0, err
		}
		return est[0].Value, nil
	}
	base, err := score(X)
	if err != nil {
		return nil, err
	}

	names := f.Prepped.Predictors()
	rows, _ := X.Dims()
	out := make([]Importance, len(names))
	err = parallel.ForEach(ctx, len(names), opts.Workers, func(ctx context.Context, j int) error {
		rng := rand.New(rand.NewPCG(opts.Seed, uint64(j)))
		shuffled := mat.DenseCopyOf(X)
		col := mat.Col(nil, j, X)
		losses := make([]float64, opts.Repeats)
		for r := range losses {
			if err := ctx.Err(); err != nil {
				return err
			}
			perm := rng.Perm(rows)
			for i, src := range perm {
				shuffled.Set(i, j, col[src])
			}
			v, err := score(shuffled)
			if err != nil {
				return err
			}
			if metric.Direction == metrics.Maximize {
				losses[r] = base - v
			} else {
				losses[r] = v - base
			}
		}
		mean, sd := stat.MeanStdDev(losses, nil)
		if opts.Repeats == 1 {
			sd = 0
		}
		out[j] = Importance{Variable: names[j], Importance: mean, StdDev: sd}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortImportance(out)
	return out, nil
}

func sortImportance(imps []Importance) {
	sort.SliceStable(imps, func(i, j int) bool {
		if imps[i].Importance != imps[j].Importance {
			return imps[i].Importance > imps[j].Importance
		}
		return imps[i].Variable < imps[j].Variable
	})
}
