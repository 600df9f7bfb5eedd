// Package workflow binds a preprocessing recipe to a model specification.
//
// A Workflow is fitted as a unit: the recipe is prepped on the rows given
// to Fit, those rows are baked, and the model is fitted on the result. The
// same trained recipe is then applied to any data passed to Predict, so
// nothing about new data leaks into preprocessing.
package workflow

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/modelspec"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/recipe"
)

// Workflow is a candidate: one recipe and one model spec.
type Workflow struct {
	ID     string
	Recipe *recipe.Recipe
	Spec   modelspec.Spec
	// Fixed holds tunable values pinned by Finalize.
	Fixed param.Point
}

// New returns a workflow. An empty id becomes "workflow".
func New(id string, rec *recipe.Recipe, spec modelspec.Spec) *Workflow {
	if id == "" {
		id = "workflow"
	}
	return &Workflow{ID: id, Recipe: rec, Spec: spec, Fixed: param.Point{}}
}

// Outcome returns the outcome column name.
func (w *Workflow) Outcome() string { return w.Recipe.Outcome() }

// Mode returns the model mode.
func (w *Workflow) Mode() modelspec.Mode { return w.Spec.Mode }

// Tunable merges the recipe and model parameters that are still open.
// The same id declared by both is a ValidationError.
func (w *Workflow) Tunable() (param.Set, error) {
	var all param.Set
	for _, p := range append(w.Recipe.Tunable(), w.Spec.Tunable()...) {
		if _, fixed := w.Fixed[p.ID]; !fixed {
			all = append(all, p)
		}
	}
	return param.NewSet(all...)
}

// IsPreprocessor reports whether id is a recipe parameter.
func (w *Workflow) IsPreprocessor(id string) bool {
	_, ok := w.Recipe.Tunable().Get(id)
	return ok
}

// Finalize returns a copy of w whose tunable parameters are pinned to the
// values in p. Entries of p that w does not tune are ignored.
func Finalize(w *Workflow, p param.Point) (*Workflow, error) {
	open, err := w.Tunable()
	if err != nil {
		return nil, err
	}
	fixed := w.Fixed.Clone()
	for _, t := range open {
		v, ok := p[t.ID]
		if !ok {
			return nil, errors.NewValidationError(t.ID, "no value to finalize with", p.String())
		}
		fixed[t.ID] = v
	}
	out := *w
	out.Fixed = fixed
	return &out, nil
}

type fitConfig struct {
	levels []string
}

// FitOption configures Fit.
type FitOption func(*fitConfig)

// WithLevels fixes the outcome levels of a classification workflow. The
// tuner passes the levels of the full training set so that every resample
// encodes classes the same way, even when a fold lacks one.
func WithLevels(levels []string) FitOption {
	return func(c *fitConfig) { c.levels = append([]string(nil), levels...) }
}

// Fit preps the recipe on f, bakes f and fits the model.
func (w *Workflow) Fit(f *dataset.Frame, p param.Point, opts ...FitOption) (*Fitted, error) {
	prepped, baked, err := w.Prep(f, p)
	if err != nil {
		return nil, err
	}
	return w.FitModel(prepped, baked, p, opts...)
}

// Prep trains the recipe on f and returns it with f baked. Only recipe
// parameters of p are used.
func (w *Workflow) Prep(f *dataset.Frame, p param.Point) (*recipe.Prepped, *dataset.Frame, error) {
	prepped, err := w.Recipe.Prep(f, w.Fixed.Merge(p))
	if err != nil {
		return nil, nil, err
	}
	baked, err := prepped.Bake(f)
	if err != nil {
		return nil, nil, err
	}
	return prepped, baked, nil
}

// FitModel fits the model on rows already baked by prepped. The tuner
// uses it to share one trained recipe across model parameter values.
func (w *Workflow) FitModel(prepped *recipe.Prepped, baked *dataset.Frame, p param.Point, opts ...FitOption) (*Fitted, error) {
	cfg := &fitConfig{}
	for _, o := range opts {
		o(cfg)
	}
	point := w.Fixed.Merge(p)

	levels := cfg.levels
	if w.Spec.Mode == modelspec.Classification && levels == nil {
		var err error
		if levels, err = baked.Levels(w.Outcome()); err != nil {
			return nil, err
		}
	}
	y, err := EncodeOutcome(baked, w.Outcome(), w.Spec.Mode, levels)
	if err != nil {
		return nil, err
	}
	X, err := predictorMatrix(baked, prepped.Predictors())
	if err != nil {
		return nil, err
	}
	m, err := w.Spec.Fit(X, y, point)
	if err != nil {
		return nil, err
	}
	return &Fitted{
		WorkflowID: w.ID,
		Outcome:    w.Outcome(),
		Mode:       w.Spec.Mode,
		Levels:     levels,
		Point:      point.Clone(),
		Prepped:    prepped,
		Model:      m,
	}, nil
}

// Fitted is a trained workflow. All fields are exported so that it can be
// serialized with encoding/gob.
type Fitted struct {
	WorkflowID string
	Outcome    string
	Mode       modelspec.Mode
	// Levels are the outcome classes; class index i is Levels[i] and the
	// first level is the event.
	Levels  []string
	Point   param.Point
	Prepped *recipe.Prepped
	Model   *modelspec.Fitted
}

// Recipe returns the trained recipe.
func (f *Fitted) Recipe() *recipe.Prepped { return f.Prepped }

// Params returns the parameter values the workflow was fitted with.
func (f *Fitted) Params() param.Point { return f.Point.Clone() }

// Predictors returns the raw columns new data must provide.
func (f *Fitted) Predictors() []string { return append([]string(nil), f.Prepped.Inputs...) }

// Bake applies the trained recipe and returns the predictor matrix.
func (f *Fitted) Bake(data *dataset.Frame) (*mat.Dense, error) {
	baked, err := f.Prepped.Bake(data)
	if err != nil {
		return nil, err
	}
	return predictorMatrix(baked, f.Prepped.Predictors())
}

// Predict bakes data with the trained recipe and predicts every row.
func (f *Fitted) Predict(data *dataset.Frame) (metrics.Predictions, error) {
	X, err := f.Bake(data)
	if err != nil {
		return metrics.Predictions{}, err
	}
	return f.PredictMatrix(X)
}

// PredictBaked predicts rows that were already baked by this workflow's
// recipe.
func (f *Fitted) PredictBaked(baked *dataset.Frame) (metrics.Predictions, error) {
	X, err := predictorMatrix(baked, f.Prepped.Predictors())
	if err != nil {
		return metrics.Predictions{}, err
	}
	return f.PredictMatrix(X)
}

// PredictMatrix predicts from an already baked predictor matrix.
func (f *Fitted) PredictMatrix(X *mat.Dense) (metrics.Predictions, error) {
	out, err := f.Model.Predict(X)
	if err != nil {
		return metrics.Predictions{}, err
	}
	if f.Mode == modelspec.Regression {
		return metrics.Predictions{Numeric: out}, nil
	}

	pred := metrics.Predictions{Class: out, Levels: append([]string(nil), f.Levels...)}
	raw, err := f.Model.PredictProba(X)
	if err != nil {
		var ve *errors.ValueError
		if errors.As(err, &ve) {
			return pred, nil
		}
		return metrics.Predictions{}, err
	}
	pred.Prob = expandProba(raw, f.Model.Classes(), len(f.Levels))
	return pred, nil
}

// Truth encodes the outcome column of data the way the model was trained.
func (f *Fitted) Truth(data *dataset.Frame) ([]float64, error) {
	return EncodeOutcome(data, f.Outcome, f.Mode, f.Levels)
}

// Label maps a class index back to its level.
func (f *Fitted) Label(class float64) string {
	i := int(class)
	if i < 0 || i >= len(f.Levels) {
		return ""
	}
	return f.Levels[i]
}

// expandProba places the engine's probability columns, which cover only the
// classes it saw, into a matrix with one column per outcome level.
func expandProba(raw *mat.Dense, classes []float64, k int) *mat.Dense {
	r, c := raw.Dims()
	if c == k {
		return raw
	}
	out := mat.NewDense(r, k, nil)
	for j := 0; j < c && j < len(classes); j++ {
		col := int(classes[j])
		for i := 0; i < r; i++ {
			out.Set(i, col, raw.At(i, j))
		}
	}
	return out
}

// EncodeOutcome returns the outcome as float64: the value for regression,
// the index into levels for classification. Missing or unknown values are
// a DataShapeError.
func EncodeOutcome(f *dataset.Frame, outcome string, mode modelspec.Mode, levels []string) ([]float64, error) {
	c, err := f.Column(outcome)
	if err != nil {
		return nil, err
	}
	if c.NACount() > 0 {
		return nil, errors.NewDataShapeError("EncodeOutcome", outcome, "outcome has missing values")
	}

	if mode == modelspec.Regression {
		if c.Kind != dataset.Numeric {
			return nil, errors.NewDataShapeError("EncodeOutcome", outcome, "regression needs a numeric outcome")
		}
		return append([]float64(nil), c.Num...), nil
	}

	if c.Kind != dataset.Nominal {
		return nil, errors.NewDataShapeError("EncodeOutcome", outcome, "classification needs a nominal outcome")
	}
	if len(levels) < 2 {
		return nil, errors.NewDataShapeError("EncodeOutcome", outcome, "classification needs at least two outcome levels")
	}
	index := make(map[string]int, len(levels))
	for i, l := range levels {
		index[l] = i
	}
	y := make([]float64, len(c.Str))
	for i, s := range c.Str {
		k, ok := index[s]
		if !ok {
			return nil, errors.NewDataShapeError("EncodeOutcome", outcome, "unknown outcome level "+s)
		}
		y[i] = float64(k)
	}
	return y, nil
}

func predictorMatrix(f *dataset.Frame, names []string) (*mat.Dense, error) {
	if len(names) == 0 {
		return nil, errors.NewDataShapeError("workflow", "", "no predictors left after preprocessing")
	}
	for _, n := range names {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		if c.Kind != dataset.Numeric {
			return nil, errors.NewDataShapeError("workflow", n, "predictor is not numeric; add an encoding step")
		}
		for _, v := range c.Num {
			if math.IsNaN(v) {
				return nil, errors.NewDataShapeError("workflow", n, "predictor has missing values; add an imputation step")
			}
		}
	}
	return f.Matrix(names)
}

// sortedIDs is used by Set for deterministic listings.
func sortedIDs(ws []*Workflow) []string {
	ids := make([]string, len(ws))
	for i, w := range ws {
		ids[i] = w.ID
	}
	sort.Strings(ids)
	return ids
}
