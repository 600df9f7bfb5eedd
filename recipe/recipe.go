// Package recipe defines preprocessing pipelines: an ordered list of steps,
// each estimated on an analysis set (Prep) and then applied to any frame of
// the same schema (Bake).
//
// The step set is closed. Every step is one of impute, encode, filter,
// scale or reduce, and implements the unexported prep method, so a
// Recipe can only contain steps from this package.
//
//	rec := recipe.New("yesno",
//	    recipe.ImputeMedian(recipe.AllNumericPredictors()),
//	    recipe.Normalize(recipe.AllNumericPredictors()),
//	    recipe.PCA(recipe.AllNumericPredictors(), recipe.Tune()),
//	)
//	prepped, err := rec.Prep(analysis, param.Point{"num_comp": 3})
//	baked, err := prepped.Bake(assessment)
package recipe

import (
	"encoding/gob"
	"fmt"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// StepKind is the family a step belongs to.
type StepKind int

const (
	KindImpute StepKind = iota
	KindEncode
	KindFilter
	KindScale
	KindReduce
)

func (k StepKind) String() string {
	return [...]string{"impute", "encode", "filter", "scale", "reduce"}[k]
}

// Step is an untrained preprocessing operation.
type Step interface {
	// Name identifies the step, e.g. "normalize".
	Name() string
	Kind() StepKind
	// Tunable lists the parameters this step reads from the grid point.
	Tunable() []param.Param
	prep(f *dataset.Frame, outcome string, p param.Point) (Trained, error)
}

// Trained is a step whose parameters have been estimated.
type Trained interface {
	Bake(f *dataset.Frame) (*dataset.Frame, error)
	Params() StepParams
}

// StepParams is an inspectable summary of what a step learned.
type StepParams struct {
	Step    string
	Columns []string
	// Values holds per-column numbers (fill values, means, scales, ...).
	Values map[string][]float64
	// Levels holds per-column level lists.
	Levels map[string][]string
	// Removed lists columns dropped by a filter.
	Removed []string
}

// Recipe is an ordered list of steps and the name of the outcome column.
type Recipe struct {
	outcome string
	steps   []Step
}

// New returns a recipe for predicting outcome.
func New(outcome string, steps ...Step) *Recipe {
	return &Recipe{outcome: outcome, steps: append([]Step(nil), steps...)}
}

// Add returns a new recipe with step appended.
func (r *Recipe) Add(step Step) *Recipe {
	return New(r.outcome, append(r.Steps(), step)...)
}

// Outcome returns the outcome column name.
func (r *Recipe) Outcome() string { return r.outcome }

// Steps returns a copy of the step list.
func (r *Recipe) Steps() []Step { return append([]Step(nil), r.steps...) }

// Tunable returns the parameters declared with Tune() across all steps.
func (r *Recipe) Tunable() param.Set {
	var out param.Set
	for _, s := range r.steps {
		out = append(out, s.Tunable()...)
	}
	return out
}

// Prep estimates every step, in order, on analysis only. The returned
// Prepped carries no reference to analysis.
func (r *Recipe) Prep(analysis *dataset.Frame, p param.Point) (*Prepped, error) {
	if !analysis.Has(r.outcome) {
		return nil, errors.NewMissingColumnError("Recipe.Prep", r.outcome)
	}
	if analysis.NRows() == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "Recipe.Prep")
	}

	inputs := predictorNames(analysis, r.outcome)
	cur := analysis
	trained := make([]Trained, 0, len(r.steps))
	for i, s := range r.steps {
		t, err := s.prep(cur, r.outcome, p)
		if err != nil {
			return nil, errors.Wrapf(err, "prep step %d (%s)", i+1, s.Name())
		}
		cur, err = t.Bake(cur)
		if err != nil {
			return nil, errors.Wrapf(err, "bake step %d (%s)", i+1, s.Name())
		}
		trained = append(trained, t)
	}

	return &Prepped{
		Outcome: r.outcome,
		Inputs:  inputs,
		Output:  predictorNames(cur, r.outcome),
		Steps:   trained,
	}, nil
}

// Prepped is a trained recipe.
type Prepped struct {
	Outcome string
	// Inputs are the predictor columns Bake requires.
	Inputs []string
	// Output are the predictor columns Bake produces.
	Output []string
	Steps  []Trained
}

// Bake applies the trained steps to f. The outcome column is optional, so
// new data without labels can be baked for prediction.
func (p *Prepped) Bake(f *dataset.Frame) (*dataset.Frame, error) {
	if err := dataset.RequireColumns(f, p.Inputs...); err != nil {
		return nil, err
	}
	keep := append([]string(nil), p.Inputs...)
	if f.Has(p.Outcome) {
		keep = append(keep, p.Outcome)
	}
	cur, err := f.Select(keep...)
	if err != nil {
		return nil, err
	}
	for _, s := range p.Steps {
		if cur, err = s.Bake(cur); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// Predictors returns the baked predictor names.
func (p *Prepped) Predictors() []string {
	return append([]string(nil), p.Output...)
}

// Params summarizes what every step learned, in order.
func (p *Prepped) Params() []StepParams {
	out := make([]StepParams, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Params()
	}
	return out
}

func predictorNames(f *dataset.Frame, outcome string) []string {
	var out []string
	for _, n := range f.Names() {
		if n != outcome {
			out = append(out, n)
		}
	}
	return out
}

// Arg is a step argument that is either fixed or read from the grid point.
type Arg struct {
	Value  float64
	TuneID string
}

// Value fixes an argument.
func Value(v float64) Arg { return Arg{Value: v} }

// Tune marks an argument as tunable. The optional id overrides the
// step's default parameter id.
func Tune(id ...string) Arg {
	a := Arg{TuneID: "?"}
	if len(id) > 0 {
		a.TuneID = id[0]
	}
	return a
}

func (a Arg) tuned() bool { return a.TuneID != "" }

func (a Arg) id(def string) string {
	if a.TuneID == "?" {
		return def
	}
	return a.TuneID
}

func (a Arg) resolve(def string, p param.Point) (float64, error) {
	if !a.tuned() {
		return a.Value, nil
	}
	id := a.id(def)
	v, ok := p[id]
	if !ok {
		return 0, errors.NewValidationError(id, "tunable argument has no value in the grid point", p.String())
	}
	return v, nil
}

func tunable(a Arg, def param.Param) []param.Param {
	if !a.tuned() {
		return nil
	}
	return []param.Param{def.WithID(a.id(def.ID))}
}

func init() {
	gob.Register(&trainedImpute{})
	gob.Register(&trainedDummy{})
	gob.Register(&trainedOther{})
	gob.Register(&trainedRemove{})
	gob.Register(&trainedNormalize{})
	gob.Register(&trainedRange{})
	gob.Register(&trainedPCA{})
}

func columnError(op, col, reason string) error {
	return errors.NewDataShapeError(op, col, reason)
}

func numericOnly(op string, f *dataset.Frame, cols []string) error {
	for _, n := range cols {
		c, err := f.Column(n)
		if err != nil {
			return err
		}
		if c.Kind != dataset.Numeric {
			return columnError(op, n, fmt.Sprintf("expected numeric column, got %s", c.Kind))
		}
	}
	return nil
}
