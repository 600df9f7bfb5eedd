package recipe

import (
	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Selector picks the columns a step operates on. It is resolved at prep
// time against the frame as it stands after the previous steps.
type Selector interface {
	Select(f *dataset.Frame, outcome string) ([]string, error)
}

type kindSelector struct {
	kind *dataset.Kind
}

func (s kindSelector) Select(f *dataset.Frame, outcome string) ([]string, error) {
	var out []string
	for _, c := range f.Columns() {
		if c.Name == outcome {
			continue
		}
		if s.kind == nil || c.Kind == *s.kind {
			out = append(out, c.Name)
		}
	}
	return out, nil
}

// AllPredictors selects every column except the outcome.
func AllPredictors() Selector { return kindSelector{} }

// AllNumericPredictors selects numeric columns except the outcome.
func AllNumericPredictors() Selector {
	k := dataset.Numeric
	return kindSelector{kind: &k}
}

// AllNominalPredictors selects nominal columns except the outcome.
func AllNominalPredictors() Selector {
	k := dataset.Nominal
	return kindSelector{kind: &k}
}

type namedSelector []string

func (s namedSelector) Select(f *dataset.Frame, outcome string) ([]string, error) {
	for _, n := range s {
		if n == outcome {
			return nil, errors.NewDataShapeError("recipe.Columns", n, "the outcome cannot be used as a predictor")
		}
		if !f.Has(n) {
			return nil, errors.NewMissingColumnError("recipe.Columns", n)
		}
	}
	return append([]string(nil), s...), nil
}

// Columns selects the named columns.
func Columns(names ...string) Selector { return namedSelector(names) }
