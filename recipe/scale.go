package recipe

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/preprocessing"
)

type normalizeStep struct{ sel Selector }

// Normalize centers and scales numeric columns to mean 0 and standard
// deviation 1.
func Normalize(sel Selector) Step { return &normalizeStep{sel: sel} }

func (s *normalizeStep) Name() string           { return "normalize" }
func (s *normalizeStep) Kind() StepKind         { return KindScale }
func (s *normalizeStep) Tunable() []param.Param { return nil }

func (s *normalizeStep) prep(f *dataset.Frame, outcome string, _ param.Point) (Trained, error) {
	cols, X, err := numericMatrix("normalize", s.sel, f, outcome)
	if err != nil {
		return nil, err
	}
	sc := preprocessing.NewStandardScalerDefault()
	if X == nil {
		return &trainedNormalize{Scaler: sc}, nil
	}
	if err := sc.Fit(X); err != nil {
		return nil, err
	}
	return &trainedNormalize{Columns: cols, Scaler: sc}, nil
}

type trainedNormalize struct {
	Columns []string
	Scaler  *preprocessing.StandardScaler
}

func (t *trainedNormalize) Bake(f *dataset.Frame) (*dataset.Frame, error) {
	if len(t.Columns) == 0 {
		return f, nil
	}
	return transformColumns(f, t.Columns, t.Scaler.Transform)
}

func (t *trainedNormalize) Params() StepParams {
	p := StepParams{Step: "normalize", Columns: t.Columns, Values: map[string][]float64{}}
	for j, n := range t.Columns {
		p.Values[n] = []float64{t.Scaler.Mean[j], t.Scaler.Scale[j]}
	}
	return p
}

type rangeStep struct {
	sel    Selector
	lo, hi float64
}

// Range rescales numeric columns to [lo, hi]. Baked values outside the
// analysis range are clipped.
func Range(sel Selector, lo, hi float64) Step { return &rangeStep{sel: sel, lo: lo, hi: hi} }

func (s *rangeStep) Name() string           { return "range" }
func (s *rangeStep) Kind() StepKind         { return KindScale }
func (s *rangeStep) Tunable() []param.Param { return nil }

func (s *rangeStep) prep(f *dataset.Frame, outcome string, _ param.Point) (Trained, error) {
	sc := preprocessing.NewMinMaxScaler([2]float64{s.lo, s.hi})
	sc.Clip = true
	cols, X, err := numericMatrix("range", s.sel, f, outcome)
	if err != nil {
		return nil, err
	}
	if X == nil {
		return &trainedRange{Scaler: sc}, nil
	}
	if err := sc.Fit(X); err != nil {
		return nil, err
	}
	return &trainedRange{Columns: cols, Scaler: sc}, nil
}

type trainedRange struct {
	Columns []string
	Scaler  *preprocessing.MinMaxScaler
}

func (t *trainedRange) Bake(f *dataset.Frame) (*dataset.Frame, error) {
	if len(t.Columns) == 0 {
		return f, nil
	}
	return transformColumns(f, t.Columns, t.Scaler.Transform)
}

func (t *trainedRange) Params() StepParams {
	p := StepParams{Step: "range", Columns: t.Columns, Values: map[string][]float64{}}
	for j, n := range t.Columns {
		p.Values[n] = []float64{t.Scaler.DataMin[j], t.Scaler.DataMax[j]}
	}
	return p
}

// numericMatrix resolves sel and returns the selected numeric columns as a
// matrix. X is nil when nothing was selected.
func numericMatrix(op string, sel Selector, f *dataset.Frame, outcome string) ([]string, *mat.Dense, error) {
	cols, err := sel.Select(f, outcome)
	if err != nil {
		return nil, nil, err
	}
	if len(cols) == 0 {
		return nil, nil, nil
	}
	if err := numericOnly(op, f, cols); err != nil {
		return nil, nil, err
	}
	X, err := f.Matrix(cols)
	if err != nil {
		return nil, nil, err
	}
	return cols, X, nil
}

func transformColumns(f *dataset.Frame, cols []string, fn func(mat.Matrix) (mat.Matrix, error)) (*dataset.Frame, error) {
	if f.NRows() == 0 {
		return f, nil
	}
	X, err := f.Matrix(cols)
	if err != nil {
		return nil, err
	}
	Y, err := fn(X)
	if err != nil {
		return nil, err
	}
	out := f
	for j, n := range cols {
		out, err = out.WithColumn(dataset.NewNumeric(n, mat.Col(nil, j, Y)))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
