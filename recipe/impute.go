package recipe

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/param"
)

type imputeMethod int

const (
	imputeMean imputeMethod = iota
	imputeMedian
	imputeMode
)

type imputeStep struct {
	sel    Selector
	method imputeMethod
}

// ImputeMean fills missing numeric values with the analysis-set mean.
func ImputeMean(sel Selector) Step { return &imputeStep{sel: sel, method: imputeMean} }

// ImputeMedian fills missing numeric values with the analysis-set median.
func ImputeMedian(sel Selector) Step { return &imputeStep{sel: sel, method: imputeMedian} }

// ImputeMode fills missing nominal values with the most frequent level
// (ties go to the first level in sort order).
func ImputeMode(sel Selector) Step { return &imputeStep{sel: sel, method: imputeMode} }

func (s *imputeStep) Name() string {
	return [...]string{"impute_mean", "impute_median", "impute_mode"}[s.method]
}

func (s *imputeStep) Kind() StepKind { return KindImpute }

func (s *imputeStep) Tunable() []param.Param { return nil }

func (s *imputeStep) prep(f *dataset.Frame, outcome string, _ param.Point) (Trained, error) {
	cols, err := s.sel.Select(f, outcome)
	if err != nil {
		return nil, err
	}
	t := &trainedImpute{Step: s.Name(), Columns: cols, Num: map[string]float64{}, Str: map[string]string{}}
	for _, n := range cols {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		if c.NACount() == c.Len() {
			return nil, columnError(s.Name(), n, "all values are missing")
		}
		switch {
		case s.method == imputeMode && c.Kind == dataset.Nominal:
			t.Str[n] = mode(c.Str)
		case s.method == imputeMode:
			t.Num[n] = numericMode(c.Num)
		case c.Kind != dataset.Numeric:
			return nil, columnError(s.Name(), n, "mean and median imputation need a numeric column")
		default:
			present := presentValues(c.Num)
			if s.method == imputeMean {
				t.Num[n] = stat.Mean(present, nil)
			} else {
				sort.Float64s(present)
				t.Num[n] = median(present)
			}
		}
	}
	return t, nil
}

type trainedImpute struct {
	Step    string
	Columns []string
	Num     map[string]float64
	Str     map[string]string
}

func (t *trainedImpute) Bake(f *dataset.Frame) (*dataset.Frame, error) {
	out := f
	for _, n := range t.Columns {
		c, err := out.Column(n)
		if err != nil {
			return nil, err
		}
		filled := c.Clone()
		if v, ok := t.Num[n]; ok && filled.Kind == dataset.Numeric {
			for i, x := range filled.Num {
				if math.IsNaN(x) {
					filled.Num[i] = v
				}
			}
		} else if v, ok := t.Str[n]; ok {
			for i, x := range filled.Str {
				if x == "" {
					filled.Str[i] = v
				}
			}
		}
		if out, err = out.WithColumn(filled); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *trainedImpute) Params() StepParams {
	p := StepParams{Step: t.Step, Columns: t.Columns, Values: map[string][]float64{}, Levels: map[string][]string{}}
	for k, v := range t.Num {
		p.Values[k] = []float64{v}
	}
	for k, v := range t.Str {
		p.Levels[k] = []string{v}
	}
	return p
}

func presentValues(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// median expects sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mode(xs []string) string {
	counts := map[string]int{}
	for _, x := range xs {
		if x != "" {
			counts[x]++
		}
	}
	best, bestN := "", -1
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

func numericMode(xs []float64) float64 {
	counts := map[float64]int{}
	for _, x := range xs {
		if !math.IsNaN(x) {
			counts[x]++
		}
	}
	best, bestN := math.NaN(), -1
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}
