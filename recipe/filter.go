package recipe

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/param"
)

type zeroVarianceStep struct {
	sel Selector
}

// ZeroVariance removes columns holding a single distinct non-missing value.
func ZeroVariance(sel Selector) Step { return &zeroVarianceStep{sel: sel} }

func (s *zeroVarianceStep) Name() string           { return "zv" }
func (s *zeroVarianceStep) Kind() StepKind         { return KindFilter }
func (s *zeroVarianceStep) Tunable() []param.Param { return nil }

func (s *zeroVarianceStep) prep(f *dataset.Frame, outcome string, _ param.Point) (Trained, error) {
	cols, err := s.sel.Select(f, outcome)
	if err != nil {
		return nil, err
	}
	t := &trainedRemove{Step: "zv", Columns: cols}
	for _, n := range cols {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		if distinct(c) <= 1 {
			t.Removed = append(t.Removed, n)
		}
	}
	return t, nil
}

func distinct(c *dataset.Column) int {
	if c.Kind == dataset.Nominal {
		return len(c.Levels())
	}
	seen := map[float64]bool{}
	for _, v := range c.Num {
		if !math.IsNaN(v) {
			seen[v] = true
		}
	}
	return len(seen)
}

type corrStep struct {
	sel       Selector
	threshold Arg
}

// Correlation removes numeric columns until no pair has an absolute
// correlation above threshold. Of each offending pair the column with the
// larger mean absolute correlation goes first. Correlations use rows
// complete in the selected columns.
func Correlation(sel Selector, threshold Arg) Step {
	return &corrStep{sel: sel, threshold: threshold}
}

func (s *corrStep) Name() string   { return "corr" }
func (s *corrStep) Kind() StepKind { return KindFilter }
func (s *corrStep) Tunable() []param.Param {
	return tunable(s.threshold, param.Threshold().WithRange(0.5, 1))
}

func (s *corrStep) prep(f *dataset.Frame, outcome string, p param.Point) (Trained, error) {
	threshold, err := s.threshold.resolve("threshold", p)
	if err != nil {
		return nil, err
	}
	cols, err := s.sel.Select(f, outcome)
	if err != nil {
		return nil, err
	}
	if err := numericOnly("corr", f, cols); err != nil {
		return nil, err
	}
	t := &trainedRemove{Step: "corr", Columns: cols}
	if len(cols) < 2 {
		return t, nil
	}
	rows, err := f.CompleteRows(cols...)
	if err != nil {
		return nil, err
	}
	if len(rows) < 3 {
		return nil, columnError("corr", cols[0], "fewer than 3 complete rows")
	}
	sub := f.Subset(rows)

	k := len(cols)
	r := make([][]float64, k)
	for i := range r {
		r[i] = make([]float64, k)
	}
	for i := 0; i < k; i++ {
		ci, _ := sub.Column(cols[i])
		for j := i + 1; j < k; j++ {
			cj, _ := sub.Column(cols[j])
			v := math.Abs(stat.Correlation(ci.Num, cj.Num, nil))
			if math.IsNaN(v) {
				v = 0
			}
			r[i][j], r[j][i] = v, v
		}
	}

	alive := make([]bool, k)
	for i := range alive {
		alive[i] = true
	}
	meanCorr := func(i int) float64 {
		var sum float64
		var n int
		for j := 0; j < k; j++ {
			if j != i && alive[j] {
				sum += r[i][j]
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	}
	for {
		bi, bj, best := -1, -1, threshold
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				if alive[i] && alive[j] && r[i][j] > best {
					bi, bj, best = i, j, r[i][j]
				}
			}
		}
		if bi < 0 {
			break
		}
		drop := bj
		if meanCorr(bi) > meanCorr(bj) {
			drop = bi
		}
		alive[drop] = false
	}
	for i, ok := range alive {
		if !ok {
			t.Removed = append(t.Removed, cols[i])
		}
	}
	return t, nil
}

type trainedRemove struct {
	Step    string
	Columns []string
	Removed []string
}

func (t *trainedRemove) Bake(f *dataset.Frame) (*dataset.Frame, error) {
	return f.Drop(t.Removed...), nil
}

func (t *trainedRemove) Params() StepParams {
	return StepParams{Step: t.Step, Columns: t.Columns, Removed: t.Removed}
}
