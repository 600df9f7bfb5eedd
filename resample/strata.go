package resample

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

const (
	defaultBreaks = 4
	defaultPool   = 0.1
	// minStratumRows is the smallest stratum that can be split into two
	// non-empty parts.
	minStratumRows = 2
)

type stratum struct {
	label string
	rows  []int
}

// makeStrata groups the rows of f by the strata column. An empty column
// name yields a single stratum holding every row. Numeric columns are cut
// at breaks-quantiles; nominal columns group by level. Missing values form
// their own group. Groups holding less than pool*n rows are merged into an
// adjacent group until none remain (or one group is left).
func makeStrata(op string, f *dataset.Frame, column string, breaks int, pool float64) ([]stratum, error) {
	n := f.NRows()
	if column == "" {
		return []stratum{{label: "all", rows: seq(n)}}, nil
	}
	col, err := f.Column(column)
	if err != nil {
		return nil, errors.NewMissingColumnError(op, column)
	}
	if col.NACount() == n {
		return nil, errors.NewDataShapeError(op, column, "stratification column is entirely missing")
	}
	if breaks <= 0 {
		breaks = defaultBreaks
	}
	if pool <= 0 {
		pool = defaultPool
	}

	var groups []stratum
	if col.Kind == dataset.Numeric {
		groups = numericStrata(col, breaks)
	} else {
		groups = nominalStrata(col)
	}
	groups = poolStrata(groups, pool*float64(n))

	for _, g := range groups {
		if len(g.rows) < minStratumRows {
			return nil, errors.NewDataShapeError(op, column,
				fmt.Sprintf("stratum '%s' has %d row(s); at least %d are needed", g.label, len(g.rows), minStratumRows))
		}
	}
	return groups, nil
}

func nominalStrata(col *dataset.Column) []stratum {
	byLevel := make(map[string][]int)
	for i, s := range col.Str {
		byLevel[s] = append(byLevel[s], i)
	}
	groups := make([]stratum, 0, len(byLevel))
	for _, level := range col.Levels() {
		groups = append(groups, stratum{label: level, rows: byLevel[level]})
	}
	if na := byLevel[""]; len(na) > 0 {
		groups = append(groups, stratum{label: "NA", rows: na})
	}
	return groups
}

func numericStrata(col *dataset.Column, breaks int) []stratum {
	present := make([]float64, 0, len(col.Num))
	var na []int
	for i, v := range col.Num {
		if math.IsNaN(v) {
			na = append(na, i)
			continue
		}
		present = append(present, v)
	}
	sort.Float64s(present)

	cuts := make([]float64, 0, breaks-1)
	for k := 1; k < breaks; k++ {
		q := stat.Quantile(float64(k)/float64(breaks), stat.Empirical, present, nil)
		if len(cuts) == 0 || q > cuts[len(cuts)-1] {
			cuts = append(cuts, q)
		}
	}

	bins := make([][]int, len(cuts)+1)
	for i, v := range col.Num {
		if math.IsNaN(v) {
			continue
		}
		// bin b holds values in (cuts[b-1], cuts[b]]
		b := sort.SearchFloat64s(cuts, v)
		bins[b] = append(bins[b], i)
	}

	groups := make([]stratum, 0, len(bins)+1)
	for b, rows := range bins {
		if len(rows) > 0 {
			groups = append(groups, stratum{label: fmt.Sprintf("Q%d", b+1), rows: rows})
		}
	}
	if len(na) > 0 {
		groups = append(groups, stratum{label: "NA", rows: na})
	}
	return groups
}

// poolStrata repeatedly merges the smallest group below threshold into its
// smaller neighbour.
func poolStrata(groups []stratum, threshold float64) []stratum {
	for len(groups) > 1 {
		small := -1
		for i, g := range groups {
			if float64(len(g.rows)) < threshold && (small < 0 || len(g.rows) < len(groups[small].rows)) {
				small = i
			}
		}
		if small < 0 {
			break
		}
		into := small - 1
		if small == 0 || (small+1 < len(groups) && len(groups[small+1].rows) < len(groups[small-1].rows)) {
			into = small + 1
		}
		merged := stratum{
			label: groups[into].label + "+" + groups[small].label,
			rows:  append(append([]int(nil), groups[into].rows...), groups[small].rows...),
		}
		sort.Ints(merged.rows)
		groups[into] = merged
		groups = append(groups[:small], groups[small+1:]...)
	}
	return groups
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
