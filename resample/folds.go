package resample

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Fold is one resampling replicate. Row indices refer to the frame the
// folds were built from (normally Split.Training()).
type Fold struct {
	// ID is "Fold01", "Bootstrap07" or "validation".
	ID string
	// Repeat is "Repeat2" for repeated v-fold, otherwise empty.
	Repeat     string
	Analysis   []int
	Assessment []int
}

// Label joins Repeat and ID, e.g. "Repeat2/Fold05".
func (f Fold) Label() string {
	if f.Repeat == "" {
		return f.ID
	}
	return f.Repeat + "/" + f.ID
}

// VFoldOptions configures VFold.
type VFoldOptions struct {
	// V is the number of folds. Default 10.
	V int
	// Repeats is the number of independent v-fold partitions. Default 1.
	Repeats int
	Strata  string
	Breaks  int
	Pool    float64
	Seed    uint64
}

// VFold assigns every row to exactly one of V assessment sets per repeat.
// Within each stratum the rows are shuffled and dealt round-robin, and the
// dealing position carries over between strata, so fold sizes differ by at
// most one row.
func VFold(f *dataset.Frame, opts VFoldOptions) ([]Fold, error) {
	if opts.V == 0 {
		opts.V = 10
	}
	if opts.Repeats == 0 {
		opts.Repeats = 1
	}
	n := f.NRows()
	if opts.V < 2 {
		return nil, errors.NewValidationError("v", "must be at least 2", opts.V)
	}
	if opts.V > n {
		return nil, errors.NewDataShapeError("VFold", "", fmt.Sprintf("%d folds requested for %d rows", opts.V, n))
	}
	if opts.Repeats < 1 {
		return nil, errors.NewValidationError("repeats", "must be at least 1", opts.Repeats)
	}
	groups, err := makeStrata("VFold", f, opts.Strata, opts.Breaks, opts.Pool)
	if err != nil {
		return nil, err
	}

	rng := newRNG(opts.Seed)
	folds := make([]Fold, 0, opts.V*opts.Repeats)
	for r := 1; r <= opts.Repeats; r++ {
		assign := make([]int, n)
		offset := 0
		for _, g := range groups {
			rows := append([]int(nil), g.rows...)
			rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
			for i, row := range rows {
				assign[row] = (offset + i) % opts.V
			}
			offset += len(rows)
		}

		repeat := ""
		if opts.Repeats > 1 {
			repeat = "Repeat" + strconv.Itoa(r)
		}
		for v := 0; v < opts.V; v++ {
			fold := Fold{ID: label("Fold", v+1, opts.V), Repeat: repeat}
			for row, a := range assign {
				if a == v {
					fold.Assessment = append(fold.Assessment, row)
				} else {
					fold.Analysis = append(fold.Analysis, row)
				}
			}
			folds = append(folds, fold)
		}
	}
	return folds, nil
}

// BootOptions configures Bootstraps.
type BootOptions struct {
	// Times is the number of bootstrap resamples. Default 25.
	Times  int
	Strata string
	Breaks int
	Pool   float64
	Seed   uint64
}

const maxBootDraws = 100

// Bootstraps draws analysis sets of the same size as f with replacement
// (within each stratum); the assessment set is the out-of-bag rows. A draw
// with no out-of-bag rows is redrawn.
func Bootstraps(f *dataset.Frame, opts BootOptions) ([]Fold, error) {
	if opts.Times == 0 {
		opts.Times = 25
	}
	if opts.Times < 1 {
		return nil, errors.NewValidationError("times", "must be at least 1", opts.Times)
	}
	groups, err := makeStrata("Bootstraps", f, opts.Strata, opts.Breaks, opts.Pool)
	if err != nil {
		return nil, err
	}

	rng := newRNG(opts.Seed)
	n := f.NRows()
	folds := make([]Fold, 0, opts.Times)
	for b := 1; b <= opts.Times; b++ {
		var fold Fold
		for attempt := 0; ; attempt++ {
			if attempt == maxBootDraws {
				return nil, errors.NewDataShapeError("Bootstraps", opts.Strata, "could not draw a resample with out-of-bag rows")
			}
			inBag := make([]bool, n)
			analysis := make([]int, 0, n)
			for _, g := range groups {
				for range g.rows {
					row := g.rows[rng.IntN(len(g.rows))]
					inBag[row] = true
					analysis = append(analysis, row)
				}
			}
			var oob []int
			for row, in := range inBag {
				if !in {
					oob = append(oob, row)
				}
			}
			if len(oob) > 0 {
				sort.Ints(analysis)
				fold = Fold{ID: label("Bootstrap", b, opts.Times), Analysis: analysis, Assessment: oob}
				break
			}
		}
		folds = append(folds, fold)
	}
	return folds, nil
}

// ValidationSplit holds out one stratified validation set from f.
func ValidationSplit(f *dataset.Frame, opts SplitOptions) (Fold, error) {
	opts, err := opts.withDefaults("ValidationSplit", f)
	if err != nil {
		return Fold{}, err
	}
	groups, err := makeStrata("ValidationSplit", f, opts.Strata, opts.Breaks, opts.Pool)
	if err != nil {
		return Fold{}, err
	}
	analysis, assessment := partition(groups, opts.Prop, newRNG(opts.Seed))
	if len(analysis) == 0 || len(assessment) == 0 {
		return Fold{}, errors.NewDataShapeError("ValidationSplit", opts.Strata, "split leaves an empty analysis or assessment set")
	}
	return Fold{ID: "validation", Analysis: analysis, Assessment: assessment}, nil
}

// label formats ids with at least two digits, wider when total needs it.
func label(prefix string, i, total int) string {
	width := len(strconv.Itoa(total))
	if width < 2 {
		width = 2
	}
	return fmt.Sprintf("%s%0*d", prefix, width, i)
}
