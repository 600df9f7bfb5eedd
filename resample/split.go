// Package resample partitions a dataset into a training/test Split and the
// training part into resampling Folds (v-fold cross-validation, bootstrap,
// or a single validation set). All partitions can be stratified by a
// nominal column or by quantile bins of a numeric one.
package resample

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
)

// SplitOptions configures InitialSplit and ValidationSplit.
type SplitOptions struct {
	// Prop is the fraction of rows (per stratum) going to training. Default 0.75.
	Prop float64
	// Strata names the column to stratify by; empty means no stratification.
	Strata string
	// Breaks is the number of quantile bins for a numeric strata column. Default 4.
	Breaks int
	// Pool is the smallest stratum, as a fraction of rows, kept on its own. Default 0.1.
	Pool float64
	// Outcome, when set, must name a column of the frame being split.
	Outcome string
	Seed    uint64
}

func (o SplitOptions) withDefaults(op string, f *dataset.Frame) (SplitOptions, error) {
	if o.Prop == 0 {
		o.Prop = 0.75
	}
	if o.Prop <= 0 || o.Prop >= 1 || math.IsNaN(o.Prop) {
		return o, errors.NewValueError(op, "prop must be in (0, 1)")
	}
	if o.Outcome != "" {
		if err := dataset.RequireColumns(f, o.Outcome); err != nil {
			return o, errors.Wrapf(err, "%s: outcome", op)
		}
	}
	return o, nil
}

// Split is a training/test partition of a dataset. The test rows can be
// materialized exactly once, through Testing.
type Split struct {
	data   *dataset.Frame
	train  []int
	test   []int
	strata string

	mu       sync.Mutex
	testRead bool
}

// InitialSplit partitions f into training and test rows. Within each
// stratum, floor(Prop * stratum size) randomly chosen rows go to training.
func InitialSplit(f *dataset.Frame, opts SplitOptions) (*Split, error) {
	opts, err := opts.withDefaults("InitialSplit", f)
	if err != nil {
		return nil, err
	}
	if f.NRows() < 2 {
		return nil, errors.Wrap(errors.ErrEmptyData, "InitialSplit: need at least 2 rows")
	}
	groups, err := makeStrata("InitialSplit", f, opts.Strata, opts.Breaks, opts.Pool)
	if err != nil {
		return nil, err
	}

	rng := newRNG(opts.Seed)
	train, test := partition(groups, opts.Prop, rng)
	if len(train) == 0 || len(test) == 0 {
		return nil, errors.NewDataShapeError("InitialSplit", opts.Strata, "split leaves an empty training or test set")
	}

	log.GetLogger().Debug("initial split",
		log.PhaseKey, log.PhaseSplit,
		log.StrataKey, opts.Strata,
		"training", len(train),
		"testing", len(test),
	)
	return &Split{data: f, train: train, test: test, strata: opts.Strata}, nil
}

// partition shuffles each stratum and cuts it at floor(prop * size).
// Both outputs are sorted.
func partition(groups []stratum, prop float64, rng *rand.Rand) (in, out []int) {
	for _, g := range groups {
		rows := append([]int(nil), g.rows...)
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		k := int(math.Floor(prop * float64(len(rows))))
		in = append(in, rows[:k]...)
		out = append(out, rows[k:]...)
	}
	sort.Ints(in)
	sort.Ints(out)
	return in, out
}

// TrainingIndices returns a copy of the training row indices.
func (s *Split) TrainingIndices() []int {
	return append([]int(nil), s.train...)
}

// TestIndices returns a copy of the test row indices.
func (s *Split) TestIndices() []int {
	return append([]int(nil), s.test...)
}

// Strata returns the stratification column, or "".
func (s *Split) Strata() string { return s.strata }

// Training returns a private copy of the training rows.
func (s *Split) Training() *dataset.Frame {
	return s.data.Subset(s.train)
}

// Testing returns the test rows. It succeeds once; every later call returns
// ErrTestSetConsumed.
func (s *Split) Testing() (*dataset.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.testRead {
		return nil, errors.WithStack(errors.ErrTestSetConsumed)
	}
	s.testRead = true
	return s.data.Subset(s.test), nil
}

// TestConsumed reports whether Testing has been called.
func (s *Split) TestConsumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.testRead
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}
