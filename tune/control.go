// Package tune evaluates candidate workflows over resamples, ranks and
// selects grid points, and runs the final fit on the held-out test set.
//
// The test rows of a resample.Split are never touched here until LastFit,
// which reads them exactly once.
package tune

import (
	"context"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
	"github.com/YuminosukeSato/tidytune/resample"
)

// Journal persists tuning results as they complete.
type Journal interface {
	SaveResults(ctx context.Context, res *Results) error
}

// Control configures a tuning run.
type Control struct {
	// Workers bounds the number of fold x grid units evaluated at once.
	// Zero means one per CPU.
	Workers int
	// FailFast aborts the run on the first failing unit. Otherwise the
	// failing grid point is dropped and the failure kept in Results.Notes.
	FailFast bool
	// Race enables racing; nil evaluates every point on every fold.
	Race *RaceControl
	// Logger defaults to log.GetLogger().
	Logger log.Logger
	// RunID defaults to a fresh UUID.
	RunID string
	// Journal, when set, receives every Results.
	Journal Journal
}

func (c Control) withDefaults() Control {
	if c.Logger == nil {
		c.Logger = log.GetLogger()
	}
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	return c
}

// RaceControl configures racing with ANOVA.
type RaceControl struct {
	// Alpha is the significance level of both the F-test and the paired
	// t-tests. Default 0.05.
	Alpha float64
	// BurnIn is the number of folds every point is evaluated on before the
	// first elimination. Default 3, minimum 2.
	BurnIn int
	// Metric drives elimination; empty means the first metric of the set.
	Metric string
}

func (r RaceControl) withDefaults() (RaceControl, error) {
	if r.Alpha == 0 {
		r.Alpha = 0.05
	}
	if r.BurnIn == 0 {
		r.BurnIn = 3
	}
	if r.Alpha <= 0 || r.Alpha >= 1 {
		return r, errors.NewValidationError("alpha", "must be in (0, 1)", r.Alpha)
	}
	if r.BurnIn < 2 {
		return r, errors.NewValidationError("burn_in", "must be at least 2", r.BurnIn)
	}
	return r, nil
}

// Resamples binds folds to the frame their row indices refer to.
type Resamples struct {
	Data  *dataset.Frame
	Folds []resample.Fold
}

// NewResamples checks that every fold index is inside data.
func NewResamples(data *dataset.Frame, folds []resample.Fold) (*Resamples, error) {
	if len(folds) == 0 {
		return nil, errors.NewValidationError("folds", "at least one resample is required", 0)
	}
	n := data.NRows()
	for _, f := range folds {
		if len(f.Analysis) == 0 || len(f.Assessment) == 0 {
			return nil, errors.NewDataShapeError("NewResamples", "", "resample "+f.Label()+" has an empty analysis or assessment set")
		}
		for _, idx := range [][]int{f.Analysis, f.Assessment} {
			for _, i := range idx {
				if i < 0 || i >= n {
					return nil, errors.NewDataShapeError("NewResamples", "", "resample "+f.Label()+" refers to a row outside the data")
				}
			}
		}
	}
	return &Resamples{Data: data, Folds: folds}, nil
}

// VFold is shorthand for resample.VFold followed by NewResamples.
func VFold(data *dataset.Frame, opts resample.VFoldOptions) (*Resamples, error) {
	folds, err := resample.VFold(data, opts)
	if err != nil {
		return nil, err
	}
	return NewResamples(data, folds)
}

// Bootstraps is shorthand for resample.Bootstraps followed by NewResamples.
func Bootstraps(data *dataset.Frame, opts resample.BootOptions) (*Resamples, error) {
	folds, err := resample.Bootstraps(data, opts)
	if err != nil {
		return nil, err
	}
	return NewResamples(data, folds)
}
