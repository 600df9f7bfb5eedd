package config

import (
	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/modelspec"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
	"github.com/YuminosukeSato/tidytune/resample"
	"github.com/YuminosukeSato/tidytune/tune"
	"github.com/YuminosukeSato/tidytune/workflow"
)

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, reason string, v interface{}) {
		errs = append(errs, errors.NewValidationError(field, reason, v))
	}

	if c.Split.Prop <= 0 || c.Split.Prop >= 1 {
		bad("split.prop", "must be in (0, 1)", c.Split.Prop)
	}
	if c.Split.Breaks < 1 {
		bad("split.breaks", "must be at least 1", c.Split.Breaks)
	}
	if c.Split.Pool < 0 || c.Split.Pool >= 1 {
		bad("split.pool", "must be in [0, 1)", c.Split.Pool)
	}

	switch c.Resample.Kind {
	case "vfold":
		if c.Resample.V < 2 {
			bad("resample.v", "must be at least 2", c.Resample.V)
		}
		if c.Resample.Repeats < 1 {
			bad("resample.repeats", "must be at least 1", c.Resample.Repeats)
		}
	case "bootstrap":
		if c.Resample.Times < 1 {
			bad("resample.times", "must be at least 1", c.Resample.Times)
		}
	case "validation":
		if c.Resample.Prop <= 0 || c.Resample.Prop >= 1 {
			bad("resample.prop", "must be in (0, 1)", c.Resample.Prop)
		}
	default:
		bad("resample.kind", "must be vfold, bootstrap or validation", c.Resample.Kind)
	}

	switch c.Tune.GridKind {
	case "latin_hypercube", "random":
		if c.Tune.GridSize < 1 {
			bad("tune.grid_size", "must be at least 1", c.Tune.GridSize)
		}
	case "regular":
		if c.Tune.Levels < 1 {
			bad("tune.levels", "must be at least 1", c.Tune.Levels)
		}
	default:
		bad("tune.grid_kind", "must be latin_hypercube, random or regular", c.Tune.GridKind)
	}
	if c.Tune.Workers < 0 {
		bad("tune.workers", "must not be negative", c.Tune.Workers)
	}
	if c.Tune.Race.Enabled {
		if c.Tune.Race.Alpha <= 0 || c.Tune.Race.Alpha >= 1 {
			bad("tune.race.alpha", "must be in (0, 1)", c.Tune.Race.Alpha)
		}
		if c.Tune.Race.BurnIn < 2 {
			bad("tune.race.burn_in", "must be at least 2", c.Tune.Race.BurnIn)
		}
	}

	if len(c.Metrics) > 0 {
		if _, err := metrics.NewSet(c.Metrics...); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		bad("log.level", "must be debug, info, warn or error", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" && c.Log.Format != "slog" {
		bad("log.format", "must be json, console or slog", c.Log.Format)
	}
	return errors.Join(errs...)
}

// Options returns the split options.
func (s SplitConfig) Options() resample.SplitOptions {
	return resample.SplitOptions{Prop: s.Prop, Strata: s.Strata, Breaks: s.Breaks, Pool: s.Pool, Outcome: s.Outcome, Seed: s.Seed}
}

// Build creates the resamples of training.
func (r ResampleConfig) Build(training *dataset.Frame) (*tune.Resamples, error) {
	switch r.Kind {
	case "bootstrap":
		return tune.Bootstraps(training, resample.BootOptions{Times: r.Times, Strata: r.Strata, Seed: r.Seed})
	case "validation":
		fold, err := resample.ValidationSplit(training, resample.SplitOptions{Prop: r.Prop, Strata: r.Strata, Seed: r.Seed})
		if err != nil {
			return nil, err
		}
		return tune.NewResamples(training, []resample.Fold{fold})
	default:
		return tune.VFold(training, resample.VFoldOptions{V: r.V, Repeats: r.Repeats, Strata: r.Strata, Seed: r.Seed})
	}
}

// Control returns the tuner control. Logger and journal are left to the
// caller.
func (t TuneConfig) Control() tune.Control {
	ctrl := tune.Control{Workers: t.Workers, FailFast: t.FailFast}
	if t.Race.Enabled {
		ctrl.Race = &tune.RaceControl{Alpha: t.Race.Alpha, BurnIn: t.Race.BurnIn, Metric: t.Race.Metric}
	}
	return ctrl
}

// GridFunc returns the configured grid generator.
func (t TuneConfig) GridFunc() tune.GridFunc {
	switch t.GridKind {
	case "regular":
		return tune.RegularGrid(t.Levels)
	case "random":
		return tune.RandomGrid(t.GridSize, t.Seed)
	default:
		return tune.LatinHypercubeGrid(t.GridSize, t.Seed)
	}
}

// Grid builds the grid for a single workflow.
func (t TuneConfig) Grid(wf *workflow.Workflow) (*param.Grid, error) {
	open, err := wf.Tunable()
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	return t.GridFunc()(wf, open)
}

// MetricSet returns the configured metrics, or the defaults for mode.
func (c *Config) MetricSet(mode modelspec.Mode) (metrics.Set, error) {
	if len(c.Metrics) == 0 {
		return metrics.Defaults(mode), nil
	}
	return metrics.NewSet(c.Metrics...)
}

// Setup installs the configured logger as the package default.
func (l LogConfig) Setup() log.Logger {
	return log.Setup(log.Config{Level: l.Level, Format: l.Format, Timestamp: true})
}
