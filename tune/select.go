package tune

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Order ranks grid points from simplest to most complex. Less reports
// whether a is simpler than b.
type Order struct {
	Name string
	Less func(a, b param.Point) bool
}

// Asc treats smaller values of id as simpler, e.g. fewer neighbors.
func Asc(id string) Order {
	return Order{Name: id, Less: func(a, b param.Point) bool { return a[id] < b[id] }}
}

// Desc treats larger values of id as simpler, e.g. a larger penalty.
func Desc(id string) Order {
	return Order{Name: "desc(" + id + ")", Less: func(a, b param.Point) bool { return a[id] > b[id] }}
}

// candidates returns the summaries of metric for points that were not
// eliminated and have a defined mean, best first.
func candidates(res *Results, metric string) ([]Summary, metrics.Metric, error) {
	m, err := res.metric(metric)
	if err != nil {
		return nil, m, err
	}
	var out []Summary
	for _, s := range res.Summarize() {
		if s.Metric != m.Name || s.Eliminated || math.IsNaN(s.Mean) {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, m, errors.Wrapf(errors.ErrNoResults, "no defined %s estimates", m.Name)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Mean != out[j].Mean {
			return m.Direction.Better(out[i].Mean, out[j].Mean)
		}
		return out[i].ConfigID < out[j].ConfigID
	})
	return out, m, nil
}

// ShowBest returns the n best grid points for metric ("" for the first
// metric). Points eliminated by racing are not shown.
func ShowBest(res *Results, metric string, n int) ([]Summary, error) {
	out, _, err := candidates(res, metric)
	if err != nil {
		return nil, err
	}
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out, nil
}

// SelectBest returns the point with the best mean.
func SelectBest(res *Results, metric string) (param.Point, Summary, error) {
	out, _, err := candidates(res, metric)
	if err != nil {
		return nil, Summary{}, err
	}
	return out[0].Point.Clone(), out[0], nil
}

// SelectByOneStdErr returns the simplest point whose mean is within one
// standard error of the best mean. Simplicity is defined by orders, applied
// in turn; at least one is required since no ordering is right for every
// parameter.
func SelectByOneStdErr(res *Results, metric string, orders ...Order) (param.Point, Summary, error) {
	if len(orders) == 0 {
		return nil, Summary{}, errors.NewValidationError("orders", "one-standard-error selection needs at least one ordering", nil)
	}
	out, m, err := candidates(res, metric)
	if err != nil {
		return nil, Summary{}, err
	}
	best := out[0]
	bound := best.Mean - best.StdErr
	if m.Direction == metrics.Minimize {
		bound = best.Mean + best.StdErr
	}
	var within []Summary
	for _, s := range out {
		if (m.Direction == metrics.Maximize && s.Mean >= bound) || (m.Direction == metrics.Minimize && s.Mean <= bound) {
			within = append(within, s)
		}
	}
	s := simplest(within, orders)
	return s.Point.Clone(), s, nil
}

// SelectByPctLoss returns the simplest point whose loss relative to the
// best mean, in percent, is at most limit.
func SelectByPctLoss(res *Results, metric string, limit float64, orders ...Order) (param.Point, Summary, error) {
	if len(orders) == 0 {
		return nil, Summary{}, errors.NewValidationError("orders", "percent-loss selection needs at least one ordering", nil)
	}
	if limit < 0 {
		return nil, Summary{}, errors.NewValidationError("limit", "must not be negative", limit)
	}
	out, m, err := candidates(res, metric)
	if err != nil {
		return nil, Summary{}, err
	}
	best := out[0].Mean
	var within []Summary
	for _, s := range out {
		loss := (best - s.Mean) / math.Abs(best) * 100
		if m.Direction == metrics.Minimize {
			loss = (s.Mean - best) / math.Abs(best) * 100
		}
		if best == 0 {
			loss = 0
			if s.Mean != best {
				loss = math.Inf(1)
			}
		}
		if loss <= limit {
			within = append(within, s)
		}
	}
	s := simplest(within, orders)
	return s.Point.Clone(), s, nil
}

// simplest sorts by the orders; ties keep the better-mean order the
// summaries arrived in.
func simplest(in []Summary, orders []Order) Summary {
	sort.SliceStable(in, func(i, j int) bool {
		for _, o := range orders {
			if o.Less(in[i].Point, in[j].Point) {
				return true
			}
			if o.Less(in[j].Point, in[i].Point) {
				return false
			}
		}
		return false
	})
	return in[0]
}
