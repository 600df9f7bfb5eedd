package recipe

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/param"
)

type dummyStep struct {
	sel    Selector
	oneHot bool
}

// Dummy replaces each nominal column with 0/1 indicator columns named
// "<column>_<level>". The first level is the reference and gets no column.
func Dummy(sel Selector) Step { return &dummyStep{sel: sel} }

// DummyOneHot is Dummy with an indicator for every level.
func DummyOneHot(sel Selector) Step { return &dummyStep{sel: sel, oneHot: true} }

func (s *dummyStep) Name() string           { return "dummy" }
func (s *dummyStep) Kind() StepKind         { return KindEncode }
func (s *dummyStep) Tunable() []param.Param { return nil }

func (s *dummyStep) prep(f *dataset.Frame, outcome string, _ param.Point) (Trained, error) {
	cols, err := s.sel.Select(f, outcome)
	if err != nil {
		return nil, err
	}
	t := &trainedDummy{Columns: cols, Levels: map[string][]string{}, OneHot: s.oneHot}
	for _, n := range cols {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		if c.Kind != dataset.Nominal {
			return nil, columnError("dummy", n, "dummy encoding needs a nominal column")
		}
		levels := c.Levels()
		if len(levels) == 0 {
			return nil, columnError("dummy", n, "all values are missing")
		}
		t.Levels[n] = levels
	}
	return t, nil
}

type trainedDummy struct {
	Columns []string
	Levels  map[string][]string
	OneHot  bool
}

func (t *trainedDummy) Bake(f *dataset.Frame) (*dataset.Frame, error) {
	var added []*dataset.Column
	for _, n := range t.Columns {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		levels := t.Levels[n]
		start := 1
		if t.OneHot {
			start = 0
		}
		for _, lvl := range levels[start:] {
			ind := make([]float64, c.Len())
			for i, s := range c.Str {
				switch {
				case s == "":
					ind[i] = math.NaN()
				case s == lvl:
					ind[i] = 1
				}
			}
			added = append(added, dataset.NewNumeric(n+"_"+lvl, ind))
		}
	}
	return replace(f, t.Columns, added)
}

func (t *trainedDummy) Params() StepParams {
	return StepParams{Step: "dummy", Columns: t.Columns, Levels: t.Levels}
}

type otherStep struct {
	sel       Selector
	threshold Arg
}

// OtherLevel is the level infrequent values are pooled into.
const OtherLevel = "other"

// Other pools levels seen in less than threshold (a proportion) of the
// analysis rows, and any level unseen at prep time, into OtherLevel.
func Other(sel Selector, threshold Arg) Step { return &otherStep{sel: sel, threshold: threshold} }

func (s *otherStep) Name() string   { return "other" }
func (s *otherStep) Kind() StepKind { return KindEncode }
func (s *otherStep) Tunable() []param.Param {
	return tunable(s.threshold, param.Threshold().WithRange(0, 0.1))
}

func (s *otherStep) prep(f *dataset.Frame, outcome string, p param.Point) (Trained, error) {
	threshold, err := s.threshold.resolve("threshold", p)
	if err != nil {
		return nil, err
	}
	cols, err := s.sel.Select(f, outcome)
	if err != nil {
		return nil, err
	}
	t := &trainedOther{Columns: cols, Keep: map[string][]string{}}
	for _, n := range cols {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		if c.Kind != dataset.Nominal {
			return nil, columnError("other", n, "level pooling needs a nominal column")
		}
		counts := map[string]int{}
		for _, s := range c.Str {
			if s != "" {
				counts[s]++
			}
		}
		var keep []string
		for lvl, cnt := range counts {
			if float64(cnt)/float64(c.Len()) >= threshold {
				keep = append(keep, lvl)
			}
		}
		sort.Strings(keep)
		t.Keep[n] = keep
	}
	return t, nil
}

type trainedOther struct {
	Columns []string
	Keep    map[string][]string
}

func (t *trainedOther) Bake(f *dataset.Frame) (*dataset.Frame, error) {
	out := f
	for _, n := range t.Columns {
		c, err := out.Column(n)
		if err != nil {
			return nil, err
		}
		keep := make(map[string]bool, len(t.Keep[n]))
		for _, l := range t.Keep[n] {
			keep[l] = true
		}
		pooled := c.Clone()
		for i, s := range pooled.Str {
			if s != "" && !keep[s] {
				pooled.Str[i] = OtherLevel
			}
		}
		if out, err = out.WithColumn(pooled); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *trainedOther) Params() StepParams {
	return StepParams{Step: "other", Columns: t.Columns, Levels: t.Keep}
}

// replace drops the named columns and appends added, keeping the outcome
// and untouched predictors in place.
func replace(f *dataset.Frame, drop []string, added []*dataset.Column) (*dataset.Frame, error) {
	cols := f.Drop(drop...).Columns()
	return dataset.NewFrame(append(cols, added...)...)
}
