package param

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Grid is the list of points evaluated by a tuning run.
type Grid struct {
	Params Set
	Points []Point
}

// Size returns the number of points.
func (g *Grid) Size() int { return len(g.Points) }

// Regular crosses levels evenly spaced values of every parameter.
func Regular(params Set, levels int) (*Grid, error) {
	if levels < 1 {
		return nil, errors.NewValidationError("levels", "must be at least 1", levels)
	}
	if _, err := NewSet(params...); err != nil {
		return nil, err
	}
	points := []Point{{}}
	for _, p := range params {
		vals := p.Levels(levels)
		next := make([]Point, 0, len(points)*len(vals))
		for _, base := range points {
			for _, v := range vals {
				pt := base.Clone()
				pt[p.ID] = v
				next = append(next, pt)
			}
		}
		points = next
	}
	return &Grid{Params: params, Points: dedupe(points)}, nil
}

// Random draws size points uniformly over each parameter's range.
func Random(params Set, size int, seed uint64) (*Grid, error) {
	if err := checkSize(params, size); err != nil {
		return nil, err
	}
	unif := distuv.Uniform{Min: 0, Max: 1, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
	points := make([]Point, size)
	for i := range points {
		points[i] = make(Point, len(params))
		for _, p := range params {
			points[i][p.ID] = p.Value(unif.Rand())
		}
	}
	return &Grid{Params: params, Points: dedupe(points)}, nil
}

// LatinHypercube draws a space-filling design: each parameter's range is cut
// into size equal strata and every stratum is used exactly once.
func LatinHypercube(params Set, size int, seed uint64) (*Grid, error) {
	if err := checkSize(params, size); err != nil {
		return nil, err
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	rng := rand.New(src)
	unif := distuv.Uniform{Min: 0, Max: 1, Src: src}

	points := make([]Point, size)
	for i := range points {
		points[i] = make(Point, len(params))
	}
	for _, p := range params {
		perm := rng.Perm(size)
		for i := range points {
			u := (float64(perm[i]) + unif.Rand()) / float64(size)
			points[i][p.ID] = p.Value(u)
		}
	}
	return &Grid{Params: params, Points: dedupe(points)}, nil
}

// Explicit wraps user-provided points. Every point must assign every
// parameter, and nothing else.
func Explicit(params Set, points ...Point) (*Grid, error) {
	if _, err := NewSet(params...); err != nil {
		return nil, err
	}
	for i, pt := range points {
		if len(pt) != len(params) {
			return nil, errors.NewValidationError("points", fmt.Sprintf("point %d has %d values for %d parameters", i, len(pt), len(params)), pt)
		}
		for _, p := range params {
			if _, ok := pt[p.ID]; !ok {
				return nil, errors.NewValidationError(p.ID, fmt.Sprintf("missing from point %d", i), pt)
			}
		}
	}
	return &Grid{Params: params, Points: dedupe(points)}, nil
}

func checkSize(params Set, size int) error {
	if size < 1 {
		return errors.NewValidationError("size", "must be at least 1", size)
	}
	_, err := NewSet(params...)
	return err
}

func dedupe(points []Point) []Point {
	seen := make(map[string]bool, len(points))
	out := points[:0:0]
	for _, p := range points {
		k := p.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}

// ConfigIDs names each point "Preprocessor<i>_Model<j>". Distinct values of
// the preprocessing parameters (those for which isPreprocessor is true) are
// numbered in ascending order, and likewise for the model parameters.
func (g *Grid) ConfigIDs(isPreprocessor func(id string) bool) []string {
	pre := make([]Point, len(g.Points))
	mod := make([]Point, len(g.Points))
	for i, pt := range g.Points {
		pre[i] = pt.Restrict(isPreprocessor)
		mod[i] = pt.Restrict(func(id string) bool { return !isPreprocessor(id) })
	}
	preIdx, preN := rank(pre)
	modIdx, modN := rank(mod)

	preWidth := len(strconv.Itoa(preN))
	modWidth := len(strconv.Itoa(modN))
	if modWidth < 2 {
		modWidth = 2
	}
	ids := make([]string, len(g.Points))
	for i := range g.Points {
		ids[i] = fmt.Sprintf("Preprocessor%0*d_Model%0*d", preWidth, preIdx[pre[i].Key()], modWidth, modIdx[mod[i].Key()])
	}
	return ids
}

// rank numbers the distinct points from 1, ordered by value of each id in
// sorted id order.
func rank(points []Point) (map[string]int, int) {
	distinct := make([]Point, 0, len(points))
	seen := make(map[string]bool)
	for _, p := range points {
		if k := p.Key(); !seen[k] {
			seen[k] = true
			distinct = append(distinct, p)
		}
	}
	sort.Slice(distinct, func(i, j int) bool { return Less(distinct[i], distinct[j]) })
	idx := make(map[string]int, len(distinct))
	for i, p := range distinct {
		idx[p.Key()] = i + 1
	}
	return idx, len(distinct)
}

// Less orders points by their values, comparing ids in sorted order.
func Less(a, b Point) bool {
	for _, k := range a.Keys() {
		av, bv := a[k], b[k]
		if av != bv {
			return av < bv
		}
	}
	return false
}
