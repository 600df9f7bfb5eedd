// Package param describes tunable hyperparameters and the grids of
// candidate values evaluated during tuning.
package param

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Kind is the value type of a parameter.
type Kind int

const (
	Double Kind = iota
	Integer
	Discrete
)

// Transform maps the searched range to the natural scale.
type Transform int

const (
	Identity Transform = iota
	// Log10 means Lower/Upper are exponents: the value is 10^x.
	Log10
)

// Param is one tunable hyperparameter. For Double and Integer kinds the
// search range [Lower, Upper] is on the transformed scale; Discrete
// parameters pick from Values.
type Param struct {
	ID     string
	Label  string
	Kind   Kind
	Lower  float64
	Upper  float64
	Trans  Transform
	Values []float64
}

// Validate checks the range.
func (p Param) Validate() error {
	if p.ID == "" {
		return errors.NewValidationError("id", "parameter id must not be empty", p.ID)
	}
	if p.Kind == Discrete {
		if len(p.Values) == 0 {
			return errors.NewValidationError(p.ID, "discrete parameter needs values", p.Values)
		}
		return nil
	}
	if !(p.Lower <= p.Upper) {
		return errors.NewValidationError(p.ID, "lower bound exceeds upper bound", [2]float64{p.Lower, p.Upper})
	}
	return nil
}

// Value maps u in [0, 1] onto the parameter's natural scale.
func (p Param) Value(u float64) float64 {
	u = math.Max(0, math.Min(1, u))
	if p.Kind == Discrete {
		i := int(u * float64(len(p.Values)))
		if i == len(p.Values) {
			i--
		}
		return p.Values[i]
	}
	x := p.Lower + u*(p.Upper-p.Lower)
	if p.Trans == Log10 {
		x = math.Pow(10, x)
	}
	if p.Kind == Integer {
		x = math.Round(x)
	}
	return x
}

// Levels returns n evenly spaced values over the range (all values for a
// Discrete parameter). Integer parameters may yield fewer than n distinct
// values.
func (p Param) Levels(n int) []float64 {
	if p.Kind == Discrete {
		return append([]float64(nil), p.Values...)
	}
	if n <= 1 {
		return []float64{p.Value(0.5)}
	}
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := p.Value(float64(i) / float64(n-1))
		if len(out) == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// WithRange returns a copy with a new range (on the transformed scale).
func (p Param) WithRange(lower, upper float64) Param {
	p.Lower, p.Upper = lower, upper
	return p
}

// WithID returns a copy under a different id, for tuning two parameters
// of the same type in one workflow.
func (p Param) WithID(id string) Param {
	p.ID = id
	return p
}

// Penalty is the amount of regularization, 10^-10 to 1.
func Penalty() Param {
	return Param{ID: "penalty", Label: "Amount of Regularization", Kind: Double, Lower: -10, Upper: 0, Trans: Log10}
}

// Mixture is the proportion of L1 penalty.
func Mixture() Param {
	return Param{ID: "mixture", Label: "Proportion of Lasso Penalty", Kind: Double, Lower: 0, Upper: 1}
}

// Neighbors is the number of nearest neighbours.
func Neighbors() Param {
	return Param{ID: "neighbors", Label: "# Nearest Neighbors", Kind: Integer, Lower: 1, Upper: 15}
}

// TreeDepth is the maximum depth of a tree.
func TreeDepth() Param {
	return Param{ID: "tree_depth", Label: "Tree Depth", Kind: Integer, Lower: 1, Upper: 15}
}

// MinN is the minimum number of rows in a node to split it.
func MinN() Param {
	return Param{ID: "min_n", Label: "Minimal Node Size", Kind: Integer, Lower: 2, Upper: 40}
}

// CostComplexity is the tree pruning penalty, 10^-10 to 10^-1.
func CostComplexity() Param {
	return Param{ID: "cost_complexity", Label: "Cost-Complexity Parameter", Kind: Double, Lower: -10, Upper: -1, Trans: Log10}
}

// NumComp is the number of principal components kept.
func NumComp() Param {
	return Param{ID: "num_comp", Label: "# Components", Kind: Integer, Lower: 1, Upper: 4}
}

// Threshold is a proportion used by filtering and pooling steps.
func Threshold() Param {
	return Param{ID: "threshold", Label: "Threshold", Kind: Double, Lower: 0, Upper: 1}
}

// Set is an ordered list of parameters with unique ids.
type Set []Param

// NewSet checks for duplicate ids and invalid ranges.
func NewSet(params ...Param) (Set, error) {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, errors.NewValidationError(p.ID, "duplicate parameter id", p.ID)
		}
		seen[p.ID] = true
	}
	return Set(params), nil
}

// Get returns the parameter with the given id.
func (s Set) Get(id string) (Param, bool) {
	for _, p := range s {
		if p.ID == id {
			return p, true
		}
	}
	return Param{}, false
}

// IDs returns the parameter ids in order.
func (s Set) IDs() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.ID
	}
	return out
}

// Update replaces the parameter with id, e.g. to bound num_comp by the
// number of predictors once it is known.
func (s Set) Update(id string, p Param) (Set, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := append(Set(nil), s...)
	for i := range out {
		if out[i].ID == id {
			p.ID = id
			out[i] = p
			return out, nil
		}
	}
	return nil, errors.NewValidationError(id, "no such parameter", id)
}

// Point is one concrete assignment of values to parameter ids.
type Point map[string]float64

// Clone returns a copy.
func (p Point) Clone() Point {
	out := make(Point, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the ids in sorted order.
func (p Point) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Restrict returns the entries whose id satisfies keep.
func (p Point) Restrict(keep func(id string) bool) Point {
	out := make(Point)
	for k, v := range p {
		if keep(k) {
			out[k] = v
		}
	}
	return out
}

// Merge returns p overlaid with q.
func (p Point) Merge(q Point) Point {
	out := p.Clone()
	for k, v := range q {
		out[k] = v
	}
	return out
}

// Key is a canonical string form, usable as a map key.
func (p Point) Key() string {
	keys := p.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.10g", k, p[k])
	}
	return strings.Join(parts, ",")
}

func (p Point) String() string {
	if len(p) == 0 {
		return "{}"
	}
	return "{" + p.Key() + "}"
}
