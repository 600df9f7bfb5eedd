// Package tree implements CART decision trees for classification (gini or
// entropy) and regression (variance reduction).
package tree

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

var (
	_ model.Classifier      = (*DecisionTree)(nil)
	_ model.FeatureImporter = (*DecisionTree)(nil)
	_ model.ParameterSetter = (*DecisionTree)(nil)
)

// Node is one node of a fitted tree. Children are indices into
// DecisionTree.Nodes; a leaf has Left == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	// Value holds class proportions for classification, the mean for regression.
	Value    []float64
	Samples  int
	Impurity float64
	Depth    int
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool { return n.Left < 0 }

// DecisionTree is a binary CART tree.
type DecisionTree struct {
	model.StateManager

	Classification  bool
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// CostComplexity rejects splits whose impurity decrease is below this
	// fraction of the root node's total impurity.
	CostComplexity float64

	Nodes       []Node
	Labels      []float64
	Importances []float64
}

// Option configures a DecisionTree.
type Option func(*DecisionTree)

// WithCriterion sets the split criterion: "gini" or "entropy" for
// classification, "variance" for regression.
func WithCriterion(c string) Option { return func(t *DecisionTree) { t.Criterion = c } }

// WithMaxDepth limits the tree depth. Zero means unlimited.
func WithMaxDepth(d int) Option { return func(t *DecisionTree) { t.MaxDepth = d } }

// WithMinSamplesSplit sets the minimum node size that may be split.
func WithMinSamplesSplit(n int) Option { return func(t *DecisionTree) { t.MinSamplesSplit = n } }

// WithMinSamplesLeaf sets the minimum number of rows in a leaf.
func WithMinSamplesLeaf(n int) Option { return func(t *DecisionTree) { t.MinSamplesLeaf = n } }

// WithCostComplexity sets the relative improvement a split must achieve.
func WithCostComplexity(cp float64) Option { return func(t *DecisionTree) { t.CostComplexity = cp } }

// NewDecisionTreeClassifier returns a gini classification tree.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTree {
	return newTree(true, "gini", opts)
}

// NewDecisionTreeRegressor returns a variance regression tree.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTree {
	return newTree(false, "variance", opts)
}

func newTree(classification bool, criterion string, opts []Option) *DecisionTree {
	t := &DecisionTree{
		Classification:  classification,
		Criterion:       criterion,
		MaxDepth:        30,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *DecisionTree) validate() error {
	switch {
	case t.Classification && t.Criterion != "gini" && t.Criterion != "entropy":
		return errors.NewValidationError("criterion", "classification trees use gini or entropy", t.Criterion)
	case !t.Classification && t.Criterion != "variance":
		return errors.NewValidationError("criterion", "regression trees use variance", t.Criterion)
	case t.MaxDepth < 0:
		return errors.NewValidationError("tree_depth", "must be non-negative", t.MaxDepth)
	case t.MinSamplesSplit < 2:
		return errors.NewValidationError("min_n", "must be at least 2", t.MinSamplesSplit)
	case t.MinSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", t.MinSamplesLeaf)
	case t.CostComplexity < 0:
		return errors.NewValidationError("cost_complexity", "must be non-negative", t.CostComplexity)
	}
	return nil
}

// builder holds the training data while growing the tree.
type builder struct {
	t        *DecisionTree
	X        mat.Matrix
	y        []float64 // class index or response
	nClasses int
	rootRisk float64
	gain     []float64
}

// Fit grows the tree on X and y.
func (t *DecisionTree) Fit(X, y mat.Matrix) error {
	if err := t.validate(); err != nil {
		return err
	}
	r, c := X.Dims()
	ry, _ := y.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("DecisionTree.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("DecisionTree.Fit", r, ry, 0)
	}
	if err := errors.CheckMatrix("DecisionTree.Fit", X, r, c, 0); err != nil {
		return errors.NewFitError("DecisionTree.Fit", "decision_tree", err)
	}

	b := &builder{t: t, X: X, y: make([]float64, r), gain: make([]float64, c)}
	if t.Classification {
		seen := map[float64]bool{}
		t.Labels = t.Labels[:0]
		for i := 0; i < r; i++ {
			if v := y.At(i, 0); !seen[v] {
				seen[v] = true
				t.Labels = append(t.Labels, v)
			}
		}
		sort.Float64s(t.Labels)
		index := make(map[float64]int, len(t.Labels))
		for k, v := range t.Labels {
			index[v] = k
		}
		for i := 0; i < r; i++ {
			b.y[i] = float64(index[y.At(i, 0)])
		}
		b.nClasses = len(t.Labels)
	} else {
		t.Labels = nil
		for i := 0; i < r; i++ {
			b.y[i] = y.At(i, 0)
		}
	}

	rows := make([]int, r)
	for i := range rows {
		rows[i] = i
	}
	t.Nodes = t.Nodes[:0]
	rootImp := b.impurity(rows)
	b.rootRisk = rootImp * float64(r)
	b.grow(rows, 0, rootImp)

	t.Importances = make([]float64, c)
	var total float64
	for _, g := range b.gain {
		total += g
	}
	if total > 0 {
		for j, g := range b.gain {
			t.Importances[j] = g / total
		}
	}

	t.SetFitted(c, r)
	return nil
}

func (b *builder) value(rows []int) []float64 {
	if !b.t.Classification {
		var s float64
		for _, i := range rows {
			s += b.y[i]
		}
		return []float64{s / float64(len(rows))}
	}
	v := make([]float64, b.nClasses)
	for _, i := range rows {
		v[int(b.y[i])]++
	}
	for k := range v {
		v[k] /= float64(len(rows))
	}
	return v
}

func (b *builder) impurity(rows []int) float64 {
	if !b.t.Classification {
		var s, ss float64
		for _, i := range rows {
			s += b.y[i]
			ss += b.y[i] * b.y[i]
		}
		n := float64(len(rows))
		return math.Max(ss/n-(s/n)*(s/n), 0)
	}
	counts := make([]float64, b.nClasses)
	for _, i := range rows {
		counts[int(b.y[i])]++
	}
	return b.classImpurity(counts, float64(len(rows)))
}

func (b *builder) classImpurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	var imp float64
	if b.t.Criterion == "entropy" {
		for _, c := range counts {
			if c > 0 {
				p := c / n
				imp -= p * math.Log2(p)
			}
		}
		return imp
	}
	imp = 1
	for _, c := range counts {
		p := c / n
		imp -= p * p
	}
	return imp
}

// grow appends the node for rows and its subtree, returning its index.
func (b *builder) grow(rows []int, depth int, imp float64) int {
	t := b.t
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{
		Feature:  -1,
		Left:     -1,
		Right:    -1,
		Value:    b.value(rows),
		Samples:  len(rows),
		Impurity: imp,
		Depth:    depth,
	})

	if imp <= 1e-12 || len(rows) < t.MinSamplesSplit || (t.MaxDepth > 0 && depth >= t.MaxDepth) {
		return id
	}
	feature, threshold, gain, ok := b.bestSplit(rows, imp)
	if !ok {
		return id
	}
	if t.CostComplexity > 0 && (b.rootRisk == 0 || gain/b.rootRisk < t.CostComplexity) {
		return id
	}

	var left, right []int
	for _, i := range rows {
		if b.X.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.gain[feature] += gain

	l := b.grow(left, depth+1, b.impurity(left))
	r := b.grow(right, depth+1, b.impurity(right))
	t.Nodes[id].Feature = feature
	t.Nodes[id].Threshold = threshold
	t.Nodes[id].Left = l
	t.Nodes[id].Right = r
	return id
}

// bestSplit scans every feature for the threshold with the largest
// decrease in total impurity. Ties keep the first feature and threshold.
func (b *builder) bestSplit(rows []int, imp float64) (feature int, threshold, gain float64, ok bool) {
	_, c := b.X.Dims()
	n := len(rows)
	parent := imp * float64(n)
	minLeaf := b.t.MinSamplesLeaf
	gain = -1

	sorted := make([]int, n)
	for j := 0; j < c; j++ {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(a, z int) bool { return b.X.At(sorted[a], j) < b.X.At(sorted[z], j) })

		var leftCounts, rightCounts []float64
		var ls, lss, rs, rss float64
		if b.t.Classification {
			leftCounts = make([]float64, b.nClasses)
			rightCounts = make([]float64, b.nClasses)
			for _, i := range sorted {
				rightCounts[int(b.y[i])]++
			}
		} else {
			for _, i := range sorted {
				rs += b.y[i]
				rss += b.y[i] * b.y[i]
			}
		}

		for k := 0; k < n-1; k++ {
			i := sorted[k]
			if b.t.Classification {
				leftCounts[int(b.y[i])]++
				rightCounts[int(b.y[i])]--
			} else {
				ls += b.y[i]
				lss += b.y[i] * b.y[i]
				rs -= b.y[i]
				rss -= b.y[i] * b.y[i]
			}
			nl, nr := k+1, n-k-1
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			xa, xb := b.X.At(i, j), b.X.At(sorted[k+1], j)
			if xa == xb {
				continue
			}

			var child float64
			if b.t.Classification {
				child = b.classImpurity(leftCounts, float64(nl))*float64(nl) +
					b.classImpurity(rightCounts, float64(nr))*float64(nr)
			} else {
				child = math.Max(lss-ls*ls/float64(nl), 0) + math.Max(rss-rs*rs/float64(nr), 0)
			}
			if g := parent - child; g > gain+1e-12 {
				feature, threshold, gain, ok = j, (xa+xb)/2, math.Max(g, 0), true
			}
		}
	}
	return feature, threshold, gain, ok
}

func (t *DecisionTree) leaf(X mat.Matrix, i int) Node {
	n := t.Nodes[0]
	for !n.IsLeaf() {
		if X.At(i, n.Feature) <= n.Threshold {
			n = t.Nodes[n.Left]
		} else {
			n = t.Nodes[n.Right]
		}
	}
	return n
}

// PredictProba returns the class proportions of the leaf each row falls
// into. Columns follow Classes.
func (t *DecisionTree) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := t.RequireFitted("DecisionTree", "PredictProba"); err != nil {
		return nil, err
	}
	if !t.Classification {
		return nil, errors.NewValueError("DecisionTree.PredictProba", "probabilities are only defined for classification")
	}
	if err := t.RequireFeatures("DecisionTree.PredictProba", X); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, len(t.Labels), nil)
	for i := 0; i < r; i++ {
		out.SetRow(i, t.leaf(X, i).Value)
	}
	return out, nil
}

// Predict returns the majority class of the leaf, or its mean response.
func (t *DecisionTree) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := t.RequireFitted("DecisionTree", "Predict"); err != nil {
		return nil, err
	}
	if err := t.RequireFeatures("DecisionTree.Predict", X); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		v := t.leaf(X, i).Value
		if !t.Classification {
			out.Set(i, 0, v[0])
			continue
		}
		best := 0
		for k := range v {
			if v[k] > v[best] {
				best = k
			}
		}
		out.Set(i, 0, t.Labels[best])
	}
	return out, nil
}

// Classes returns the sorted class labels seen by Fit.
func (t *DecisionTree) Classes() []float64 { return append([]float64(nil), t.Labels...) }

// FeatureImportances returns the normalized total impurity decrease per
// feature.
func (t *DecisionTree) FeatureImportances() ([]float64, error) {
	if err := t.RequireFitted("DecisionTree", "FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), t.Importances...), nil
}

// Score returns accuracy for classification and R² for regression.
func (t *DecisionTree) Score(X, y mat.Matrix) (float64, error) {
	pred, err := t.Predict(X)
	if err != nil {
		return 0, err
	}
	r, _ := y.Dims()
	if t.Classification {
		correct := 0
		for i := 0; i < r; i++ {
			if pred.At(i, 0) == y.At(i, 0) {
				correct++
			}
		}
		return float64(correct) / float64(r), nil
	}
	var mean float64
	for i := 0; i < r; i++ {
		mean += y.At(i, 0)
	}
	mean /= float64(r)
	var tss, rss float64
	for i := 0; i < r; i++ {
		tss += (y.At(i, 0) - mean) * (y.At(i, 0) - mean)
		rss += (y.At(i, 0) - pred.At(i, 0)) * (y.At(i, 0) - pred.At(i, 0))
	}
	if tss == 0 {
		return 0, errors.NewValueError("DecisionTree.Score", "total sum of squares is zero")
	}
	return 1 - rss/tss, nil
}

// GetDepth returns the depth of the deepest leaf.
func (t *DecisionTree) GetDepth() int {
	depth := 0
	for _, n := range t.Nodes {
		if n.Depth > depth {
			depth = n.Depth
		}
	}
	return depth
}

// GetNLeaves returns the number of leaves.
func (t *DecisionTree) GetNLeaves() int {
	leaves := 0
	for _, n := range t.Nodes {
		if n.IsLeaf() {
			leaves++
		}
	}
	return leaves
}

// GetParams returns the hyperparameters.
func (t *DecisionTree) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         t.Criterion,
		"max_depth":         t.MaxDepth,
		"min_samples_split": t.MinSamplesSplit,
		"min_samples_leaf":  t.MinSamplesLeaf,
		"cost_complexity":   t.CostComplexity,
	}
}

// SetParams sets hyperparameters by name.
func (t *DecisionTree) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "criterion":
			t.Criterion, ok = value.(string)
		case "max_depth":
			t.MaxDepth, ok = value.(int)
		case "min_samples_split":
			t.MinSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			t.MinSamplesLeaf, ok = value.(int)
		case "cost_complexity":
			t.CostComplexity, ok = value.(float64)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("unexpected type %T", value), value)
		}
	}
	return nil
}
