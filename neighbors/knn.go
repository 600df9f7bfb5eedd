// Package neighbors implements k-nearest-neighbour classification and
// regression with Euclidean distance. Predictors should be on a common
// scale; put a Normalize step in the recipe.
package neighbors

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/core/parallel"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

var (
	_ model.Classifier      = (*KNN)(nil)
	_ model.Regressor       = (*KNN)(nil)
	_ model.ParameterGetter = (*KNN)(nil)
)

// Weighting schemes for neighbour votes.
const (
	Rectangular = "rectangular"
	Inverse     = "inverse"
)

// Rows above which prediction is split across CPUs.
const parallelThreshold = 256

// KNN is a lazy learner: Fit stores the analysis rows.
type KNN struct {
	model.StateManager

	K              int
	WeightFunc     string
	Classification bool

	Train  [][]float64
	Target []float64
	Labels []float64
}

// Option configures a KNN.
type Option func(*KNN)

// WithK sets the number of neighbours.
func WithK(k int) Option { return func(m *KNN) { m.K = k } }

// WithWeightFunc sets the vote weighting, Rectangular or Inverse distance.
func WithWeightFunc(name string) Option { return func(m *KNN) { m.WeightFunc = name } }

// NewClassifier returns a KNN classifier with k = 5.
func NewClassifier(opts ...Option) *KNN {
	return newKNN(true, opts)
}

// NewRegressor returns a KNN regressor with k = 5.
func NewRegressor(opts ...Option) *KNN {
	return newKNN(false, opts)
}

func newKNN(classification bool, opts []Option) *KNN {
	m := &KNN{K: 5, WeightFunc: Rectangular, Classification: classification}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Fit stores X and y.
func (m *KNN) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, _ := y.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("KNN.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("KNN.Fit", r, ry, 0)
	}
	if m.K < 1 {
		return errors.NewValidationError("neighbors", "must be at least 1", m.K)
	}
	if m.WeightFunc != Rectangular && m.WeightFunc != Inverse {
		return errors.NewValidationError("weight_func", "unknown weighting", m.WeightFunc)
	}
	if err := errors.CheckMatrix("KNN.Fit", X, r, c, 0); err != nil {
		return errors.NewFitError("KNN.Fit", "nearest_neighbor", err)
	}

	m.Train = make([][]float64, r)
	m.Target = make([]float64, r)
	for i := 0; i < r; i++ {
		m.Train[i] = mat.Row(nil, i, X)
		m.Target[i] = y.At(i, 0)
	}
	m.Labels = nil
	if m.Classification {
		seen := map[float64]bool{}
		for _, v := range m.Target {
			if !seen[v] {
				seen[v] = true
				m.Labels = append(m.Labels, v)
			}
		}
		sort.Float64s(m.Labels)
	}
	m.SetFitted(c, r)
	return nil
}

type neighbor struct {
	idx  int
	dist float64
}

// nearest returns the k closest training rows to x, ties broken by row order.
func (m *KNN) nearest(x []float64) []neighbor {
	all := make([]neighbor, len(m.Train))
	for i, row := range m.Train {
		all[i] = neighbor{idx: i, dist: floats.Distance(x, row, 2)}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].dist < all[b].dist })
	k := m.K
	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}

func (m *KNN) weight(n neighbor) float64 {
	if m.WeightFunc == Inverse {
		// exact matches dominate but stay finite
		return 1 / (n.dist + 1e-12)
	}
	return 1
}

// PredictProba returns the weighted share of each class among the k
// nearest neighbours. Columns follow Classes.
func (m *KNN) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := m.RequireFitted("KNN", "PredictProba"); err != nil {
		return nil, err
	}
	if !m.Classification {
		return nil, errors.NewValueError("KNN.PredictProba", "probabilities are only defined for classification")
	}
	if err := m.RequireFeatures("KNN.PredictProba", X); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	col := make(map[float64]int, len(m.Labels))
	for k, l := range m.Labels {
		col[l] = k
	}
	out := mat.NewDense(r, len(m.Labels), nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			votes := make([]float64, len(m.Labels))
			for _, n := range m.nearest(mat.Row(nil, i, X)) {
				votes[col[m.Target[n.idx]]] += m.weight(n)
			}
			floats.Scale(1/floats.Sum(votes), votes)
			out.SetRow(i, votes)
		}
	})
	return out, nil
}

// Predict returns the majority class (classification) or the weighted
// neighbour mean (regression).
func (m *KNN) Predict(X mat.Matrix) (mat.Matrix, error) {
	if m.Classification {
		probas, err := m.PredictProba(X)
		if err != nil {
			return nil, err
		}
		r, _ := probas.Dims()
		out := mat.NewDense(r, 1, nil)
		for i := 0; i < r; i++ {
			out.Set(i, 0, m.Labels[floats.MaxIdx(mat.Row(nil, i, probas))])
		}
		return out, nil
	}

	if err := m.RequireFitted("KNN", "Predict"); err != nil {
		return nil, err
	}
	if err := m.RequireFeatures("KNN.Predict", X); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			var sum, wsum float64
			for _, n := range m.nearest(mat.Row(nil, i, X)) {
				w := m.weight(n)
				sum += w * m.Target[n.idx]
				wsum += w
			}
			out.Set(i, 0, sum/wsum)
		}
	})
	return out, nil
}

// Classes returns the sorted class labels seen by Fit.
func (m *KNN) Classes() []float64 { return append([]float64(nil), m.Labels...) }

// GetParams returns the hyperparameters.
func (m *KNN) GetParams() map[string]interface{} {
	return map[string]interface{}{"neighbors": m.K, "weight_func": m.WeightFunc}
}

func (m *KNN) String() string {
	return fmt.Sprintf("KNN(neighbors=%d, weight_func=%s)", m.K, m.WeightFunc)
}
