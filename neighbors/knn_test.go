package neighbors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

func TestClassifier(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		5, 5,
		5, 6,
		6, 5,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})

	m := NewClassifier(WithK(3))
	require.NoError(t, m.Fit(X, y))
	assert.Equal(t, []float64{0, 1}, m.Classes())

	q := mat.NewDense(2, 2, []float64{0.2, 0.2, 5.5, 5.5})
	pred, err := m.Predict(q)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pred.At(0, 0))
	assert.Equal(t, 1.0, pred.At(1, 0))

	proba, err := m.PredictProba(q)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, mat.Row(nil, 0, proba))
}

func TestClassifierVoteShares(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 10})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})
	m := NewClassifier(WithK(3))
	require.NoError(t, m.Fit(X, y))

	proba, err := m.PredictProba(mat.NewDense(1, 1, []float64{1}))
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3, proba.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0/3, proba.At(0, 1), 1e-12)
}

func TestRegressor(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 10, 20, 30})

	m := NewRegressor(WithK(2))
	require.NoError(t, m.Fit(X, y))
	pred, err := m.Predict(mat.NewDense(1, 1, []float64{0.4}))
	require.NoError(t, err)
	assert.InDelta(t, 5, pred.At(0, 0), 1e-12)

	inv := NewRegressor(WithK(2), WithWeightFunc(Inverse))
	require.NoError(t, inv.Fit(X, y))
	pred, err = inv.Predict(mat.NewDense(1, 1, []float64{0.25}))
	require.NoError(t, err)
	// weights 1/0.25 and 1/0.75
	assert.InDelta(t, 2.5, pred.At(0, 0), 1e-9)

	_, err = m.PredictProba(X)
	assert.Error(t, err)
}

func TestParallelPredictMatchesSequential(t *testing.T) {
	n := parallelThreshold * 3
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i%17))
		X.Set(i, 1, float64(i%5))
		y.Set(i, 0, float64(i%3))
	}
	m := NewClassifier(WithK(7))
	require.NoError(t, m.Fit(X, y))

	all, err := m.Predict(X)
	require.NoError(t, err)
	for _, i := range []int{0, 300, n - 1} {
		one, err := m.Predict(X.Slice(i, i+1, 0, 2))
		require.NoError(t, err)
		assert.Equal(t, one.At(0, 0), all.At(i, 0), "row %d", i)
	}
}

func TestValidation(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})
	y := mat.NewDense(2, 1, []float64{0, 1})

	var verr *errors.ValidationError
	assert.True(t, errors.As(NewClassifier(WithK(0)).Fit(X, y), &verr))
	assert.True(t, errors.As(NewClassifier(WithWeightFunc("gaussian")).Fit(X, y), &verr))

	_, err := NewClassifier().Predict(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}
