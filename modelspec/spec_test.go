package modelspec

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

func classData() (*mat.Dense, []float64) {
	X := mat.NewDense(8, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
		4, 4,
		4, 5,
		5, 4,
		5, 5,
	})
	return X, []float64{0, 0, 0, 0, 1, 1, 1, 1}
}

func TestSettersCopy(t *testing.T) {
	base := LogisticReg()
	tuned := base.SetTune(param.Penalty())
	fixed := base.SetArgs(map[string]float64{"penalty": 0.5})

	assert.Empty(t, base.Tune)
	assert.Equal(t, 0.0, base.Args["penalty"])
	assert.Equal(t, []string{"penalty"}, tuned.Tunable().IDs())
	assert.Equal(t, 0.5, fixed.Args["penalty"])
	assert.Contains(t, tuned.String(), "penalty=tune()")
}

func TestResolve(t *testing.T) {
	spec := DecisionTree(Classification).SetTune(param.TreeDepth(), param.MinN())

	args, err := spec.Resolve(param.Point{"tree_depth": 4, "min_n": 10, "num_comp": 3})
	require.NoError(t, err)
	assert.Equal(t, 4.0, args["tree_depth"])
	assert.Equal(t, 10.0, args["min_n"])
	assert.Equal(t, 0.01, args["cost_complexity"])
	_, extra := args["num_comp"]
	assert.False(t, extra)

	_, err = spec.Resolve(param.Point{"tree_depth": 4})
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestFitEachEngine(t *testing.T) {
	X, y := classData()
	specs := []Spec{
		LogisticReg().SetArgs(map[string]float64{"penalty": 0.01}),
		NearestNeighbor(Classification).SetArgs(map[string]float64{"neighbors": 3}),
		DecisionTree(Classification),
	}
	for _, spec := range specs {
		t.Run(spec.Name, func(t *testing.T) {
			fitted, err := spec.Fit(X, y, nil)
			require.NoError(t, err)
			pred, err := fitted.Predict(X)
			require.NoError(t, err)
			assert.Equal(t, y, pred)

			proba, err := fitted.PredictProba(X)
			require.NoError(t, err)
			r, c := proba.Dims()
			assert.Equal(t, []int{8, 2}, []int{r, c})
			assert.Equal(t, []float64{0, 1}, fitted.Classes())
			assert.NotEmpty(t, fitted.EngineParams())
		})
	}
}

func TestFitRegression(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{1, 2, 3, 4, 5, 6})
	y := []float64{3, 5, 7, 9, 11, 13}

	fitted, err := LinearReg().Fit(X, y, nil)
	require.NoError(t, err)
	pred, err := fitted.Predict(mat.NewDense(1, 1, []float64{10}))
	require.NoError(t, err)
	assert.InDelta(t, 21, pred[0], 1e-8)

	_, err = fitted.PredictProba(X)
	assert.Error(t, err)

	imp, ok, err := fitted.Importance()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 2, imp[0], 1e-8)

	knn, err := NearestNeighbor(Regression).SetArgs(map[string]float64{"weight_func": WeightInverse}).Fit(X, y, nil)
	require.NoError(t, err)
	assert.Nil(t, knn.Classes())
}

func TestFitErrors(t *testing.T) {
	X, y := classData()

	_, err := LinearReg().SetArgs(map[string]float64{"penalty": 0}).Fit(mat.NewDense(3, 2, []float64{1, 2, 2, 4, 3, 6}), []float64{1, 2, 3}, nil)
	var fe *errors.FitError
	assert.True(t, errors.As(err, &fe), "singular design: %v", err)

	_, err = Spec{Name: "svm_rbf", Mode: Classification}.Fit(X, y, nil)
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))

	lin := LinearReg()
	lin.Mode = Classification
	_, err = lin.Fit(X, y, nil)
	assert.True(t, errors.As(err, &verr))

	_, err = LinearReg().Fit(X, y[:3], nil)
	var dim *errors.DimensionError
	assert.True(t, errors.As(err, &dim))
}

func TestFittedGob(t *testing.T) {
	X, y := classData()
	fitted, err := DecisionTree(Classification).Fit(X, y, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(fitted))
	var back Fitted
	require.NoError(t, gob.NewDecoder(&buf).Decode(&back))

	want, err := fitted.Predict(X)
	require.NoError(t, err)
	got, err := back.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
