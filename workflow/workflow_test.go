package workflow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/modelspec"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/recipe"
)

func regressionFrame() *dataset.Frame {
	x := make([]float64, 40)
	z := make([]float64, 40)
	y := make([]float64, 40)
	for i := range x {
		x[i] = float64(i)
		z[i] = float64(i%7) - 3
		y[i] = 2*x[i] - z[i] + 1
	}
	x[5] = math.NaN()
	return dataset.MustFrame(
		dataset.NewNumeric("x", x),
		dataset.NewNumeric("z", z),
		dataset.NewNumeric("y", y),
	)
}

func classFrame() *dataset.Frame {
	n := 60
	x := make([]float64, n)
	cls := make([]string, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i)
		if i < n/2 {
			cls[i] = "no"
		} else {
			cls[i] = "yes"
		}
	}
	return dataset.MustFrame(dataset.NewNumeric("x", x), dataset.NewNominal("class", cls))
}

func TestWorkflowFitPredictRegression(t *testing.T) {
	rec := recipe.New("y", recipe.ImputeMean(recipe.AllNumericPredictors()))
	wf := New("lm", rec, modelspec.LinearReg())

	fitted, err := wf.Fit(regressionFrame(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "z"}, fitted.Predictors())

	pred, err := fitted.Predict(regressionFrame())
	require.NoError(t, err)
	require.Len(t, pred.Numeric, 40)
	// Row 30: x=30, z=-1. The single imputed row pulls the fit only slightly.
	assert.InDelta(t, 62.0, pred.Numeric[30], 3)
	assert.Nil(t, pred.Prob)
}

func TestWorkflowFitRequiresImputation(t *testing.T) {
	wf := New("lm", recipe.New("y"), modelspec.LinearReg())
	_, err := wf.Fit(regressionFrame(), nil)
	var de *errors.DataShapeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "x", de.Column)
}

func TestWorkflowClassification(t *testing.T) {
	wf := New("knn", recipe.New("class", recipe.Normalize(recipe.AllNumericPredictors())),
		modelspec.NearestNeighbor(modelspec.Classification).SetTune(param.Neighbors()))

	_, err := wf.Fit(classFrame(), nil)
	var ve *errors.ValidationError
	require.ErrorAs(t, err, &ve)

	fitted, err := wf.Fit(classFrame(), param.Point{"neighbors": 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"no", "yes"}, fitted.Levels)

	pred, err := fitted.Predict(classFrame())
	require.NoError(t, err)
	require.NotNil(t, pred.Prob)
	r, c := pred.Prob.Dims()
	assert.Equal(t, 60, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 0.0, pred.Class[0])
	assert.Equal(t, 1.0, pred.Class[59])
	assert.Equal(t, "yes", fitted.Label(pred.Class[59]))

	truth, err := fitted.Truth(classFrame())
	require.NoError(t, err)
	assert.Equal(t, 1.0, truth[59])
}

func TestWithLevelsExpandsProbabilities(t *testing.T) {
	f := dataset.MustFrame(
		dataset.NewNumeric("x", []float64{1, 2, 3, 4, 5, 6}),
		dataset.NewNominal("class", []string{"a", "a", "a", "c", "c", "c"}),
	)
	wf := New("tree", recipe.New("class"), modelspec.DecisionTree(modelspec.Classification))
	fitted, err := wf.Fit(f, nil, WithLevels([]string{"a", "b", "c"}))
	require.NoError(t, err)

	pred, err := fitted.Predict(f)
	require.NoError(t, err)
	_, c := pred.Prob.Dims()
	assert.Equal(t, 3, c)
	for i := 0; i < 6; i++ {
		assert.Equal(t, 0.0, pred.Prob.At(i, 1))
	}
	assert.Equal(t, 2.0, pred.Class[5])
}

func TestEncodeOutcomeErrors(t *testing.T) {
	f := dataset.MustFrame(
		dataset.NewNumeric("num", []float64{1, math.NaN()}),
		dataset.NewNominal("cls", []string{"a", "z"}),
	)
	var de *errors.DataShapeError
	_, err := EncodeOutcome(f, "num", modelspec.Regression, nil)
	assert.ErrorAs(t, err, &de)
	_, err = EncodeOutcome(f, "cls", modelspec.Classification, []string{"a", "b"})
	assert.ErrorAs(t, err, &de)
	_, err = EncodeOutcome(f, "cls", modelspec.Regression, nil)
	assert.ErrorAs(t, err, &de)
	_, err = EncodeOutcome(f, "missing", modelspec.Regression, nil)
	assert.ErrorAs(t, err, &de)
}

func TestTunableMergesAndFinalize(t *testing.T) {
	rec := recipe.New("y", recipe.PCA(recipe.AllNumericPredictors(), recipe.Tune()))
	wf := New("pca_lm", rec, modelspec.LinearReg().SetTune(param.Penalty()))

	ps, err := wf.Tunable()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"num_comp", "penalty"}, ps.IDs())
	assert.True(t, wf.IsPreprocessor("num_comp"))
	assert.False(t, wf.IsPreprocessor("penalty"))

	_, err = Finalize(wf, param.Point{"penalty": 0.1})
	require.Error(t, err)

	final, err := Finalize(wf, param.Point{"penalty": 0.1, "num_comp": 1})
	require.NoError(t, err)
	open, err := final.Tunable()
	require.NoError(t, err)
	assert.Empty(t, open)

	f := dataset.MustFrame(
		dataset.NewNumeric("a", []float64{1, 2, 3, 4, 5, 6}),
		dataset.NewNumeric("b", []float64{2, 4, 5, 8, 11, 12}),
		dataset.NewNumeric("y", []float64{1, 2, 3, 4, 5, 6}),
	)
	fitted, err := final.Fit(f, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"PC1"}, fitted.Prepped.Predictors())
	assert.Equal(t, 0.1, fitted.Params()["penalty"])
}

func TestTunableDuplicateID(t *testing.T) {
	rec := recipe.New("y", recipe.PCA(recipe.AllNumericPredictors(), recipe.Tune("penalty")))
	wf := New("dup", rec, modelspec.LinearReg().SetTune(param.Penalty()))
	_, err := wf.Tunable()
	var ve *errors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestCrossAndPaired(t *testing.T) {
	recs := []Named[*recipe.Recipe]{
		Name("plain", recipe.New("y")),
		Name("norm", recipe.New("y", recipe.Normalize(recipe.AllNumericPredictors()))),
	}
	specs := []Named[modelspec.Spec]{
		Name("lm", modelspec.LinearReg()),
		Name("cart", modelspec.DecisionTree(modelspec.Regression)),
	}

	set, err := Cross(recs, specs)
	require.NoError(t, err)
	assert.Equal(t, 4, set.Len())
	assert.Equal(t, []string{"norm_cart", "norm_lm", "plain_cart", "plain_lm"}, set.IDs())
	w, err := set.Get("norm_cart")
	require.NoError(t, err)
	assert.Equal(t, "decision_tree", w.Spec.Name)

	paired, err := Paired(recs, specs)
	require.NoError(t, err)
	assert.Equal(t, []string{"norm_cart", "plain_lm"}, paired.IDs())

	_, err = Paired(recs, specs[:1])
	assert.Error(t, err)

	_, err = Cross(append(recs, recs[0]), specs)
	var ve *errors.ValidationError
	assert.ErrorAs(t, err, &ve)
}
