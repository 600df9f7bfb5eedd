package linear

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

func TestLinearRegression_Fit(t *testing.T) {
	// y = 1 + 2*x1 - 3*x2
	X := mat.NewDense(5, 2, []float64{
		1, 0,
		2, 1,
		3, 5,
		4, 2,
		0, 3,
	})
	y := mat.NewDense(5, 1, nil)
	for i := 0; i < 5; i++ {
		y.Set(i, 0, 1+2*X.At(i, 0)-3*X.At(i, 1))
	}

	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if math.Abs(lr.Intercept-1) > 1e-8 {
		t.Errorf("intercept = %v, want 1", lr.Intercept)
	}
	want := []float64{2, -3}
	for j, w := range want {
		if math.Abs(lr.Weights[j]-w) > 1e-8 {
			t.Errorf("weight[%d] = %v, want %v", j, lr.Weights[j], w)
		}
	}

	score, err := lr.Score(X, y)
	if err != nil || math.Abs(score-1) > 1e-10 {
		t.Errorf("Score = %v, %v", score, err)
	}
}

func TestLinearRegression_PenaltyShrinks(t *testing.T) {
	X, y := createBenchmarkData(100, 3)

	tests := []struct {
		name    string
		penalty float64
	}{
		{"none", 0},
		{"small", 0.01},
		{"large", 10},
	}

	prev := math.Inf(1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := NewLinearRegression(WithPenalty(tt.penalty))
			if err := lr.Fit(X, y); err != nil {
				t.Fatal(err)
			}
			var norm float64
			for _, w := range lr.Weights {
				norm += w * w
			}
			if norm >= prev {
				t.Errorf("penalty %v: ||w||^2 = %v, expected less than %v", tt.penalty, norm, prev)
			}
			prev = norm
		})
	}
}

func TestLinearRegression_Singular(t *testing.T) {
	// 2列目は1列目の2倍
	X := mat.NewDense(4, 2, []float64{
		1, 2,
		2, 4,
		3, 6,
		4, 8,
	})
	y := mat.NewDense(4, 1, []float64{1, 2, 3, 4})

	err := NewLinearRegression().Fit(X, y)
	var fitErr *errors.FitError
	if !errors.As(err, &fitErr) {
		t.Fatalf("expected FitError, got %v", err)
	}
	if !errors.Is(err, errors.ErrSingularMatrix) {
		t.Errorf("expected ErrSingularMatrix in chain, got %v", err)
	}

	// リッジを加えれば解ける
	if err := NewLinearRegression(WithPenalty(0.1)).Fit(X, y); err != nil {
		t.Errorf("ridge fit failed: %v", err)
	}
}

func TestLinearRegression_NotFitted(t *testing.T) {
	lr := NewLinearRegression()
	_, err := lr.Predict(mat.NewDense(1, 2, nil))
	var nf *errors.NotFittedError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFittedError, got %v", err)
	}
}

func TestLinearRegression_DimensionMismatch(t *testing.T) {
	X, y := createBenchmarkData(20, 3)
	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	_, err := lr.Predict(mat.NewDense(2, 4, nil))
	var dim *errors.DimensionError
	if !errors.As(err, &dim) {
		t.Errorf("expected DimensionError, got %v", err)
	}
}

// TestLogisticRegression_FitPredict_Binary tests binary classification
func TestLogisticRegression_FitPredict_Binary(t *testing.T) {
	X := mat.NewDense(8, 2, []float64{
		0.5, 0.5,
		1.0, 1.5,
		1.5, 1.0,
		2.6, 1.9,
		3.0, 2.5,
		2.5, 3.0,
		3.5, 3.5,
		1.8, 2.2,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	lr := NewLogisticRegression(WithLogisticPenalty(0.01))
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}

	XTest := mat.NewDense(2, 2, []float64{
		0.5, 0.5, // class 0
		4.0, 4.0, // class 1
	})
	preds, err := lr.Predict(XTest)
	if err != nil {
		t.Fatalf("Failed to predict: %v", err)
	}
	if preds.At(0, 0) != 0 || preds.At(1, 0) != 1 {
		t.Errorf("unexpected predictions: %v", mat.Formatted(preds))
	}

	probas, err := lr.PredictProba(XTest)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if s := probas.At(i, 0) + probas.At(i, 1); math.Abs(s-1) > 1e-12 {
			t.Errorf("row %d probabilities sum to %v", i, s)
		}
	}
	if probas.At(1, 1) <= 0.5 {
		t.Errorf("P(class 1 | (4,4)) = %v", probas.At(1, 1))
	}
}

func TestLogisticRegression_Multiclass(t *testing.T) {
	X := mat.NewDense(9, 1, []float64{0, 0.5, 1, 5, 5.5, 6, 10, 10.5, 11})
	y := mat.NewDense(9, 1, []float64{2, 2, 2, 4, 4, 4, 7, 7, 7})

	lr := NewLogisticRegression(WithLogisticPenalty(1e-3))
	if err := lr.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if got := lr.Classes(); len(got) != 3 || got[0] != 2 || got[2] != 7 {
		t.Errorf("Classes() = %v", got)
	}
	preds, err := lr.Predict(mat.NewDense(2, 1, []float64{0.2, 10.8}))
	if err != nil {
		t.Fatal(err)
	}
	if preds.At(0, 0) != 2 || preds.At(1, 0) != 7 {
		t.Errorf("unexpected predictions: %v", mat.Formatted(preds))
	}
}

func TestLogisticRegression_MulticlassProbaSumsToOne(t *testing.T) {
	X := mat.NewDense(9, 1, []float64{0, 0.5, 1, 5, 5.5, 6, 10, 10.5, 11})
	y := mat.NewDense(9, 1, []float64{2, 2, 2, 4, 4, 4, 7, 7, 7})

	lr := NewLogisticRegression(WithLogisticPenalty(1e-3))
	if err := lr.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	// far outside the training range every one-vs-rest score saturates
	probas, err := lr.PredictProba(mat.NewDense(4, 1, []float64{-1e6, 0.2, 5.4, 1e6}))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		var sum float64
		for k := 0; k < 3; k++ {
			p := probas.At(i, k)
			if math.IsNaN(p) || p < 0 || p > 1 {
				t.Fatalf("row %d class %d: probability %v", i, k, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("row %d: probabilities sum to %v", i, sum)
		}
	}
}

func TestLogSigmoid(t *testing.T) {
	for _, z := range []float64{-30, -1, 0, 2, 30} {
		if got, want := logSigmoid(z), math.Log(sigmoid(z)); math.Abs(got-want) > 1e-9 {
			t.Errorf("logSigmoid(%v) = %v, want %v", z, got, want)
		}
	}
	if got := logSigmoid(-1000); got != -1000 {
		t.Errorf("logSigmoid(-1000) = %v, want -1000", got)
	}
}

func TestLogisticRegression_SingleClass(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(3, 1, []float64{1, 1, 1})
	err := NewLogisticRegression().Fit(X, y)
	var fitErr *errors.FitError
	if !errors.As(err, &fitErr) {
		t.Errorf("expected FitError, got %v", err)
	}
}

func TestLogisticRegression_ConvergenceWarning(t *testing.T) {
	var warned []error
	errors.SetWarningHandler(func(w error) { warned = append(warned, w) })
	defer errors.SetWarningHandler(func(error) {})

	X := mat.NewDense(6, 1, []float64{1, 2, 3, 4, 5, 6})
	y := mat.NewDense(6, 1, []float64{0, 1, 0, 1, 0, 1})
	if err := NewLogisticRegression(WithMaxIter(1)).Fit(X, y); err != nil {
		t.Fatal(err)
	}

	if len(warned) != 1 {
		t.Fatalf("expected one warning, got %d", len(warned))
	}
	var cw *errors.ConvergenceWarning
	if !errors.As(warned[0], &cw) {
		t.Errorf("expected ConvergenceWarning, got %T", warned[0])
	}
}
