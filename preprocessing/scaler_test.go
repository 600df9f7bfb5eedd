package preprocessing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10,
	})

	s := NewStandardScalerDefault()
	out, err := s.FitTransform(X)
	if err != nil {
		t.Fatal(err)
	}

	// 平均2.5、不偏標準偏差sqrt(5/3)
	sd := math.Sqrt(5.0 / 3.0)
	if math.Abs(s.Mean[0]-2.5) > 1e-12 || math.Abs(s.Scale[0]-sd) > 1e-12 {
		t.Errorf("unexpected stats: mean=%v scale=%v", s.Mean, s.Scale)
	}
	if got := out.At(0, 0); math.Abs(got-(-1.5/sd)) > 1e-12 {
		t.Errorf("out[0,0] = %v", got)
	}
	// 定数列はスケール1で中心化のみ
	if s.Scale[1] != 1 || out.At(2, 1) != 0 {
		t.Errorf("constant column: scale=%v value=%v", s.Scale[1], out.At(2, 1))
	}

	back, err := s.InverseTransform(out)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(back, X, 1e-12) {
		t.Error("InverseTransform should restore the input")
	}
}

func TestStandardScalerIgnoresNaN(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, math.NaN(), 3})
	s := NewStandardScalerDefault()
	out, err := s.FitTransform(X)
	if err != nil {
		t.Fatal(err)
	}
	if s.Mean[0] != 2 {
		t.Errorf("mean = %v, want 2", s.Mean[0])
	}
	if !math.IsNaN(out.At(1, 0)) {
		t.Error("missing values should pass through")
	}
}

func TestScalerErrors(t *testing.T) {
	s := NewStandardScalerDefault()
	if _, err := s.Transform(mat.NewDense(1, 1, nil)); err == nil {
		t.Error("Transform before Fit should fail")
	} else {
		var nf *errors.NotFittedError
		if !errors.As(err, &nf) {
			t.Errorf("expected NotFittedError, got %T", err)
		}
	}

	if err := s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})); err != nil {
		t.Fatal(err)
	}
	_, err := s.Transform(mat.NewDense(2, 3, nil))
	var dimErr *errors.DimensionError
	if !errors.As(err, &dimErr) {
		t.Errorf("expected DimensionError, got %v", err)
	}

	allNA := mat.NewDense(2, 1, []float64{math.NaN(), math.NaN()})
	var shapeErr *errors.DataShapeError
	if err := NewMinMaxScalerDefault().Fit(allNA); !errors.As(err, &shapeErr) {
		t.Errorf("all-missing column should be a DataShapeError, got %v", err)
	}
}

func TestMinMaxScaler(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{-2, 0, 6})
	m := NewMinMaxScalerDefault()
	out, err := m.FitTransform(X)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 0.25, 1}
	for i, w := range want {
		if math.Abs(out.At(i, 0)-w) > 1e-12 {
			t.Errorf("row %d = %v, want %v", i, out.At(i, 0), w)
		}
	}

	m.Clip = true
	clipped, err := m.Transform(mat.NewDense(1, 1, []float64{10}))
	if err != nil {
		t.Fatal(err)
	}
	if clipped.At(0, 0) != 1 {
		t.Errorf("clipped value = %v, want 1", clipped.At(0, 0))
	}

	back, err := m.InverseTransform(out)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(back, X, 1e-12) {
		t.Error("InverseTransform should restore the input")
	}
}
