package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

func sampleFrame(t *testing.T) *Frame {
	t.Helper()
	f, err := NewFrame(
		NewNumeric("x", []float64{1, 2, math.NaN(), 4}),
		NewNominal("g", []string{"a", "b", "", "a"}),
		NewNumeric("y", []float64{10, 20, 30, 40}),
	)
	require.NoError(t, err)
	return f
}

func TestNewFrameValidation(t *testing.T) {
	_, err := NewFrame(NewNumeric("x", []float64{1, 2}), NewNumeric("x", []float64{3, 4}))
	var shapeErr *errors.DataShapeError
	require.True(t, errors.As(err, &shapeErr), "duplicate names: %v", err)

	_, err = NewFrame(NewNumeric("x", []float64{1, 2}), NewNumeric("z", []float64{3}))
	require.True(t, errors.As(err, &shapeErr), "ragged columns: %v", err)
	assert.Equal(t, "z", shapeErr.Column)
}

func TestFrameAccessors(t *testing.T) {
	f := sampleFrame(t)

	assert.Equal(t, 4, f.NRows())
	assert.Equal(t, []string{"x", "g", "y"}, f.Names())
	assert.True(t, f.Has("g"))

	_, err := f.Column("nope")
	var shapeErr *errors.DataShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "nope", shapeErr.Column)

	levels, err := f.Levels("g")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, levels)

	x, _ := f.Column("x")
	assert.Equal(t, 1, x.NACount())
}

func TestSubsetIsDeepCopy(t *testing.T) {
	f := sampleFrame(t)
	sub := f.Subset([]int{3, 0, 0})

	require.Equal(t, 3, sub.NRows())
	y, _ := sub.Column("y")
	assert.Equal(t, []float64{40, 10, 10}, y.Num)

	y.Num[0] = -1
	orig, _ := f.Column("y")
	assert.Equal(t, 40.0, orig.Num[3], "mutating a subset must not touch the source")
}

func TestSelectDropWithColumn(t *testing.T) {
	f := sampleFrame(t)

	sel, err := f.Select("y", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, sel.Names())

	assert.Equal(t, []string{"x", "y"}, f.Drop("g", "missing").Names())

	repl, err := f.WithColumn(NewNumeric("x", []float64{0, 0, 0, 0}))
	require.NoError(t, err)
	x, _ := repl.Column("x")
	assert.Equal(t, []float64{0, 0, 0, 0}, x.Num)
	assert.Equal(t, f.Names(), repl.Names())

	_, err = f.WithColumn(NewNumeric("short", []float64{1}))
	assert.Error(t, err)
}

func TestMatrix(t *testing.T) {
	f := sampleFrame(t)

	m, err := f.Matrix([]string{"y", "x"})
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 20.0, m.At(1, 0))
	assert.Equal(t, 2.0, m.At(1, 1))

	_, err = f.Matrix([]string{"g"})
	assert.Error(t, err, "nominal columns cannot become a matrix")
}

func TestRequireColumnsAndCompleteRows(t *testing.T) {
	f := sampleFrame(t)

	assert.NoError(t, RequireColumns(f, "x", "y"))
	err := RequireColumns(f, "x", "price")
	var shapeErr *errors.DataShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "price", shapeErr.Column)

	rows, err := f.CompleteRows("x", "g")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3}, rows)
}
