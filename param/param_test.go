package param

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamValue(t *testing.T) {
	pen := Penalty()
	assert.InDelta(t, 1e-10, pen.Value(0), 1e-20)
	assert.InDelta(t, 1.0, pen.Value(1), 1e-12)
	assert.InDelta(t, 1e-5, pen.Value(0.5), 1e-15)

	nn := Neighbors()
	for _, u := range []float64{0, 0.13, 0.5, 0.99, 1} {
		v := nn.Value(u)
		assert.Equal(t, math.Round(v), v, "integer parameters are rounded")
		assert.GreaterOrEqual(t, v, 1.0)
		assert.LessOrEqual(t, v, 15.0)
	}

	disc := Param{ID: "weight_func", Kind: Discrete, Values: []float64{0, 1}}
	assert.Equal(t, 0.0, disc.Value(0.2))
	assert.Equal(t, 1.0, disc.Value(1))
}

func TestLevels(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, Mixture().Levels(3))
	assert.Equal(t, []float64{1, 2, 3, 4}, NumComp().Levels(10), "integers collapse duplicates")
}

func TestSetUpdate(t *testing.T) {
	s, err := NewSet(Penalty(), NumComp())
	require.NoError(t, err)

	s2, err := s.Update("num_comp", NumComp().WithRange(1, 20))
	require.NoError(t, err)
	p, ok := s2.Get("num_comp")
	require.True(t, ok)
	assert.Equal(t, 20.0, p.Upper)

	orig, _ := s.Get("num_comp")
	assert.Equal(t, 4.0, orig.Upper, "Update returns a new set")

	_, err = s.Update("mtry", NumComp())
	assert.Error(t, err)

	_, err = NewSet(Penalty(), Penalty())
	assert.Error(t, err, "duplicate ids")
}

func TestRegularGrid(t *testing.T) {
	g, err := Regular(Set{Penalty(), Mixture()}, 3)
	require.NoError(t, err)
	assert.Equal(t, 9, g.Size())
}

func TestLatinHypercubeCoversStrata(t *testing.T) {
	const size = 20
	g, err := LatinHypercube(Set{Mixture(), Threshold()}, size, 7)
	require.NoError(t, err)
	require.Equal(t, size, g.Size())

	for _, id := range []string{"mixture", "threshold"} {
		used := make([]bool, size)
		for _, pt := range g.Points {
			bin := int(pt[id] * size)
			if bin == size {
				bin--
			}
			used[bin] = true
		}
		for b, ok := range used {
			assert.Truef(t, ok, "%s stratum %d unused", id, b)
		}
	}
}

func TestRandomGridDeterministic(t *testing.T) {
	a, err := Random(Set{Penalty()}, 5, 3)
	require.NoError(t, err)
	b, err := Random(Set{Penalty()}, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, a.Points, b.Points)
}

func TestIntegerGridDedupes(t *testing.T) {
	g, err := Random(Set{NumComp()}, 50, 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, g.Size(), 4)
}

func TestExplicit(t *testing.T) {
	g, err := Explicit(Set{Penalty()}, Point{"penalty": 0.1}, Point{"penalty": 0.01}, Point{"penalty": 0.1})
	require.NoError(t, err)
	assert.Equal(t, 2, g.Size())

	_, err = Explicit(Set{Penalty()}, Point{"mixture": 0.1})
	assert.Error(t, err)
}

func TestConfigIDs(t *testing.T) {
	g, err := Explicit(Set{NumComp(), Neighbors()},
		Point{"num_comp": 2, "neighbors": 5},
		Point{"num_comp": 1, "neighbors": 5},
		Point{"num_comp": 1, "neighbors": 3},
	)
	require.NoError(t, err)

	ids := g.ConfigIDs(func(id string) bool { return id == "num_comp" })
	assert.Equal(t, []string{
		"Preprocessor2_Model02",
		"Preprocessor1_Model02",
		"Preprocessor1_Model01",
	}, ids)
}

func TestPointHelpers(t *testing.T) {
	p := Point{"b": 2, "a": 1}
	assert.Equal(t, []string{"a", "b"}, p.Keys())
	assert.Equal(t, "a=1,b=2", p.Key())
	assert.Equal(t, Point{"a": 1, "b": 3}, p.Merge(Point{"b": 3}))
	assert.True(t, Less(Point{"a": 1}, Point{"a": 2}))
}
