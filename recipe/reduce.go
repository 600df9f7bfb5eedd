package recipe

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

type pcaStep struct {
	sel     Selector
	numComp Arg
}

// PCA replaces numeric columns with their first numComp principal
// components, named PC1, PC2, .... Columns are centered but not scaled;
// put Normalize first when they are on different scales. Missing values
// must be imputed beforehand.
func PCA(sel Selector, numComp Arg) Step { return &pcaStep{sel: sel, numComp: numComp} }

func (s *pcaStep) Name() string   { return "pca" }
func (s *pcaStep) Kind() StepKind { return KindReduce }
func (s *pcaStep) Tunable() []param.Param {
	return tunable(s.numComp, param.NumComp())
}

func (s *pcaStep) prep(f *dataset.Frame, outcome string, p param.Point) (Trained, error) {
	v, err := s.numComp.resolve("num_comp", p)
	if err != nil {
		return nil, err
	}
	k := int(math.Round(v))
	if k < 1 {
		return nil, errors.NewValidationError("num_comp", "must be at least 1", v)
	}
	cols, X, err := numericMatrix("pca", s.sel, f, outcome)
	if err != nil {
		return nil, err
	}
	if X == nil {
		return nil, errors.NewDataShapeError("pca", "", "no numeric columns selected")
	}
	if err := requireComplete("pca", f, cols); err != nil {
		return nil, err
	}
	if k > len(cols) {
		k = len(cols)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(X, nil); !ok {
		return nil, errors.NewModelError("pca", "singular value decomposition failed", errors.ErrSingularMatrix)
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	t := &trainedPCA{
		Columns:  cols,
		Means:    make([]float64, len(cols)),
		Rotation: make([][]float64, len(cols)),
		Variance: vars[:k],
	}
	for j := range cols {
		t.Means[j] = stat.Mean(mat.Col(nil, j, X), nil)
		t.Rotation[j] = make([]float64, k)
		for c := 0; c < k; c++ {
			t.Rotation[j][c] = vecs.At(j, c)
		}
	}
	return t, nil
}

func requireComplete(op string, f *dataset.Frame, cols []string) error {
	for _, n := range cols {
		c, err := f.Column(n)
		if err != nil {
			return err
		}
		if c.NACount() > 0 {
			return columnError(op, n, fmt.Sprintf("%d missing values; impute before this step", c.NACount()))
		}
	}
	return nil
}

type trainedPCA struct {
	Columns []string
	Means   []float64
	// Rotation is len(Columns) x components.
	Rotation [][]float64
	Variance []float64
}

func (t *trainedPCA) components() int { return len(t.Variance) }

func (t *trainedPCA) Bake(f *dataset.Frame) (*dataset.Frame, error) {
	if err := requireComplete("pca", f, t.Columns); err != nil {
		return nil, err
	}
	n := f.NRows()
	k := t.components()
	scores := make([][]float64, k)
	for c := range scores {
		scores[c] = make([]float64, n)
	}
	for j, name := range t.Columns {
		col, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		for i, x := range col.Num {
			centered := x - t.Means[j]
			for c := 0; c < k; c++ {
				scores[c][i] += centered * t.Rotation[j][c]
			}
		}
	}
	added := make([]*dataset.Column, k)
	for c := range scores {
		added[c] = dataset.NewNumeric(fmt.Sprintf("PC%d", c+1), scores[c])
	}
	return replace(f, t.Columns, added)
}

func (t *trainedPCA) Params() StepParams {
	p := StepParams{Step: "pca", Columns: t.Columns, Values: map[string][]float64{}}
	for j, n := range t.Columns {
		p.Values[n] = append([]float64{t.Means[j]}, t.Rotation[j]...)
	}
	p.Values["variance"] = t.Variance
	return p
}
