package tune

import (
	"context"
	"fmt"
	"testing"

	"github.com/YuminosukeSato/tidytune/modelspec"
	"github.com/YuminosukeSato/tidytune/param"
	"github.com/YuminosukeSato/tidytune/recipe"
	"github.com/YuminosukeSato/tidytune/resample"
	"github.com/YuminosukeSato/tidytune/workflow"
)

func BenchmarkTuneGrid(b *testing.B) {
	data := linearFrame(500, 42)
	rs, err := VFold(data, resample.VFoldOptions{V: 10, Seed: 1})
	if err != nil {
		b.Fatal(err)
	}
	wf := workflow.New("ridge", recipe.New("y", recipe.Normalize(recipe.AllNumericPredictors())),
		modelspec.LinearReg().SetTune(param.Penalty()))
	grid, err := param.Regular(param.Set{param.Penalty()}, 10)
	if err != nil {
		b.Fatal(err)
	}

	for _, workers := range []int{1, 4} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			ctrl := quiet()
			ctrl.Workers = workers
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := TuneGrid(context.Background(), wf, rs, grid, nil, ctrl); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkTuneGridRacing(b *testing.B) {
	data := linearFrame(500, 42)
	rs, err := VFold(data, resample.VFoldOptions{V: 10, Seed: 1})
	if err != nil {
		b.Fatal(err)
	}
	wf := workflow.New("knn", recipe.New("y"), modelspec.NearestNeighbor(modelspec.Regression).SetTune(param.Neighbors()))
	grid, err := param.Regular(param.Set{param.Neighbors()}, 8)
	if err != nil {
		b.Fatal(err)
	}
	ctrl := quiet()
	ctrl.Race = &RaceControl{}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := TuneGrid(context.Background(), wf, rs, grid, nil, ctrl); err != nil {
			b.Fatal(err)
		}
	}
}
