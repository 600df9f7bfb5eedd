package linear

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// createBenchmarkData はベンチマーク用のデータを生成する
func createBenchmarkData(rows, cols int) (*mat.Dense, *mat.Dense) {
	// シードを固定して再現性を確保
	rng := rand.New(rand.NewPCG(42, 42))

	// X: rows x cols の行列（ランダムな値を生成）
	X := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			// -1.0 から 1.0 の範囲のランダムな値
			X.Set(i, j, rng.Float64()*2.0-1.0)
		}
	}

	// 真の重みベクトルを生成
	trueWeights := make([]float64, cols)
	for j := 0; j < cols; j++ {
		trueWeights[j] = float64(j+1) * 0.5
	}

	// y: rows x 1 の列ベクトル（y = X * weights + 小さなノイズ）
	y := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		sum := 1.0 // 切片
		for j := 0; j < cols; j++ {
			sum += X.At(i, j) * trueWeights[j]
		}
		// 小さなノイズを追加
		sum += (rng.Float64() - 0.5) * 0.1
		y.Set(i, 0, sum)
	}

	return X, y
}

// BenchmarkLinearRegressionFit はFitメソッドのベンチマークを実行する
func BenchmarkLinearRegressionFit(b *testing.B) {
	// 様々なサイズでベンチマークを実行
	sizes := []struct {
		name string
		rows int
		cols int
	}{
		{"Small_100x10", 100, 10},
		{"Small_500x10", 500, 10},
		{"Medium_1000x10", 1000, 10}, // 並列処理の閾値
		{"Medium_2000x10", 2000, 10},
		{"Large_5000x20", 5000, 20},
		{"Large_10000x20", 10000, 20},
		{"XLarge_20000x50", 20000, 50},
		{"XLarge_50000x50", 50000, 50},
	}

	for _, size := range sizes {
		b.Run(size.name, func(b *testing.B) {
			X, y := createBenchmarkData(size.rows, size.cols)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				lr := NewLinearRegression()
				err := lr.Fit(X, y)
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkRidgeFit はリッジ付きの学習を、チューニングで典型的なサイズで測定する
func BenchmarkRidgeFit(b *testing.B) {
	X, y := createBenchmarkData(300, 20)
	for _, penalty := range []float64{0, 1e-4, 1e-1} {
		b.Run(fmt.Sprintf("penalty=%g", penalty), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if err := NewLinearRegression(WithPenalty(penalty)).Fit(X, y); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkLogisticFit はニュートン法の学習を測定する
func BenchmarkLogisticFit(b *testing.B) {
	X, y := createBenchmarkData(300, 20)
	labels := mat.NewDense(300, 1, nil)
	for i := 0; i < 300; i++ {
		if y.At(i, 0) > 1 {
			labels.Set(i, 0, 1)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := NewLogisticRegression(WithLogisticPenalty(1e-3)).Fit(X, labels); err != nil {
			b.Fatal(err)
		}
	}
}
