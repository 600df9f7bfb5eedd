// Package linear はリッジ付き線形回帰とL2正則化ロジスティック回帰を提供する。
// どちらも model.StateManager を埋め込み、学習後は読み取り専用で共有できる。
package linear

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/core/parallel"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

var (
	_ model.Regressor       = (*LinearRegression)(nil)
	_ model.FeatureImporter = (*LinearRegression)(nil)
	_ model.ParameterGetter = (*LinearRegression)(nil)
)

// 条件数がこれを超える正規方程式は特異とみなす
const maxCondition = 1e12

// LinearRegression は線形回帰モデル
type LinearRegression struct {
	model.StateManager

	Penalty      float64   // リッジ正則化の強さ
	FitIntercept bool      // 切片を学習するか
	Weights      []float64 // 重み（係数）
	Intercept    float64   // 切片
}

// NewLinearRegression は新しい線形回帰モデルを作成する
//
// 使用例:
//
//	lr := linear.NewLinearRegression(linear.WithPenalty(0.01))
//	err := lr.Fit(X, y)
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{FitIntercept: true}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit はモデルを訓練データで学習させる
// 正規方程式 (X^T X + nλD) w = X^T y をコレスキー分解で解く
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LinearRegression.Fit", "y must be a column vector")
	}
	if lr.Penalty < 0 {
		return errors.NewValidationError("penalty", "must be non-negative", lr.Penalty)
	}

	offset := 0
	if lr.FitIntercept {
		offset = 1
	}
	p := c + offset

	// 切片項のために X に 1 の列を追加
	design := mat.NewDense(r, p, nil)

	// 並列処理の閾値（この値以下の行数では逐次処理を使用）
	const parallelThreshold = 1000
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			if offset == 1 {
				design.Set(i, 0, 1.0)
			}
			for j := 0; j < c; j++ {
				design.Set(i, j+offset, X.At(i, j))
			}
		}
	})

	var gram mat.SymDense
	gram.SymOuterK(1, design.T())
	for j := offset; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+float64(r)*lr.Penalty)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok || chol.Cond() > maxCondition {
		return errors.NewFitError("LinearRegression.Fit", "linear_reg", errors.ErrSingularMatrix)
	}

	yVec := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		yVec.SetVec(i, y.At(i, 0))
	}
	var xty mat.VecDense
	xty.MulVec(design.T(), yVec)

	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &xty); err != nil {
		return errors.NewFitError("LinearRegression.Fit", "linear_reg", err)
	}
	if err := errors.CheckNumericalStability("LinearRegression.Fit", w.RawVector().Data, 0); err != nil {
		return errors.NewFitError("LinearRegression.Fit", "linear_reg", err)
	}

	lr.Intercept = 0
	if offset == 1 {
		lr.Intercept = w.AtVec(0)
	}
	lr.Weights = make([]float64, c)
	for j := 0; j < c; j++ {
		lr.Weights[j] = w.AtVec(j + offset)
	}

	lr.SetFitted(c, r)
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.RequireFitted("LinearRegression", "Predict"); err != nil {
		return nil, err
	}
	if err := lr.RequireFeatures("LinearRegression.Predict", X); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		pred := lr.Intercept
		for j := 0; j < c; j++ {
			pred += X.At(i, j) * lr.Weights[j]
		}
		predictions.Set(i, 0, pred)
	}
	return predictions, nil
}

// FeatureImportances は係数の絶対値を返す
// 予測子が標準化されている場合にのみ比較できる
func (lr *LinearRegression) FeatureImportances() ([]float64, error) {
	if err := lr.RequireFitted("LinearRegression", "FeatureImportances"); err != nil {
		return nil, err
	}
	out := make([]float64, len(lr.Weights))
	for j, w := range lr.Weights {
		out[j] = math.Abs(w)
	}
	return out, nil
}

// GetParams はハイパーパラメータを返す
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.Penalty,
		"fit_intercept": lr.FitIntercept,
	}
}

// Score はモデルの決定係数（R²）を計算する
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	yPred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}

	r, _ := y.Dims()
	var yMean float64
	for i := 0; i < r; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(r)

	var tss, rss float64
	for i := 0; i < r; i++ {
		d := y.At(i, 0) - yMean
		e := y.At(i, 0) - yPred.At(i, 0)
		tss += d * d
		rss += e * e
	}
	if tss == 0 {
		return 0, errors.NewValueError("LinearRegression.Score", "total sum of squares is zero")
	}
	return 1 - rss/tss, nil
}
