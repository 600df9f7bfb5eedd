package linear

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

var (
	_ model.Classifier      = (*LogisticRegression)(nil)
	_ model.FeatureImporter = (*LogisticRegression)(nil)
)

// LogisticRegression はL2正則化付きロジスティック回帰
// 2クラスは1本、多クラスはone-vs-restでクラスごとに1本のモデルを学習する
type LogisticRegression struct {
	model.StateManager

	Penalty float64 // L2正則化の強さ（切片は正則化しない）
	MaxIter int     // ニュートン法の最大反復回数
	Tol     float64 // 収束判定の許容誤差（更新量の最大絶対値）

	Coef      [][]float64 // 係数（2クラスなら1 x n_features、多クラスなら n_classes x n_features）
	Intercept []float64   // 切片
	Labels    []float64   // 学習時に見たクラス（昇順）
	NIter     []int       // モデルごとの実際の反復回数
}

// NewLogisticRegression は新しいLogisticRegressionを作成する
func NewLogisticRegression(opts ...LogisticOption) *LogisticRegression {
	lr := &LogisticRegression{MaxIter: 100, Tol: 1e-6}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit はモデルを学習する
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("LogisticRegression.Fit", "y must be a column vector")
	}
	if lr.Penalty < 0 {
		return errors.NewValidationError("penalty", "must be non-negative", lr.Penalty)
	}

	lr.Labels = uniqueLabels(y)
	if len(lr.Labels) < 2 {
		return errors.NewFitError("LogisticRegression.Fit", "logistic_reg",
			errors.Newf("outcome has %d class in the analysis set", len(lr.Labels)))
	}

	// 2クラスの場合は2番目のクラスを陽性としてモデル化する
	targets := lr.Labels[1:]
	if len(lr.Labels) > 2 {
		targets = lr.Labels
	}
	lr.Coef = make([][]float64, len(targets))
	lr.Intercept = make([]float64, len(targets))
	lr.NIter = make([]int, len(targets))

	for k, class := range targets {
		yBinary := make([]float64, nSamples)
		for i := range yBinary {
			if y.At(i, 0) == class {
				yBinary[i] = 1
			}
		}
		w, iters, err := lr.newton(X, yBinary)
		if err != nil {
			return errors.NewFitError("LogisticRegression.Fit", "logistic_reg",
				errors.Wrapf(err, "class %v", class))
		}
		lr.Intercept[k] = w[0]
		lr.Coef[k] = w[1:]
		lr.NIter[k] = iters
	}

	lr.SetFitted(nFeatures, nSamples)
	return nil
}

// newton はIRLS（ニュートン法）で2値ロジスティック回帰を解く
// 返り値の先頭要素は切片
func (lr *LogisticRegression) newton(X mat.Matrix, y []float64) ([]float64, int, error) {
	n, c := X.Dims()
	p := c + 1
	design := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
		for j := 0; j < c; j++ {
			design.Set(i, j+1, X.At(i, j))
		}
	}

	w := mat.NewVecDense(p, nil)
	grad := mat.NewVecDense(p, nil)
	hess := mat.NewSymDense(p, nil)
	prob := make([]float64, n)
	weighted := mat.NewDense(n, p, nil)
	fn := float64(n)

	for iter := 1; iter <= lr.MaxIter; iter++ {
		for i := 0; i < n; i++ {
			prob[i] = sigmoid(mat.Dot(design.RowView(i), w))
		}

		// 勾配: X^T (p - y) / n + λ w
		for j := 0; j < p; j++ {
			var g float64
			for i := 0; i < n; i++ {
				g += design.At(i, j) * (prob[i] - y[i])
			}
			g /= fn
			if j > 0 {
				g += lr.Penalty * w.AtVec(j)
			}
			grad.SetVec(j, g)
		}

		// ヘッセ行列: X^T W X / n + λ I
		for i := 0; i < n; i++ {
			s := math.Sqrt(prob[i] * (1 - prob[i]) / fn)
			for j := 0; j < p; j++ {
				weighted.Set(i, j, design.At(i, j)*s)
			}
		}
		hess.SymOuterK(1, weighted.T())
		for j := 0; j < p; j++ {
			ridge := 1e-10
			if j > 0 {
				ridge += lr.Penalty
			}
			hess.SetSym(j, j, hess.At(j, j)+ridge)
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(hess); !ok {
			return nil, iter, errors.WithStack(errors.ErrSingularMatrix)
		}
		var step mat.VecDense
		if err := chol.SolveVecTo(&step, grad); err != nil {
			return nil, iter, errors.WithStack(err)
		}
		w.SubVec(w, &step)

		if err := errors.CheckNumericalStability("LogisticRegression.newton", w.RawVector().Data, iter); err != nil {
			return nil, iter, err
		}
		if mat.Norm(&step, math.Inf(1)) < lr.Tol {
			return append([]float64(nil), w.RawVector().Data...), iter, nil
		}
	}

	errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.MaxIter,
		"the classes may be perfectly separable; consider a larger penalty"))
	return append([]float64(nil), w.RawVector().Data...), lr.MaxIter, nil
}

func uniqueLabels(y mat.Matrix) []float64 {
	rows, _ := y.Dims()
	seen := make(map[float64]bool)
	for i := 0; i < rows; i++ {
		seen[y.At(i, 0)] = true
	}
	labels := make([]float64, 0, len(seen))
	for v := range seen {
		labels = append(labels, v)
	}
	sort.Float64s(labels)
	return labels
}

// Classes は学習時に見たクラスを返す
func (lr *LogisticRegression) Classes() []float64 {
	return append([]float64(nil), lr.Labels...)
}

// PredictProba は各クラスの確率を返す。列の順序はClassesと同じ
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.RequireFitted("LogisticRegression", "PredictProba"); err != nil {
		return nil, err
	}
	if err := lr.RequireFeatures("LogisticRegression.PredictProba", X); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	nClasses := len(lr.Labels)
	probas := mat.NewDense(nSamples, nClasses, nil)
	linear := func(i, k int) float64 {
		z := lr.Intercept[k]
		for j := 0; j < nFeatures; j++ {
			z += X.At(i, j) * lr.Coef[k][j]
		}
		return z
	}

	logs := make([]float64, nClasses)
	for i := 0; i < nSamples; i++ {
		if nClasses == 2 {
			p1 := sigmoid(linear(i, 0))
			probas.Set(i, 0, 1-p1)
			probas.Set(i, 1, p1)
			continue
		}
		// one-vs-restの確率を対数空間で合計1に正規化する
		for k := 0; k < nClasses; k++ {
			logs[k] = logSigmoid(linear(i, k))
		}
		lse := errors.LogSumExp(logs)
		for k := 0; k < nClasses; k++ {
			probas.Set(i, k, errors.StabilizeExp(logs[k]-lse))
		}
	}
	return probas, nil
}

// Predict は確率が最大のクラスを返す
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmaxClass(probas, lr.Labels), nil
}

// FeatureImportances は係数の絶対値（多クラスではクラス平均）を返す
func (lr *LogisticRegression) FeatureImportances() ([]float64, error) {
	if err := lr.RequireFitted("LogisticRegression", "FeatureImportances"); err != nil {
		return nil, err
	}
	nFeatures, _ := lr.GetDimensions()
	out := make([]float64, nFeatures)
	for _, coef := range lr.Coef {
		for j, w := range coef {
			out[j] += math.Abs(w) / float64(len(lr.Coef))
		}
	}
	return out, nil
}

// GetParams はハイパーパラメータを返す
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":  lr.Penalty,
		"max_iter": lr.MaxIter,
		"tol":      lr.Tol,
	}
}

func (lr *LogisticRegression) String() string {
	return fmt.Sprintf("LogisticRegression(penalty=%g, max_iter=%d)", lr.Penalty, lr.MaxIter)
}

// argmaxClass は各行で確率最大の列に対応するラベルを返す。同点は先のクラス
func argmaxClass(probas mat.Matrix, labels []float64) *mat.Dense {
	r, c := probas.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		best := 0
		for k := 1; k < c; k++ {
			if probas.At(i, k) > probas.At(i, best) {
				best = k
			}
		}
		out.Set(i, 0, labels[best])
	}
	return out
}

// sigmoid computes the sigmoid function
func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// logSigmoid computes log(sigmoid(z)) without underflow for large |z|
func logSigmoid(z float64) float64 {
	if z >= 0 {
		return -math.Log1p(math.Exp(-z))
	}
	return z - math.Log1p(math.Exp(z))
}
