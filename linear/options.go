package linear

// Option はLinearRegressionの設定を変更する関数
type Option func(*LinearRegression)

// WithPenalty はリッジ正則化の強さを設定する
// 目的関数は RSS/(2n) + penalty/2 * ||w||^2（切片は正則化しない）
func WithPenalty(penalty float64) Option {
	return func(lr *LinearRegression) {
		lr.Penalty = penalty
	}
}

// WithFitIntercept は切片を学習するかどうかを設定する
func WithFitIntercept(fit bool) Option {
	return func(lr *LinearRegression) {
		lr.FitIntercept = fit
	}
}

// LogisticOption はLogisticRegressionの設定を変更する関数
type LogisticOption func(*LogisticRegression)

// WithLogisticPenalty はL2正則化の強さを設定する
func WithLogisticPenalty(penalty float64) LogisticOption {
	return func(lr *LogisticRegression) {
		lr.Penalty = penalty
	}
}

// WithMaxIter はニュートン法の最大反復回数を設定する
func WithMaxIter(maxIter int) LogisticOption {
	return func(lr *LogisticRegression) {
		lr.MaxIter = maxIter
	}
}

// WithTol は収束判定の許容誤差を設定する
func WithTol(tol float64) LogisticOption {
	return func(lr *LogisticRegression) {
		lr.Tol = tol
	}
}
