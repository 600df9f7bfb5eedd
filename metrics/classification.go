package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// checkPair は2つのベクトルが空でなく同じ長さであることを確認する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != yTrue.Len() {
		return 0, errors.NewDimensionError(op, yTrue.Len(), yPred.Len(), 0)
	}
	return yTrue.Len(), nil
}

// checkBinary はラベルが0か1のみであることを確認する
func checkBinary(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// AUC はROC曲線下面積を計算する。yTrueは0/1、yPredは陽性(1)のスコア
// 同順位は0.5として数える（Mann-Whitney U統計量）
// 片方のクラスしか存在しない場合は未定義のためNaNを返し、警告を出す
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", yTrue); err != nil {
		return 0, err
	}
	truth := make([]bool, n)
	score := make([]float64, n)
	for i := 0; i < n; i++ {
		truth[i] = yTrue.AtVec(i) == 1
		score[i] = yPred.AtVec(i)
	}
	auc, ok := rankAUC(truth, score)
	if !ok {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_auc", "only one class present in truth", math.NaN()))
		return math.NaN(), nil
	}
	return auc, nil
}

// rankAUC は平均順位からAUCを計算する。片方のクラスが空ならokはfalse
func rankAUC(positive []bool, score []float64) (float64, bool) {
	n := len(score)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return score[idx[a]] < score[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && score[idx[j+1]] == score[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	var nPos, nNeg, sumPos float64
	for i, p := range positive {
		if p {
			nPos++
			sumPos += ranks[i]
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, false
	}
	return (sumPos - nPos*(nPos+1)/2) / (nPos * nNeg), true
}

// confusion は混同行列を返す。行が真のクラス、列が予測クラス
func confusion(truth, pred []float64, nClasses int) [][]float64 {
	cm := make([][]float64, nClasses)
	for k := range cm {
		cm[k] = make([]float64, nClasses)
	}
	for i := range truth {
		t, p := int(truth[i]), int(pred[i])
		if t >= 0 && t < nClasses && p >= 0 && p < nClasses {
			cm[t][p]++
		}
	}
	return cm
}

// oneVsRest はクラスkを陽性としたときのTP, FP, FNを返す
func oneVsRest(cm [][]float64, k int) (tp, fp, fn float64) {
	tp = cm[k][k]
	for j := range cm {
		if j == k {
			continue
		}
		fp += cm[j][k]
		fn += cm[k][j]
	}
	return tp, fp, fn
}

// averaged は2クラスならイベントクラス(0)の値、多クラスならマクロ平均を返す
// 分母が0のクラスは未定義として警告し、平均から除く
func averaged(name string, cm [][]float64, f func(tp, fp, fn, tn float64) (float64, bool)) float64 {
	var total float64
	for _, row := range cm {
		for _, v := range row {
			total += v
		}
	}
	classes := []int{0}
	if len(cm) > 2 {
		classes = classes[:0]
		for k := range cm {
			classes = append(classes, k)
		}
	}
	var sum float64
	var n int
	for _, k := range classes {
		tp, fp, fn := oneVsRest(cm, k)
		v, ok := f(tp, fp, fn, total-tp-fp-fn)
		if !ok {
			errors.Warn(errors.NewUndefinedMetricWarning(name, "a zero denominator for one of the classes", math.NaN()))
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func ratio(num, den float64) (float64, bool) {
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// Sensitivity は再現率 TP/(TP+FN) を計算する
func Sensitivity(truth, pred []float64, nClasses int) float64 {
	return averaged("sensitivity", confusion(truth, pred, nClasses), func(tp, _, fn, _ float64) (float64, bool) {
		return ratio(tp, tp+fn)
	})
}

// Specificity は特異度 TN/(TN+FP) を計算する
func Specificity(truth, pred []float64, nClasses int) float64 {
	return averaged("specificity", confusion(truth, pred, nClasses), func(_, fp, _, tn float64) (float64, bool) {
		return ratio(tn, tn+fp)
	})
}

// Precision は適合率 TP/(TP+FP) を計算する
func Precision(truth, pred []float64, nClasses int) float64 {
	return averaged("precision", confusion(truth, pred, nClasses), func(tp, fp, _, _ float64) (float64, bool) {
		return ratio(tp, tp+fp)
	})
}

// F1 は適合率と再現率の調和平均を計算する
func F1(truth, pred []float64, nClasses int) float64 {
	return averaged("f_meas", confusion(truth, pred, nClasses), func(tp, fp, fn, _ float64) (float64, bool) {
		return ratio(2*tp, 2*tp+fp+fn)
	})
}

// Kappa はCohenのカッパ係数を計算する
func Kappa(truth, pred []float64, nClasses int) float64 {
	cm := confusion(truth, pred, nClasses)
	var n, agree, chance float64
	rowSums := make([]float64, nClasses)
	colSums := make([]float64, nClasses)
	for i := range cm {
		for j, v := range cm[i] {
			n += v
			rowSums[i] += v
			colSums[j] += v
			if i == j {
				agree += v
			}
		}
	}
	if n == 0 {
		return math.NaN()
	}
	for k := range rowSums {
		chance += rowSums[k] * colSums[k] / (n * n)
	}
	if chance == 1 {
		errors.Warn(errors.NewUndefinedMetricWarning("kap", "chance agreement is 1", math.NaN()))
		return math.NaN()
	}
	return (agree/n - chance) / (1 - chance)
}

// ROCAUC は確率行列からROC AUCを計算する
// 2クラスはイベントクラス(0列目)のスコア、多クラスはHand-Tillの平均を使う
func ROCAUC(truth []float64, prob mat.Matrix) float64 {
	_, k := prob.Dims()
	if k == 2 {
		// イベントはレベル0なので、0列目の確率を陽性スコアとする
		event := make([]float64, len(truth))
		for i, t := range truth {
			if t == 0 {
				event[i] = 1
			}
		}
		auc, err := AUC(vec(event), vec(mat.Col(nil, 0, prob)))
		if err != nil {
			return math.NaN()
		}
		return auc
	}

	var sum float64
	var pairs int
	for a := 0; a < k; a++ {
		for b := a + 1; b < k; b++ {
			aab, okA := pairAUC(truth, prob, a, b)
			aba, okB := pairAUC(truth, prob, b, a)
			if !okA || !okB {
				continue
			}
			sum += (aab + aba) / 2
			pairs++
		}
	}
	if pairs == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_auc", "fewer than two classes present in truth", math.NaN()))
		return math.NaN()
	}
	return sum / float64(pairs)
}

// pairAUC はクラスaとbの行だけを使い、a列の確率でaをbと区別するAUCを返す
func pairAUC(truth []float64, prob mat.Matrix, a, b int) (float64, bool) {
	var positive []bool
	var score []float64
	for i, t := range truth {
		if int(t) == a || int(t) == b {
			positive = append(positive, int(t) == a)
			score = append(score, prob.At(i, a))
		}
	}
	return rankAUC(positive, score)
}

// MeanLogLoss は多クラス対数損失 -mean(log p_true) を計算する
func MeanLogLoss(truth []float64, prob mat.Matrix) float64 {
	var sum float64
	for i, t := range truth {
		sum -= errors.StabilizeLog(errors.ClipValue(prob.At(i, int(t)), 0, 1))
	}
	return sum / float64(len(truth))
}
