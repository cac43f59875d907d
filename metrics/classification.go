// Package metrics は分類モデルの評価指標と、PU学習向けの指標を提供します。
//
// 標準指標（正解率、適合率、再現率、F値、ROC-AUC、平均適合率、Brierスコア、
// 混同行列）は 0/1 の二値ラベルを前提とし、PU指標は pu.Labels の三値ラベルを扱います。
package metrics

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// logLossEpsilon は log(0) を避けるためのクリッピング幅
const logLossEpsilon = 1e-15

// Func は (yTrue, yPred) からスカラー値を計算する指標関数
type Func func(yTrue, yPred *mat.VecDense) (float64, error)

// checkPair は二つのベクトルが空でなく同じ長さであることを確認する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "nil vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// checkBinary は y が 0 または 1 のみで構成されていることを確認する
func checkBinary(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be binary (0 or 1)")
		}
	}
	return nil
}

// binaryCounts は二値ラベルに対する tn, fp, fn, tp を数える
func binaryCounts(op string, yTrue, yPred *mat.VecDense) (tn, fp, fn, tp float64, err error) {
	n, err := checkPair(op, yTrue, yPred)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if err := checkBinary(op, yTrue); err != nil {
		return 0, 0, 0, 0, err
	}
	if err := checkBinary(op, yPred); err != nil {
		return 0, 0, 0, 0, err
	}
	for i := 0; i < n; i++ {
		switch t, p := yTrue.AtVec(i), yPred.AtVec(i); {
		case t == 1 && p == 1:
			tp++
		case t == 1:
			fn++
		case p == 1:
			fp++
		default:
			tn++
		}
	}
	return tn, fp, fn, tp, nil
}

// Accuracy は正解率を計算する（多クラスのラベルもそのまま比較する）
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

// Precision は陽性クラス(1)の適合率を計算する。
// 陽性予測が一つもない場合は 0 を返し、UndefinedMetricWarning を発生させる。
func Precision(yTrue, yPred *mat.VecDense) (float64, error) {
	_, fp, _, tp, err := binaryCounts("Precision", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if tp+fp == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted samples", 0))
		return 0, nil
	}
	return tp / (tp + fp), nil
}

// Recall は陽性クラス(1)の再現率を計算する。
// 真の陽性が一つもない場合は 0 を返し、UndefinedMetricWarning を発生させる。
func Recall(yTrue, yPred *mat.VecDense) (float64, error) {
	_, _, fn, tp, err := binaryCounts("Recall", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if tp+fn == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("recall", "no true samples", 0))
		return 0, nil
	}
	return tp / (tp + fn), nil
}

// F1Score は F値 (beta=1) を計算する
func F1Score(yTrue, yPred *mat.VecDense) (float64, error) {
	return FBetaScore(yTrue, yPred, 1)
}

// FBetaScore は再現率に beta 倍の重みを置いた F値を計算する。
//
//	F_beta = (1 + beta²) * tp / ((1 + beta²) * tp + beta² * fn + fp)
//
// 分母が 0 の場合（tp, fn, fp がすべて 0）は 0 を返す。
func FBetaScore(yTrue, yPred *mat.VecDense, beta float64) (float64, error) {
	if beta <= 0 || math.IsNaN(beta) {
		return 0, errors.NewValidationError("beta", "must be positive", beta)
	}
	_, fp, fn, tp, err := binaryCounts("FBetaScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	b2 := beta * beta
	denom := (1+b2)*tp + b2*fn + fp
	if denom == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("f-score", "no true nor predicted samples", 0))
		return 0, nil
	}
	return (1 + b2) * tp / denom, nil
}

// FBetaFunc は beta を固定した Func を返す
func FBetaFunc(beta float64) Func {
	return func(yTrue, yPred *mat.VecDense) (float64, error) {
		return FBetaScore(yTrue, yPred, beta)
	}
}

// ConfusionMatrix はラベル {0, 1} に対する 2×2 の混同行列を返す。
// 行が真のラベル、列が予測ラベルで、[[tn, fp], [fn, tp]] の並びになる。
// 片方のクラスしか現れない場合でも常に 2×2 を返す。
func ConfusionMatrix(yTrue, yPred *mat.VecDense) (*mat.Dense, error) {
	tn, fp, fn, tp, err := binaryCounts("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(2, 2, []float64{tn, fp, fn, tp}), nil
}

// AUC は ROC 曲線下面積を Mann-Whitney の U 統計量として計算する。
// 同順位のスコアには平均順位を割り当てる。
// 陽性または陰性のどちらかしか存在しない場合は定義できないため 0.5 を返す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", yTrue); err != nil {
		return 0, err
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return yScore.AtVec(order[a]) < yScore.AtVec(order[b])
	})

	var nPos, nNeg, rankSumPos float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && yScore.AtVec(order[j+1]) == yScore.AtVec(order[i]) {
			j++
		}
		// 順位は 1 始まり、同順位グループ [i, j] の平均順位
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue.AtVec(order[k]) == 1 {
				nPos++
				rankSumPos += avgRank
			} else {
				nNeg++
			}
		}
		i = j + 1
	}

	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))
		return 0.5, nil
	}
	return (rankSumPos - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}

// BrierScoreLoss は陽性確率 yProb と二値ラベルの平均二乗誤差を計算する
func BrierScoreLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BrierScoreLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("BrierScoreLoss", yTrue); err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		p := yProb.AtVec(i)
		if p < 0 || p > 1 {
			return 0, errors.NewValueError("BrierScoreLoss", "probabilities must be in [0, 1]")
		}
		d := p - yTrue.AtVec(i)
		sum += d * d
	}
	return sum / float64(n), nil
}

// BinaryLogLoss は二値分類の対数損失を計算する。確率は [eps, 1-eps] にクリップする。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yProb.AtVec(i), logLossEpsilon, 1-logLossEpsilon)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}
