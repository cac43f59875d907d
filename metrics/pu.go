package metrics

import (
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/pu"
	"gonum.org/v1/gonum/mat"
)

// DefaultPrior は PriorSquaredError の既定の事前確率
const DefaultPrior = 0.015

// PUScore は PU 学習用の F値に相当する指標を計算する。
//
//	pu_score = recall² / P(yPred == 1)
//
// recall は yTrue == Positive の行だけで数える。真陽性が一つもない場合は
// recall の分母を 1 とするので recall は 0 になる。
// 陽性予測が一つもない場合は 0 を返し、UndefinedMetricWarning を発生させる。
func PUScore(yTrue pu.Labels, yPred *mat.VecDense) (float64, error) {
	if err := checkLabelPair("PUScore", yTrue, yPred); err != nil {
		return 0, err
	}
	if err := checkBinary("PUScore", yPred); err != nil {
		return 0, err
	}

	var tp, nPos, predPos float64
	for i, t := range yTrue {
		p := yPred.AtVec(i)
		if t == pu.Positive {
			nPos++
			if p == 1 {
				tp++
			}
		}
		if p == 1 {
			predPos++
		}
	}
	if tp == 0 {
		nPos = 1
	}
	recall := tp / nPos

	if predPos == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("pu_score", "no positive predictions", 0))
		return 0, nil
	}
	prPositive := predPos / float64(len(yTrue))
	return recall * recall / prPositive, nil
}

// PrOneUnlabeled は Unlabeled の行のうち陽性と予測された割合を返す。
// Unlabeled の行がなければ 0。
func PrOneUnlabeled(yTrue pu.Labels, yPred *mat.VecDense) (float64, error) {
	if err := checkLabelPair("PrOneUnlabeled", yTrue, yPred); err != nil {
		return 0, err
	}
	var unlabeled, predPos float64
	for i, t := range yTrue {
		if t != pu.Unlabeled {
			continue
		}
		unlabeled++
		if yPred.AtVec(i) == 1 {
			predPos++
		}
	}
	return errors.SafeDivide(predPos, unlabeled), nil
}

// PriorSquaredError は Unlabeled の陽性予測率と事前確率 prior の差の二乗を返す。
// Unlabeled の行がなければ情報がないので 0.0。
func PriorSquaredError(yTrue pu.Labels, yPred *mat.VecDense, prior float64) (float64, error) {
	if prior < 0 || prior > 1 {
		return 0, errors.NewValidationError("prior", "must be in [0, 1]", prior)
	}
	if yTrue.Count().Unlabeled == 0 {
		if err := checkLabelPair("PriorSquaredError", yTrue, yPred); err != nil {
			return 0, err
		}
		return 0.0, nil
	}
	rate, err := PrOneUnlabeled(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	d := rate - prior
	return d * d, nil
}

// BrierScoreLabeledLoss は既知ラベルの行だけで Brier スコアを計算する。
// yProb は陽性クラスの確率。
func BrierScoreLabeledLoss(yTrue pu.Labels, yProb *mat.VecDense) (float64, error) {
	return LabeledMetric(BrierScoreLoss, yTrue, yProb)
}
