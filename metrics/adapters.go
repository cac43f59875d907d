package metrics

import (
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/pu"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoLabeledSamples は Labeled 系の指標で既知ラベルの行が一つもない場合に返る。
	// 値が存在しないことを表し、0 などの数値で代用しない。
	ErrNoLabeledSamples = errors.New("no labeled samples")

	// ErrNoSamplesForLabel は特定クラスに限定した指標で該当行がない場合に返る。
	ErrNoSamplesForLabel = errors.New("no samples for label")
)

// IsUndefined は err が「指標が定義できない」ことを表すかどうかを返す。
// 設定ミスや次元不一致などのエラーは false になる。
func IsUndefined(err error) bool {
	return errors.Is(err, ErrNoLabeledSamples) || errors.Is(err, ErrNoSamplesForLabel)
}

// LabeledMetric は yTrue が Unlabeled でない行だけに fn を適用する。
//
//	acc, err := metrics.LabeledMetric(metrics.Accuracy, yTrue, yPred)
//	cm, err := metrics.LabeledMetric(metrics.ConfusionMatrix, yTrue, yPred)
func LabeledMetric[T any](fn func(yTrue, yPred *mat.VecDense) (T, error), yTrue pu.Labels, yPred *mat.VecDense) (T, error) {
	var zero T
	if err := checkLabelPair("LabeledMetric", yTrue, yPred); err != nil {
		return zero, err
	}
	idx := yTrue.LabeledIndices()
	if len(idx) == 0 {
		return zero, errors.WithStack(ErrNoLabeledSamples)
	}
	t := mat.NewVecDense(len(idx), nil)
	p := mat.NewVecDense(len(idx), nil)
	for k, i := range idx {
		t.SetVec(k, float64(yTrue[i]))
		p.SetVec(k, yPred.AtVec(i))
	}
	return fn(t, p)
}

// AssumedMetric は Unlabeled を Negative とみなして全行に fn を適用する。
func AssumedMetric[T any](fn func(yTrue, yPred *mat.VecDense) (T, error), yTrue pu.Labels, yPred *mat.VecDense) (T, error) {
	var zero T
	if err := checkLabelPair("AssumedMetric", yTrue, yPred); err != nil {
		return zero, err
	}
	return fn(yTrue.AssumeNegative().Vec(), yPred)
}

// BrierScorePartialLoss は真のラベルが label の行だけで Brier スコアを計算する。
func BrierScorePartialLoss(yTrue, yProb *mat.VecDense, label float64) (float64, error) {
	n, err := checkPair("BrierScorePartialLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	var t, p []float64
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == label {
			t = append(t, yTrue.AtVec(i))
			p = append(p, yProb.AtVec(i))
		}
	}
	if len(t) == 0 {
		return 0, errors.Wrapf(ErrNoSamplesForLabel, "label %v", label)
	}
	return BrierScoreLoss(mat.NewVecDense(len(t), t), mat.NewVecDense(len(p), p))
}

// BrierPartialFunc は label を固定した BrierScorePartialLoss を返す
func BrierPartialFunc(label float64) Func {
	return func(yTrue, yProb *mat.VecDense) (float64, error) {
		return BrierScorePartialLoss(yTrue, yProb, label)
	}
}

func checkLabelPair(op string, yTrue pu.Labels, yPred *mat.VecDense) error {
	if yPred == nil {
		return errors.NewValueError(op, "nil prediction vector")
	}
	if len(yTrue) == 0 {
		return errors.NewValueError(op, "empty label vector")
	}
	if yPred.Len() != len(yTrue) {
		return errors.NewDimensionError(op, len(yTrue), yPred.Len(), 0)
	}
	return nil
}
