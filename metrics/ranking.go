package metrics

import (
	"sort"

	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// AveragePrecision はスコアの降順に閾値を動かしたときの適合率を、
// 再現率の増分で重み付けして合計する。
//
//	AP = Σ_k (R_k - R_{k-1}) * P_k
//
// 同じスコアは一つの閾値として扱うので、0/1 の硬い予測を渡しても
// 順序に依存しない値になる。陽性が一つもない場合は 0 を返す。
func AveragePrecision(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AveragePrecision", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("AveragePrecision", yTrue); err != nil {
		return 0, err
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return yScore.AtVec(order[a]) > yScore.AtVec(order[b])
	})

	var totalPos float64
	for i := 0; i < n; i++ {
		totalPos += yTrue.AtVec(i)
	}
	if totalPos == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("average_precision", "no positive samples in y_true", 0))
		return 0, nil
	}

	var ap, tp, prevRecall float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && yScore.AtVec(order[j+1]) == yScore.AtVec(order[i]) {
			j++
		}
		for k := i; k <= j; k++ {
			tp += yTrue.AtVec(order[k])
		}
		recall := tp / totalPos
		precision := tp / float64(j+1)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
		i = j + 1
	}
	return ap, nil
}
