package metrics

import (
	"math/rand/v2"
	"testing"

	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/pu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func vec(values ...float64) *mat.VecDense {
	return mat.NewVecDense(len(values), values)
}

func TestLabeledMetricExcludesUnlabeled(t *testing.T) {
	yTrue := pu.MustFromInts(1, -1, 0, 1)
	yPred := vec(1, 0, 0, 1)

	acc, err := LabeledMetric(Accuracy, yTrue, yPred)
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)

	// The unlabeled row is a false negative only when assumed negative.
	yPred = vec(1, 1, 0, 1)
	acc, err = LabeledMetric(Accuracy, yTrue, yPred)
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)

	acc, err = AssumedMetric(Accuracy, yTrue, yPred)
	require.NoError(t, err)
	assert.Equal(t, 0.75, acc)
}

func TestLabeledMetricNoLabeledRows(t *testing.T) {
	yTrue := pu.MustFromInts(-1, -1)
	_, err := LabeledMetric(Accuracy, yTrue, vec(1, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoLabeledSamples))
	assert.True(t, IsUndefined(err))
}

func TestLabeledMetricDimensionMismatch(t *testing.T) {
	_, err := LabeledMetric(Accuracy, pu.MustFromInts(1, 0), vec(1))
	require.Error(t, err)
	assert.False(t, IsUndefined(err))
}

func TestConfusionMatrixAdapters(t *testing.T) {
	yTrue := pu.MustFromInts(1, -1, 0, 1, -1)
	yPred := vec(1, 1, 0, 0, 0)

	lab, err := LabeledMetric(ConfusionMatrix, yTrue, yPred)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1, 1}, lab.RawMatrix().Data)

	un, err := AssumedMetric(ConfusionMatrix, yTrue, yPred)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1, 1, 1}, un.RawMatrix().Data)
	assert.Equal(t, 5.0, mat.Sum(un))
}

func TestPUScore(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []int
		yPred []float64
		want  float64
	}{
		{
			name:  "half recall, half predicted positive",
			yTrue: []int{1, 1, -1, -1},
			yPred: []float64{1, 0, 1, 0},
			want:  0.25 / 0.5,
		},
		{
			name:  "perfect recall",
			yTrue: []int{1, 0, -1, -1},
			yPred: []float64{1, 0, 0, 0},
			want:  1.0 / 0.25,
		},
		{
			name:  "no true positives gives zero recall",
			yTrue: []int{1, 0, -1},
			yPred: []float64{0, 1, 1},
			want:  0,
		},
		{
			name:  "no predicted positives",
			yTrue: []int{1, 0, -1},
			yPred: []float64{0, 0, 0},
			want:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PUScore(pu.MustFromInts(tt.yTrue...), vec(tt.yPred...))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestPUScoreProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.IntN(30)
		labels := make([]int, n)
		preds := make([]float64, n)
		for i := range labels {
			labels[i] = rng.IntN(3) - 1
			preds[i] = float64(rng.IntN(2))
		}
		yTrue := pu.MustFromInts(labels...)
		got, err := PUScore(yTrue, vec(preds...))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, 0.0)

		recall, err := LabeledMetric(Recall, yTrue, vec(preds...))
		if err == nil {
			assert.GreaterOrEqual(t, recall, 0.0)
			assert.LessOrEqual(t, recall, 1.0)
		}
	}
}

func TestPUScoreRejectsSoftPredictions(t *testing.T) {
	_, err := PUScore(pu.MustFromInts(1, 0), vec(0.3, 0.7))
	assert.Error(t, err)
}

func TestPriorSquaredError(t *testing.T) {
	yTrue := pu.MustFromInts(1, -1, -1, -1, -1)
	yPred := vec(1, 1, 0, 0, 0)

	got, err := PriorSquaredError(yTrue, yPred, 0.015)
	require.NoError(t, err)
	assert.InDelta(t, (0.25-0.015)*(0.25-0.015), got, 1e-12)

	_, err = PriorSquaredError(yTrue, yPred, 1.5)
	assert.Error(t, err)
}

func TestPriorSquaredErrorWithoutUnlabeled(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	yTrue := pu.MustFromInts(1, 0, 0, 1)
	for trial := 0; trial < 50; trial++ {
		preds := make([]float64, len(yTrue))
		for i := range preds {
			preds[i] = float64(rng.IntN(2))
		}
		got, err := PriorSquaredError(yTrue, vec(preds...), rng.Float64())
		require.NoError(t, err)
		assert.Equal(t, 0.0, got)
	}
}

func TestPrOneUnlabeled(t *testing.T) {
	got, err := PrOneUnlabeled(pu.MustFromInts(-1, -1, 1, -1), vec(1, 0, 1, 1))
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, got, 1e-12)

	got, err = PrOneUnlabeled(pu.MustFromInts(1, 0), vec(1, 1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestBrierScoreLabeledLoss(t *testing.T) {
	yTrue := pu.MustFromInts(1, -1, 0)
	yProb := vec(0.8, 0.9, 0.4)

	got, err := BrierScoreLabeledLoss(yTrue, yProb)
	require.NoError(t, err)
	assert.InDelta(t, (0.04+0.16)/2, got, 1e-12)
}

func TestBrierScorePartialLoss(t *testing.T) {
	yTrue := vec(1, 0, 1, 0)
	yProb := vec(0.5, 0.2, 1.0, 0.4)

	pos, err := BrierPartialFunc(1)(yTrue, yProb)
	require.NoError(t, err)
	assert.InDelta(t, 0.125, pos, 1e-12)

	neg, err := BrierScorePartialLoss(yTrue, yProb, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, neg, 1e-12)

	_, err = BrierScorePartialLoss(vec(0, 0), vec(0.1, 0.2), 1)
	assert.True(t, IsUndefined(err))
}
