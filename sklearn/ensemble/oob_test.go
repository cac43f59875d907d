package ensemble

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/pulearn/core/model"
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/pu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestOOBMask(t *testing.T) {
	assert.Equal(t, []bool{false, true, false, true}, oobMask([]int{2, 0, 1, 0}))
}

func TestOOBDecisionHandComputed(t *testing.T) {
	probas := []*mat.Dense{
		mat.NewDense(3, 2, []float64{0.2, 0.8, 0.6, 0.4, 0.5, 0.5}),
		mat.NewDense(3, 2, []float64{0.4, 0.6, 0.1, 0.9, 0.3, 0.7}),
	}
	masks := [][]bool{
		{true, true, false},
		{false, true, false},
	}

	decision, missing := oobDecision(probas, masks, 3)
	assert.Equal(t, 1, missing)
	// row 0: tree 0 only; row 1: mean of both trees; row 2: in every bootstrap
	assert.InDelta(t, 0.2, decision.At(0, 0), 1e-12)
	assert.InDelta(t, 0.8, decision.At(0, 1), 1e-12)
	assert.InDelta(t, 0.35, decision.At(1, 0), 1e-12)
	assert.InDelta(t, 0.65, decision.At(1, 1), 1e-12)
	assert.True(t, math.IsNaN(decision.At(2, 0)))
	assert.True(t, math.IsNaN(decision.At(2, 1)))

	// row 0 predicts 1 (correct), row 1 predicts 1 (wrong), row 2 is skipped
	assert.InDelta(t, 0.5, oobAccuracy(decision, []int{1, 0, 1}), 1e-12)

	none, missing := oobDecision(probas, [][]bool{{false, false, false}, {false, false, false}}, 3)
	assert.Equal(t, 3, missing)
	assert.True(t, math.IsNaN(oobAccuracy(none, []int{1, 0, 1})))
}

func TestSubsampleForestOOBMatchesPlans(t *testing.T) {
	X, y := puDataset()
	forest := NewSubsampleForest(
		WithNEstimators(12),
		WithTargetImbalanceRatio(0.5),
		WithRandomState(11),
		WithOOBScore(true),
		WithLogger(silentLogger()),
	)
	report, err := forest.FitContext(context.Background(), X, y, nil)
	require.NoError(t, err)

	labels, err := pu.FromMatrix(y)
	require.NoError(t, err)
	n := len(labels)
	trees := forest.Trees()
	probas := make([]*mat.Dense, len(trees))
	masks := make([][]bool, len(trees))
	for i, member := range trees {
		plan, err := PlanSeeded(labels, 0.5, forest.Seed(), i)
		require.NoError(t, err)
		masks[i] = oobMask(plan.Counts(n))
		probas[i], err = treeProba(member, X, n)
		require.NoError(t, err)
	}
	want, _ := oobDecision(probas, masks, n)

	got, err := forest.OOBDecisionFunction()
	require.NoError(t, err)
	rows, cols := got.Dims()
	require.Equal(t, n, rows)
	require.Equal(t, 2, cols)
	for i := 0; i < n; i++ {
		if math.IsNaN(want.At(i, 0)) {
			assert.True(t, math.IsNaN(got.At(i, 0)), "row %d", i)
			continue
		}
		assert.InDelta(t, 1.0, got.At(i, 0)+got.At(i, 1), 1e-9)
		assert.InDelta(t, want.At(i, 1), got.At(i, 1), 1e-12, "row %d", i)
	}

	score, err := forest.OOBScore()
	require.NoError(t, err)
	assert.InDelta(t, oobAccuracy(want, binaryTarget(labels)), score, 1e-12)
	assert.Equal(t, score, report.OOBScore)
	assert.GreaterOrEqual(t, score, 0.5)
}

func TestSubsampleForestOOBMissingRowsWarn(t *testing.T) {
	warnings := captureWarnings(t)
	X, y := puDataset()
	forest := NewSubsampleForest(
		WithNEstimators(1),
		WithRandomState(2),
		WithOOBScore(true),
		WithEstimatorFactory(func(uint64) model.WeightedClassifier { return &stubTree{} }),
		WithLogger(silentLogger()),
	)
	report, err := forest.FitContext(context.Background(), X, y, nil)
	require.NoError(t, err)

	decision, err := forest.OOBDecisionFunction()
	require.NoError(t, err)
	drawn, correct := 0, 0
	labels, _ := pu.FromMatrix(y)
	for i, l := range labels {
		if math.IsNaN(decision.At(i, 0)) {
			drawn++
			continue
		}
		// the member only knows class 0
		assert.Equal(t, 1.0, decision.At(i, 0))
		if l != pu.Positive {
			correct++
		}
	}
	require.Positive(t, drawn)

	require.Len(t, report.Warnings, 1)
	var mw *errors.MissingOOBWarning
	require.True(t, errors.As(report.Warnings[0], &mw))
	assert.Equal(t, drawn, mw.Missing)
	assert.Equal(t, 60, mw.Total)
	assert.Len(t, *warnings, 1)
	assert.InDelta(t, float64(correct)/float64(60-drawn), report.OOBScore, 1e-12)
}

func TestSubsampleForestOOBWarmStartEqualsColdFit(t *testing.T) {
	X, y := puDataset()
	forest := NewSubsampleForest(WithNEstimators(4), WithRandomState(5), WithOOBScore(true), WithLogger(silentLogger()))
	require.NoError(t, forest.Fit(X, y))
	forest.SetWarmStart(true)
	forest.SetNEstimators(9)
	require.NoError(t, forest.Fit(X, y))

	cold := NewSubsampleForest(WithNEstimators(9), WithRandomState(5), WithOOBScore(true), WithLogger(silentLogger()))
	require.NoError(t, cold.Fit(X, y))

	a, err := forest.OOBDecisionFunction()
	require.NoError(t, err)
	b, err := cold.OOBDecisionFunction()
	require.NoError(t, err)
	assert.True(t, sameWithNaN(a, b))
	sa, _ := forest.OOBScore()
	sb, _ := cold.OOBScore()
	assert.Equal(t, sb, sa)
}

func TestSubsampleForestOOBDisabledOrUnavailable(t *testing.T) {
	X, y := puDataset()
	forest := NewSubsampleForest(WithNEstimators(3), WithRandomState(1), WithLogger(silentLogger()))

	_, err := forest.OOBScore()
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	report, err := forest.FitContext(context.Background(), X, y, nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(report.OOBScore))
	_, err = forest.OOBScore()
	assert.Error(t, err)
	_, err = forest.OOBDecisionFunction()
	assert.Error(t, err)

	err = NewSubsampleForest(WithOOBScore(true), WithBootstrap(false), WithLogger(silentLogger())).Fit(X, y)
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "oob_score", ve.ParamName)
}

func TestSubsampleForestOOBSurvivesSaveLoad(t *testing.T) {
	X, y := puDataset()
	forest := NewSubsampleForest(WithNEstimators(6), WithRandomState(4), WithOOBScore(true), WithLogger(silentLogger()))
	require.NoError(t, forest.Fit(X, y))

	path := filepath.Join(t.TempDir(), "forest.gob")
	require.NoError(t, forest.Save(path))
	loaded, err := Load(path, WithLogger(silentLogger()))
	require.NoError(t, err)

	want, _ := forest.OOBScore()
	got, err := loaded.OOBScore()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	a, _ := forest.OOBDecisionFunction()
	b, _ := loaded.OOBDecisionFunction()
	assert.True(t, sameWithNaN(a, b))

	// the bootstrap masks are not stored, so growing with oob_score fails
	loaded.SetWarmStart(true)
	loaded.SetNEstimators(8)
	err = loaded.Fit(X, y)
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "oob_score", ve.ParamName)
	assert.Equal(t, 6, loaded.NEstimators())
}

func sameWithNaN(a, b mat.Matrix) bool {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb || ca != cb {
		return false
	}
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			x, y := a.At(i, j), b.At(i, j)
			if math.IsNaN(x) && math.IsNaN(y) {
				continue
			}
			if math.Abs(x-y) > 1e-12 {
				return false
			}
		}
	}
	return true
}
