package scoring

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func acc(v float64) Dictionary {
	return Dictionary{"acc": ScalarValue(v), ScoreKey: ScalarValue(v)}
}

func TestAggregateMeanAndStd(t *testing.T) {
	grid, err := Aggregate([]RunResult{{
		Splits: []SplitResult{
			{Train: acc(1.0), Test: acc(0.8)},
			{Train: acc(1.0), Test: acc(0.9)},
		},
	}})
	require.NoError(t, err)

	mean, ok := grid.Value(0, "mean_acc_test")
	require.True(t, ok)
	assert.InDelta(t, 0.85, mean, 1e-12)
	std, ok := grid.Value(0, "std_acc_test")
	require.True(t, ok)
	assert.InDelta(t, 0.0707, std, 1e-4)

	v, ok := grid.Value(0, "acc_test1")
	require.True(t, ok)
	assert.Equal(t, 0.9, v)
	v, _ = grid.Value(0, "std_acc_train")
	assert.Equal(t, 0.0, v)

	for _, c := range grid.Columns() {
		assert.NotContains(t, c, ScoreKey)
	}
	assert.Equal(t, []string{"run0"}, grid.Rows())
}

func TestAggregateConfusionColumnsSumToFoldSize(t *testing.T) {
	est, X, y := sixRows()
	s := newTestScorer(t)
	dict, _, err := s.Score(est, X, y)
	require.NoError(t, err)

	grid, err := Aggregate([]RunResult{{Name: "forest", Splits: []SplitResult{{Train: dict, Test: dict}}}})
	require.NoError(t, err)

	sum := 0.0
	for _, prefix := range []string{"tn_", "fp_", "fn_", "tp_"} {
		v, ok := grid.Value(0, prefix+"confusion_matrix_un_test0")
		require.True(t, ok, prefix)
		sum += v
	}
	assert.Equal(t, 6.0, sum)

	// the labeled matrix only counts labeled rows
	sum = 0
	for _, prefix := range []string{"tn_", "fp_", "fn_", "tp_"} {
		v, _ := grid.Value(0, prefix+"confusion_matrix_lab_train0")
		sum += v
	}
	assert.Equal(t, 4.0, sum)

	_, ok := grid.Value(0, "confusion_matrix_un_test0")
	assert.False(t, ok)
}

func TestAggregateSkipsUndefinedCells(t *testing.T) {
	undefined := Dictionary{"acc": UndefinedValue(KindScalar)}
	grid, err := Aggregate([]RunResult{{
		Splits: []SplitResult{
			{Test: acc(0.8)},
			{Test: undefined},
			{Test: acc(1.0)},
		},
	}})
	require.NoError(t, err)

	v, _ := grid.Value(0, "acc_test1")
	assert.True(t, math.IsNaN(v))
	mean, _ := grid.Value(0, "mean_acc_test")
	assert.InDelta(t, 0.9, mean, 1e-12)

	single, err := Aggregate([]RunResult{{Splits: []SplitResult{{Test: acc(0.7)}}}})
	require.NoError(t, err)
	mean, _ = single.Value(0, "mean_acc_test")
	std, _ := single.Value(0, "std_acc_test")
	assert.Equal(t, 0.7, mean)
	assert.True(t, math.IsNaN(std))
}

func TestAggregateGroupsManySplits(t *testing.T) {
	splits := make([]SplitResult, 12)
	for i := range splits {
		splits[i] = SplitResult{Test: acc(float64(i))}
	}
	grid, err := Aggregate([]RunResult{{Splits: splits}})
	require.NoError(t, err)

	mean, ok := grid.Value(0, "mean_acc_test")
	require.True(t, ok)
	assert.InDelta(t, 5.5, mean, 1e-12)

	means := 0
	for _, k := range grid.Keys() {
		if k.Stat == StatMean {
			means++
		}
	}
	assert.Equal(t, 1, means)
}

func TestAggregateMultipleRuns(t *testing.T) {
	grid, err := Aggregate([]RunResult{
		{Name: "a", Splits: []SplitResult{{Test: acc(0.6)}, {Test: acc(0.8)}}},
		{Name: "b", Splits: []SplitResult{{Test: Dictionary{"acc": ScalarValue(0.9), "f1": ScalarValue(0.5)}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, grid.NumRows())

	col, ok := grid.Column("mean_acc_test")
	require.True(t, ok)
	assert.InDelta(t, 0.7, col[0], 1e-12)
	assert.InDelta(t, 0.9, col[1], 1e-12)

	f1, ok := grid.Column("f1_test0")
	require.True(t, ok)
	assert.True(t, math.IsNaN(f1[0]))
	assert.Equal(t, 0.5, f1[1])

	acc1, _ := grid.Column("acc_test1")
	assert.True(t, math.IsNaN(acc1[1]))

	view := grid.MeanTestScores()
	assert.Equal(t, []string{"mean_acc_test", "mean_f1_test"}, view.Columns())
	assert.Equal(t, []string{"a", "b"}, view.Rows())
}

func TestAggregateRejectsEmptyInput(t *testing.T) {
	_, err := Aggregate(nil)
	assert.Error(t, err)
	_, err = Aggregate([]RunResult{{Name: "empty"}})
	assert.Error(t, err)
}

func TestBestRow(t *testing.T) {
	grid, err := Aggregate([]RunResult{
		{Splits: []SplitResult{{Test: Dictionary{"labeled_f1": ScalarValue(0.4), "labeled_brier": ScalarValue(0.1)}}}},
		{Splits: []SplitResult{{Test: Dictionary{"labeled_f1": ScalarValue(0.7), "labeled_brier": ScalarValue(0.3)}}}},
		{Splits: []SplitResult{{Test: Dictionary{"labeled_f1": UndefinedValue(KindScalar), "labeled_brier": ScalarValue(0.2)}}}},
	})
	require.NoError(t, err)

	row, v, err := grid.BestRow(LabeledF1)
	require.NoError(t, err)
	assert.Equal(t, 1, row)
	assert.Equal(t, 0.7, v)

	row, v, err = grid.BestRow(LabeledBrier)
	require.NoError(t, err)
	assert.Equal(t, 0, row)
	assert.Equal(t, 0.1, v)

	_, _, err = grid.BestRow(PUScore)
	assert.Error(t, err)
}

func TestExtractNested(t *testing.T) {
	cm := ConfusionValue(mat.NewDense(2, 2, []float64{3, 1, 0, 2}))
	grid := ExtractNested([]Dictionary{
		{"acc": ScalarValue(0.5), "cm": cm, ScoreKey: ScalarValue(0.5)},
		{"acc": ScalarValue(0.75), "cm": cm, ScoreKey: ScalarValue(0.75)},
	})

	assert.Equal(t, []string{"split0", "split1"}, grid.Rows())
	assert.Equal(t, []string{"acc", "fn_cm", "fp_cm", "tn_cm", "tp_cm"}, grid.Columns())
	v, _ := grid.Value(1, "acc")
	assert.Equal(t, 0.75, v)
	v, _ = grid.Value(0, "tn_cm")
	assert.Equal(t, 3.0, v)
}

func TestRenderAndPlot(t *testing.T) {
	grid, err := Aggregate([]RunResult{
		{Name: "small", Splits: []SplitResult{{Test: acc(0.6)}, {Test: acc(0.8)}}},
		{Name: "large", Splits: []SplitResult{{Test: acc(0.7)}, {Test: Dictionary{"acc": UndefinedValue(KindScalar)}}}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, grid.MeanTestScores().Render(&buf))
	out := buf.String()
	assert.Contains(t, out, "MEAN_ACC_TEST")
	assert.Contains(t, out, "small")
	assert.Contains(t, out, "0.7000")

	buf.Reset()
	require.NoError(t, grid.Render(&buf))
	assert.True(t, strings.Contains(buf.String(), "NaN"))

	path := filepath.Join(t.TempDir(), "scores.png")
	require.NoError(t, grid.PlotMeanTest(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	assert.Error(t, grid.PlotMeanTest(path, "missing"))
}
