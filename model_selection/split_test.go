package model_selection

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func checkPartition(t *testing.T, folds []Fold, n int) {
	t.Helper()
	var all []int
	for _, f := range folds {
		assert.Len(t, f.TrainIndices, n-len(f.TestIndices))
		test := map[int]bool{}
		for _, i := range f.TestIndices {
			test[i] = true
		}
		for _, i := range f.TrainIndices {
			assert.False(t, test[i], "row %d in both parts", i)
		}
		all = append(all, f.TestIndices...)
	}
	sort.Ints(all)
	require.Len(t, all, n)
	for i, v := range all {
		assert.Equal(t, i, v)
	}
}

func TestKFold(t *testing.T) {
	X := mat.NewDense(10, 1, nil)

	folds, err := NewKFold(3, false, 0).Split(X, nil)
	require.NoError(t, err)
	require.Len(t, folds, 3)
	assert.Equal(t, []int{0, 1, 2, 3}, folds[0].TestIndices)
	assert.Equal(t, []int{4, 5, 6}, folds[1].TestIndices)
	assert.Equal(t, []int{7, 8, 9}, folds[2].TestIndices)
	checkPartition(t, folds, 10)

	a, err := NewKFold(3, true, 42).Split(X, nil)
	require.NoError(t, err)
	b, err := NewKFold(3, true, 42).Split(X, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	checkPartition(t, a, 10)

	assert.Equal(t, 5, NewKFold(1, false, 0).GetNSplits())
	_, err = NewKFold(11, false, 0).Split(X, nil)
	assert.Error(t, err)
	_, err = (&KFold{NSplits: 1}).Split(X, nil)
	assert.Error(t, err)
}

func TestStratifiedKFold(t *testing.T) {
	n := 24
	X := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		switch {
		case i < 6:
			y.SetVec(i, 1)
		case i < 12:
			y.SetVec(i, 0)
		default:
			y.SetVec(i, -1)
		}
	}

	for _, shuffle := range []bool{false, true} {
		folds, err := NewStratifiedKFold(3, shuffle, 7).Split(X, y)
		require.NoError(t, err)
		require.Len(t, folds, 3)
		checkPartition(t, folds, n)
		for _, f := range folds {
			counts := map[float64]int{}
			for _, i := range f.TestIndices {
				counts[y.AtVec(i)]++
			}
			assert.Equal(t, map[float64]int{1: 2, 0: 2, -1: 4}, counts)
		}
	}

	_, err := NewStratifiedKFold(3, false, 0).Split(X, mat.NewVecDense(5, nil))
	assert.Error(t, err)
}

func TestStratifiedKFoldSpreadsRemainders(t *testing.T) {
	X := mat.NewDense(7, 1, nil)
	y := mat.NewVecDense(7, []float64{1, 1, 0, 0, -1, -1, -1})
	folds, err := NewStratifiedKFold(3, false, 0).Split(X, y)
	require.NoError(t, err)
	sizes := []int{len(folds[0].TestIndices), len(folds[1].TestIndices), len(folds[2].TestIndices)}
	assert.Equal(t, []int{3, 2, 2}, sizes)
}
