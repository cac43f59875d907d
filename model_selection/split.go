// Package model_selection splits PU data into cross-validation folds and
// scores candidate estimators on every fold.
package model_selection

import (
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Splitter produces cross-validation folds.
type Splitter interface {
	Split(X, y mat.Matrix) ([]Fold, error)
	GetNSplits() int
}

// Fold holds the row indices of one split.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold splits rows into consecutive folds, optionally shuffled first.
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewKFold creates a k-fold splitter. nSplits below 2 falls back to 5.
func NewKFold(nSplits int, shuffle bool, randomSeed uint64) *KFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits.
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split returns NSplits folds. The first n % NSplits folds get one extra
// test row.
func (kf *KFold) Split(X, _ mat.Matrix) ([]Fold, error) {
	nSamples, err := checkSplits("KFold.Split", X, kf.NSplits)
	if err != nil {
		return nil, err
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(kf.RandomSeed, kf.RandomSeed))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	assign := make([]int, nSamples)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits
	current := 0
	for f := 0; f < kf.NSplits; f++ {
		testSize := foldSize
		if f < remainder {
			testSize++
		}
		for _, idx := range indices[current : current+testSize] {
			assign[idx] = f
		}
		current += testSize
	}
	return buildFolds(assign, kf.NSplits), nil
}

// StratifiedKFold keeps the label proportions of every fold close to
// those of the whole data set. Labels are the first column of y.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewStratifiedKFold creates a stratified splitter. nSplits below 2 falls
// back to 5.
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed uint64) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits.
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split deals the rows of each label round robin over the folds. Labels are
// visited in ascending order and the dealing continues where the previous
// label stopped, so remainders spread over all folds.
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]Fold, error) {
	nSamples, err := checkSplits("StratifiedKFold.Split", X, skf.NSplits)
	if err != nil {
		return nil, err
	}
	if y == nil {
		return nil, errors.NewValueError("StratifiedKFold.Split", "nil labels")
	}
	if rows, _ := y.Dims(); rows != nSamples {
		return nil, errors.NewDimensionError("StratifiedKFold.Split", nSamples, rows, 0)
	}

	byLabel := make(map[float64][]int)
	for i := 0; i < nSamples; i++ {
		l := y.At(i, 0)
		byLabel[l] = append(byLabel[l], i)
	}
	labels := make([]float64, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Float64s(labels)

	var r *rand.Rand
	if skf.Shuffle {
		r = rand.New(rand.NewPCG(skf.RandomSeed, skf.RandomSeed))
	}
	assign := make([]int, nSamples)
	next := 0
	for _, l := range labels {
		indices := byLabel[l]
		if r != nil {
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
		for _, idx := range indices {
			assign[idx] = next
			next = (next + 1) % skf.NSplits
		}
	}
	return buildFolds(assign, skf.NSplits), nil
}

func checkSplits(op string, X mat.Matrix, nSplits int) (int, error) {
	if X == nil {
		return 0, errors.NewValueError(op, "nil input")
	}
	nSamples, _ := X.Dims()
	if nSplits < 2 {
		return 0, errors.NewValidationError("n_splits", "must be at least 2", nSplits)
	}
	if nSplits > nSamples {
		return 0, errors.NewValidationError("n_splits", "cannot exceed the number of samples", nSplits)
	}
	return nSamples, nil
}

// buildFolds turns a row-to-fold assignment into folds with ascending
// indices.
func buildFolds(assign []int, nSplits int) []Fold {
	folds := make([]Fold, nSplits)
	for i, f := range assign {
		folds[f].TestIndices = append(folds[f].TestIndices, i)
		for g := range folds {
			if g != f {
				folds[g].TrainIndices = append(folds[g].TrainIndices, i)
			}
		}
	}
	return folds
}

// extractSubset copies the given rows of X and y.
func extractSubset(X, y mat.Matrix, indices []int) (*mat.Dense, *mat.Dense) {
	_, xCols := X.Dims()
	_, yCols := y.Dims()
	xSubset := mat.NewDense(len(indices), xCols, nil)
	ySubset := mat.NewDense(len(indices), yCols, nil)
	for i, idx := range indices {
		for j := 0; j < xCols; j++ {
			xSubset.Set(i, j, X.At(idx, j))
		}
		for j := 0; j < yCols; j++ {
			ySubset.Set(i, j, y.At(idx, j))
		}
	}
	return xSubset, ySubset
}
