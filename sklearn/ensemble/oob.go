package ensemble

import (
	"math"

	"github.com/YuminosukeSato/pulearn/core/model"
	"github.com/YuminosukeSato/pulearn/core/parallel"
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// oobMask marks the rows a bootstrap never drew.
func oobMask(counts []int) []bool {
	mask := make([]bool, len(counts))
	for i, c := range counts {
		mask[i] = c == 0
	}
	return mask
}

// oobDecision averages, per row, the [negative, positive] probabilities of
// the trees whose mask marks the row out of bag. Rows that are in every
// bootstrap get NaN in both columns; missing counts them.
func oobDecision(probas []*mat.Dense, masks [][]bool, n int) (decision *mat.Dense, missing int) {
	decision = mat.NewDense(n, 2, nil)
	votes := make([]int, n)
	for t, proba := range probas {
		for i, out := range masks[t] {
			if !out {
				continue
			}
			votes[i]++
			decision.Set(i, 0, decision.At(i, 0)+proba.At(i, 0))
			decision.Set(i, 1, decision.At(i, 1)+proba.At(i, 1))
		}
	}
	for i, v := range votes {
		if v == 0 {
			missing++
			decision.Set(i, 0, math.NaN())
			decision.Set(i, 1, math.NaN())
			continue
		}
		decision.Set(i, 0, decision.At(i, 0)/float64(v))
		decision.Set(i, 1, decision.At(i, 1)/float64(v))
	}
	return decision, missing
}

// oobAccuracy is the share of rows with an out-of-bag decision whose
// majority class matches target. Ties go to class 0, as in Predict. It is
// NaN when no row has a decision.
func oobAccuracy(decision *mat.Dense, target []int) float64 {
	correct, scored := 0, 0
	for i, c := range target {
		neg, pos := decision.At(i, 0), decision.At(i, 1)
		if math.IsNaN(neg) {
			continue
		}
		scored++
		pred := 0
		if pos > neg {
			pred = 1
		}
		if pred == c {
			correct++
		}
	}
	if scored == 0 {
		return math.NaN()
	}
	return float64(correct) / float64(scored)
}

// outOfBag predicts the training rows with every tree and folds the
// predictions through the masks.
func outOfBag(trees []model.WeightedClassifier, masks [][]bool, X mat.Matrix) (*mat.Dense, int, error) {
	rows, _ := X.Dims()
	probas := make([]*mat.Dense, len(trees))
	errs := make([]error, len(trees))
	parallel.ParallelizeWithThreshold(len(trees), predictParallelThreshold, func(start, end int) {
		for t := start; t < end; t++ {
			probas[t], errs[t] = treeProba(trees[t], X, rows)
		}
	})
	for t, err := range errs {
		if err != nil {
			return nil, 0, errors.Wrapf(err, "oob tree %d", t)
		}
	}
	decision, missing := oobDecision(probas, masks, rows)
	return decision, missing, nil
}

// OOBDecisionFunction returns the out-of-bag probabilities of the training
// rows of the last fit as an n×2 matrix with columns [negative, positive].
// Rows that every tree drew hold NaN.
func (f *SubsampleForest) OOBDecisionFunction() (mat.Matrix, error) {
	if err := f.state.RequireFitted(modelName, "OOBDecisionFunction"); err != nil {
		return nil, err
	}
	if f.oobDecision == nil {
		return nil, errors.NewValueError("SubsampleForest.OOBDecisionFunction", "oob_score was not enabled for the last fit")
	}
	return mat.DenseCopyOf(f.oobDecision), nil
}

// OOBScore returns the out-of-bag accuracy on the binary target of the last
// fit, computed over the rows that have an out-of-bag decision.
func (f *SubsampleForest) OOBScore() (float64, error) {
	if err := f.state.RequireFitted(modelName, "OOBScore"); err != nil {
		return 0, err
	}
	if f.oobDecision == nil {
		return 0, errors.NewValueError("SubsampleForest.OOBScore", "oob_score was not enabled for the last fit")
	}
	return f.oobScore, nil
}
