package ensemble

import (
	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/pulearn/pkg/errors"
)

// ClassWeight selects how per-class weights are folded into each tree's
// sample weights.
type ClassWeight string

const (
	// ClassWeightNone leaves the bootstrap counts unchanged.
	ClassWeightNone ClassWeight = "none"
	// ClassWeightBalanced weights each class by n/(k*count) over the full
	// training target, once per fit.
	ClassWeightBalanced ClassWeight = "balanced"
	// ClassWeightSubsample weights each class by its inverse frequency in the
	// tree's bootstrap, normalised so the class weights average to 1.
	ClassWeightSubsample ClassWeight = "subsample"
	// ClassWeightBalancedSubsample weights each class by n/(k*count) over the
	// tree's bootstrap.
	ClassWeightBalancedSubsample ClassWeight = "balanced_subsample"
)

// ParseClassWeight validates a class weight name. The empty string means none.
func ParseClassWeight(s string) (ClassWeight, error) {
	switch cw := ClassWeight(s); cw {
	case "":
		return ClassWeightNone, nil
	case ClassWeightNone, ClassWeightBalanced, ClassWeightSubsample, ClassWeightBalancedSubsample:
		return cw, nil
	}
	return "", errors.NewValidationError("class_weight", "must be none, balanced, subsample or balanced_subsample", s)
}

// perTree reports whether the weights depend on the bootstrap.
func (cw ClassWeight) perTree() bool {
	return cw == ClassWeightSubsample || cw == ClassWeightBalancedSubsample
}

// classCounts counts target classes (encoded 0..k-1) over the multiset of
// rows given by indices, or over every row when indices is nil.
func classCounts(target []int, k int, indices []int) []float64 {
	counts := make([]float64, k)
	if indices == nil {
		for _, c := range target {
			counts[c]++
		}
		return counts
	}
	for _, i := range indices {
		counts[target[i]]++
	}
	return counts
}

// balancedWeights returns n/(k*count) per class, with n the multiset size and
// k the number of classes. Classes that do not occur get weight 0.
func balancedWeights(counts []float64) []float64 {
	n := floats.Sum(counts)
	k := float64(len(counts))
	out := make([]float64, len(counts))
	for c, cnt := range counts {
		if cnt > 0 {
			out[c] = n / (k * cnt)
		}
	}
	return out
}

// inverseFrequencyWeights returns 1/count per class divided by the mean of
// those reciprocals over the classes that occur. Classes that do not occur
// get weight 0.
func inverseFrequencyWeights(counts []float64) []float64 {
	out := make([]float64, len(counts))
	sum, present := 0.0, 0
	for c, cnt := range counts {
		if cnt > 0 {
			out[c] = 1 / cnt
			sum += out[c]
			present++
		}
	}
	if present == 0 {
		return out
	}
	mean := sum / float64(present)
	for c := range out {
		out[c] /= mean
	}
	return out
}

// sampleClassWeights expands per-class weights computed for mode into one
// weight per row of target. indices is the tree's bootstrap for the
// per-tree modes and ignored otherwise.
func sampleClassWeights(mode ClassWeight, target []int, k int, indices []int) []float64 {
	var perClass []float64
	switch mode {
	case ClassWeightBalanced:
		perClass = balancedWeights(classCounts(target, k, nil))
	case ClassWeightSubsample:
		perClass = inverseFrequencyWeights(classCounts(target, k, indices))
	case ClassWeightBalancedSubsample:
		perClass = balancedWeights(classCounts(target, k, indices))
	default:
		return nil
	}
	out := make([]float64, len(target))
	for i, c := range target {
		out[i] = perClass[c]
	}
	return out
}
