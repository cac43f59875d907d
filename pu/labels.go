// Package pu defines the three-valued label encoding used for
// positive-unlabeled learning.
package pu

import (
	"fmt"

	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Label is a training label: a known positive, a known negative, or an
// unlabeled row that may belong to either class.
type Label int8

const (
	Unlabeled Label = -1
	Negative  Label = 0
	Positive  Label = 1
)

// GroupOrder is the fixed order in which label groups are visited when a
// tie between group sizes has to be broken.
var GroupOrder = [...]Label{Positive, Negative, Unlabeled}

// Valid reports whether l is one of the three recognised values.
func (l Label) Valid() bool {
	return l == Positive || l == Negative || l == Unlabeled
}

func (l Label) String() string {
	switch l {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	case Unlabeled:
		return "unlabeled"
	default:
		return fmt.Sprintf("Label(%d)", int8(l))
	}
}

// Labels is a label vector, one entry per row of a feature matrix.
type Labels []Label

// FromFloats converts a float encoding (1, 0, -1) into Labels. Any other
// value is rejected.
func FromFloats(values []float64) (Labels, error) {
	if len(values) == 0 {
		return nil, errors.NewValueError("pu.FromFloats", "empty label vector")
	}
	labels := make(Labels, len(values))
	for i, v := range values {
		l := Label(int8(v))
		if float64(l) != v || !l.Valid() {
			return nil, errors.NewValidationError(
				fmt.Sprintf("y[%d]", i), "label must be 1 (positive), 0 (negative) or -1 (unlabeled)", v)
		}
		labels[i] = l
	}
	return labels, nil
}

// FromMatrix reads labels from the first column of y (an n×1 matrix or a
// *mat.VecDense).
func FromMatrix(y mat.Matrix) (Labels, error) {
	if y == nil {
		return nil, errors.NewValueError("pu.FromMatrix", "nil label matrix")
	}
	rows, cols := y.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.NewValueError("pu.FromMatrix", "empty label matrix")
	}
	values := make([]float64, rows)
	for i := range values {
		values[i] = y.At(i, 0)
	}
	return FromFloats(values)
}

// MustFromInts is a test and example helper that panics on invalid input.
func MustFromInts(values ...int) Labels {
	f := make([]float64, len(values))
	for i, v := range values {
		f[i] = float64(v)
	}
	labels, err := FromFloats(f)
	if err != nil {
		panic(err)
	}
	return labels
}

// Floats returns the labels as float64 values.
func (ls Labels) Floats() []float64 {
	out := make([]float64, len(ls))
	for i, l := range ls {
		out[i] = float64(l)
	}
	return out
}

// Vec returns the labels as a column vector.
func (ls Labels) Vec() *mat.VecDense {
	return mat.NewVecDense(len(ls), ls.Floats())
}

// BinaryTarget maps Positive to 1 and both Negative and Unlabeled to 0.
func (ls Labels) BinaryTarget() *mat.VecDense {
	out := mat.NewVecDense(len(ls), nil)
	for i, l := range ls {
		if l == Positive {
			out.SetVec(i, 1)
		}
	}
	return out
}

// AssumeNegative returns a copy in which every Unlabeled entry is Negative.
func (ls Labels) AssumeNegative() Labels {
	out := make(Labels, len(ls))
	for i, l := range ls {
		if l == Unlabeled {
			l = Negative
		}
		out[i] = l
	}
	return out
}

// LabeledIndices returns the row indices whose label is not Unlabeled.
func (ls Labels) LabeledIndices() []int {
	idx := make([]int, 0, len(ls))
	for i, l := range ls {
		if l != Unlabeled {
			idx = append(idx, i)
		}
	}
	return idx
}

// Groups partitions row indices by label. Only labels that occur get an
// entry.
func (ls Labels) Groups() map[Label][]int {
	groups := make(map[Label][]int, len(GroupOrder))
	for i, l := range ls {
		groups[l] = append(groups[l], i)
	}
	return groups
}

// Counts holds the number of rows per label.
type Counts struct {
	Positive  int
	Negative  int
	Unlabeled int
}

// Count tallies the labels.
func (ls Labels) Count() Counts {
	var c Counts
	for _, l := range ls {
		switch l {
		case Positive:
			c.Positive++
		case Negative:
			c.Negative++
		case Unlabeled:
			c.Unlabeled++
		}
	}
	return c
}

// Of returns the count for a single label.
func (c Counts) Of(l Label) int {
	switch l {
	case Positive:
		return c.Positive
	case Negative:
		return c.Negative
	case Unlabeled:
		return c.Unlabeled
	}
	return 0
}

// Labeled is the number of rows with a known label.
func (c Counts) Labeled() int {
	return c.Positive + c.Negative
}
