package scoring

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ScoreKey is the dictionary key holding the decision scalar.
const ScoreKey = "SCORE"

// Value is one metric result. Confusion is set only for
// KindConfusionMatrix; Defined is false when the metric had no rows to
// work with, in which case Scalar is NaN.
type Value struct {
	Kind      Kind
	Scalar    float64
	Confusion *mat.Dense
	Defined   bool
}

// ScalarValue wraps a defined scalar.
func ScalarValue(v float64) Value {
	return Value{Kind: KindScalar, Scalar: v, Defined: true}
}

// ConfusionValue wraps a copy of a 2×2 confusion matrix.
func ConfusionValue(cm *mat.Dense) Value {
	return Value{Kind: KindConfusionMatrix, Scalar: math.NaN(), Confusion: mat.DenseCopyOf(cm), Defined: true}
}

// UndefinedValue is the absent result of a metric of the given kind.
func UndefinedValue(kind Kind) Value {
	return Value{Kind: kind, Scalar: math.NaN()}
}

// Cells returns tn, fp, fn and tp. They are NaN when the value is undefined
// or not a confusion matrix.
func (v Value) Cells() (tn, fp, fn, tp float64) {
	if v.Kind != KindConfusionMatrix || !v.Defined || v.Confusion == nil {
		nan := math.NaN()
		return nan, nan, nan, nan
	}
	return v.Confusion.At(0, 0), v.Confusion.At(0, 1), v.Confusion.At(1, 0), v.Confusion.At(1, 1)
}

func (v Value) equal(o Value) bool {
	if v.Kind != o.Kind || v.Defined != o.Defined {
		return false
	}
	if !v.Defined {
		return true
	}
	if v.Kind == KindConfusionMatrix {
		return mat.Equal(v.Confusion, o.Confusion)
	}
	return v.Scalar == o.Scalar
}

// Dictionary maps metric names to values. A Scorer returns a fresh
// dictionary on every call.
type Dictionary map[string]Value

// Score returns the decision scalar stored under ScoreKey.
func (d Dictionary) Score() (float64, bool) {
	v, ok := d[ScoreKey]
	if !ok || !v.Defined {
		return math.NaN(), false
	}
	return v.Scalar, true
}

// Get returns the value of a metric.
func (d Dictionary) Get(m Metric) (Value, bool) {
	v, ok := d[m.String()]
	return v, ok
}

// Scalar returns a defined scalar metric.
func (d Dictionary) Scalar(name string) (float64, bool) {
	v, ok := d[name]
	if !ok || !v.Defined || v.Kind != KindScalar {
		return math.NaN(), false
	}
	return v.Scalar, true
}

// Names returns the metric names in sorted order, without ScoreKey.
func (d Dictionary) Names() []string {
	names := make([]string, 0, len(d))
	for k := range d {
		if k != ScoreKey {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Equal compares two dictionaries. Undefined values compare equal to each
// other.
func (d Dictionary) Equal(o Dictionary) bool {
	if len(d) != len(o) {
		return false
	}
	for k, v := range d {
		ov, ok := o[k]
		if !ok || !v.equal(ov) {
			return false
		}
	}
	return true
}
