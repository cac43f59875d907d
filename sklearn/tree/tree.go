// Package tree implements a weighted CART decision tree classifier.
//
// The tree is the default member of the subsample forest in package
// ensemble. It accepts per-row sample weights, so a bootstrap plan expressed
// as integer multiplicities can be fitted without materialising the
// resampled rows.
package tree

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/pulearn/core/model"
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	// CriterionGini selects the Gini impurity.
	CriterionGini = "gini"
	// CriterionEntropy selects the Shannon entropy.
	CriterionEntropy = "entropy"

	// MaxFeaturesAll evaluates every feature at each split.
	MaxFeaturesAll = "all"
	// MaxFeaturesSqrt evaluates ceil(sqrt(n_features)) random features.
	MaxFeaturesSqrt = "sqrt"
	// MaxFeaturesLog2 evaluates ceil(log2(n_features)) random features.
	MaxFeaturesLog2 = "log2"

	impurityTolerance = 1e-12
)

// Node is one node of a fitted tree. Leaves have Left == Right == -1.
type Node struct {
	Feature          int
	Threshold        float64
	Left             int
	Right            int
	Value            []float64 // weighted class distribution, sums to 1
	Impurity         float64
	NSamples         int
	WeightedNSamples float64
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

// DecisionTreeClassifier is a CART classifier with sample weight support.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string
	maxDepth        int    // -1 means unlimited
	minSamplesSplit int    // minimum rows required to split a node
	minSamplesLeaf  int    // minimum rows in each child
	maxFeatures     string // "all", "sqrt", "log2"
	randomState     int64  // -1 draws a fresh seed per fit

	// Fitted
	nodes        []Node
	classes_     []float64
	nClasses_    int
	nFeatures_   int
	importances_ []float64
	depth_       int
	nLeaves_     int
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier creates an unfitted tree.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       CriterionGini,
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     MaxFeaturesAll,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithCriterion sets the impurity measure ("gini" or "entropy").
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.criterion = criterion
	}
}

// WithMaxDepth limits the depth of the tree. A negative value means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of rows needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of rows in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesLeaf = n
	}
}

// WithMaxFeatures sets how many features are considered at each split.
func WithMaxFeatures(strategy string) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxFeatures = strategy
	}
}

// WithRandomState fixes the seed used for feature subsampling.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.randomState = seed
	}
}

func (dt *DecisionTreeClassifier) validateParams() error {
	switch dt.criterion {
	case CriterionGini, CriterionEntropy:
	default:
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", dt.criterion)
	}
	switch dt.maxFeatures {
	case MaxFeaturesAll, MaxFeaturesSqrt, MaxFeaturesLog2:
	default:
		return errors.NewValidationError("max_features", "must be 'all', 'sqrt' or 'log2'", dt.maxFeatures)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.minSamplesLeaf)
	}
	return nil
}

// Fit fits the tree with unit weights.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	return dt.FitWeighted(X, y, nil)
}

// FitWeighted fits the tree. Rows with zero weight are ignored; a nil w
// gives every row weight 1. Classes are taken from all of y, including
// zero-weight rows, so trees fitted on different bootstraps of the same
// data share a class layout.
func (dt *DecisionTreeClassifier) FitWeighted(X, y mat.Matrix, w []float64) error {
	if err := dt.validateParams(); err != nil {
		return err
	}
	if X == nil || y == nil {
		return errors.NewValueError("DecisionTreeClassifier.Fit", "nil input")
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	yRows, yCols := y.Dims()
	if yRows != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", 1, yCols, 1)
	}
	if w != nil && len(w) != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, len(w), 0)
	}

	classes, yIdx := encodeClasses(y, nSamples)
	weights := make([]float64, nSamples)
	rows := make([]int, 0, nSamples)
	for i := range weights {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		if wi < 0 || math.IsNaN(wi) || math.IsInf(wi, 0) {
			return errors.NewValidationError("sample_weight", "must be finite and non-negative", wi)
		}
		weights[i] = wi
		if wi > 0 {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return errors.NewValueError("DecisionTreeClassifier.Fit", "all sample weights are zero")
	}

	columns := make([][]float64, nFeatures)
	for f := range columns {
		col := make([]float64, nSamples)
		for i := range col {
			col[i] = X.At(i, f)
		}
		columns[f] = col
	}

	b := &builder{
		dt:          dt,
		columns:     columns,
		y:           yIdx,
		w:           weights,
		nClasses:    len(classes),
		maxFeatures: resolveMaxFeatures(dt.maxFeatures, nFeatures),
		rng:         dt.newRand(),
		importances: make([]float64, nFeatures),
	}
	b.build(rows, 0)

	total := 0.0
	for _, v := range b.importances {
		total += v
	}
	if total > 0 {
		for f := range b.importances {
			b.importances[f] /= total
		}
	}

	dt.nodes = b.nodes
	dt.classes_ = classes
	dt.nClasses_ = len(classes)
	dt.nFeatures_ = nFeatures
	dt.importances_ = b.importances
	dt.depth_ = b.depth
	dt.nLeaves_ = b.leaves
	dt.state.SetDimensions(nFeatures, nSamples)
	dt.state.SetFitted()
	return nil
}

func (dt *DecisionTreeClassifier) newRand() *rand.Rand {
	if dt.randomState >= 0 {
		return rand.New(rand.NewPCG(uint64(dt.randomState), 0x5851f42d4c957f2d))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func encodeClasses(y mat.Matrix, n int) ([]float64, []int) {
	seen := make(map[float64]struct{})
	for i := 0; i < n; i++ {
		seen[y.At(i, 0)] = struct{}{}
	}
	classes := make([]float64, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Float64s(classes)
	index := make(map[float64]int, len(classes))
	for k, c := range classes {
		index[c] = k
	}
	yIdx := make([]int, n)
	for i := range yIdx {
		yIdx[i] = index[y.At(i, 0)]
	}
	return classes, yIdx
}

func resolveMaxFeatures(strategy string, nFeatures int) int {
	var k int
	switch strategy {
	case MaxFeaturesSqrt:
		k = int(math.Ceil(math.Sqrt(float64(nFeatures))))
	case MaxFeaturesLog2:
		k = int(math.Ceil(math.Log2(float64(nFeatures))))
	default:
		k = nFeatures
	}
	if k < 1 {
		k = 1
	}
	if k > nFeatures {
		k = nFeatures
	}
	return k
}

// Predict returns the most probable class of each row as an n×1 matrix.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, dt.classes_[argmax(mat.Row(nil, i, proba))])
	}
	return out, nil
}

// PredictProba returns the leaf class distribution of each row. Columns
// follow Classes().
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	if X == nil {
		return nil, errors.NewValueError("DecisionTreeClassifier.PredictProba", "nil input")
	}
	rows, cols := X.Dims()
	if err := dt.state.RequireFeatures("DecisionTreeClassifier.PredictProba", cols); err != nil {
		return nil, err
	}
	out := mat.NewDense(rows, dt.nClasses_, nil)
	for i := 0; i < rows; i++ {
		out.SetRow(i, dt.leafFor(X, i).Value)
	}
	return out, nil
}

func (dt *DecisionTreeClassifier) leafFor(X mat.Matrix, row int) *Node {
	node := &dt.nodes[0]
	for !node.IsLeaf() {
		if X.At(row, node.Feature) <= node.Threshold {
			node = &dt.nodes[node.Left]
		} else {
			node = &dt.nodes[node.Right]
		}
	}
	return node
}

// Score returns the accuracy on (X, y), or 0 if prediction fails.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	rows, _ := pred.Dims()
	if rows == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < rows; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(rows)
}

// Classes returns the sorted class values seen during Fit.
func (dt *DecisionTreeClassifier) Classes() []float64 {
	return append([]float64(nil), dt.classes_...)
}

// GetFeatureImportances returns the normalised weighted impurity decrease
// per feature, or nil before Fit.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	if dt.importances_ == nil {
		return nil
	}
	return append([]float64(nil), dt.importances_...)
}

// FeatureImportances is GetFeatureImportances with a not-fitted error.
func (dt *DecisionTreeClassifier) FeatureImportances() ([]float64, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return dt.GetFeatureImportances(), nil
}

// GetDepth returns the depth of the deepest leaf (the root has depth 0).
func (dt *DecisionTreeClassifier) GetDepth() int {
	return dt.depth_
}

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return dt.nLeaves_
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams updates hyperparameters by name. It takes effect on the next Fit.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "criterion":
			dt.criterion, ok = value.(string)
		case "max_depth":
			dt.maxDepth, ok = value.(int)
		case "min_samples_split":
			dt.minSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			dt.minSamplesLeaf, ok = value.(int)
		case "max_features":
			dt.maxFeatures, ok = value.(string)
		case "random_state":
			switch v := value.(type) {
			case int64:
				dt.randomState, ok = v, true
			case int:
				dt.randomState, ok = int64(v), true
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "unexpected type", value)
		}
	}
	return nil
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
