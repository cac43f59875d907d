// Package ensemble implements a random forest whose trees are trained on
// class-rebalanced bootstraps, for positive-unlabeled data.
//
// Each tree's bootstrap is drawn from a reduced pool holding the whole
// minority label group and a without-replacement draw from the majority
// group sized by the target imbalance ratio. Trees are fitted on the binary
// target (positive vs everything else) with the bootstrap expressed as
// sample weights.
package ensemble

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/YuminosukeSato/pulearn/core/model"
	"github.com/YuminosukeSato/pulearn/core/parallel"
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/pkg/log"
	"github.com/YuminosukeSato/pulearn/pu"
	"github.com/YuminosukeSato/pulearn/sklearn/tree"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const modelName = "SubsampleForest"

// predictParallelThreshold is the tree count above which prediction fans
// out across goroutines.
const predictParallelThreshold = 4

// SubsampleForest is an ensemble of weighted classifiers, each fitted on a
// class-rebalanced bootstrap.
type SubsampleForest struct {
	state   *model.StateManager
	params  params
	factory model.WeightedClassifierFactory
	logger  log.Logger

	trees []model.WeightedClassifier
	seed  uint64

	// oobMasks[t][i] is true when tree t never drew row i. It is nil when
	// the masks no longer match the trees, e.g. after Load.
	oobMasks    [][]bool
	oobDecision *mat.Dense
	oobScore    float64
}

// FitReport describes what a fit call did.
type FitReport struct {
	// NoOp is set when warm start was on and no new trees were requested.
	NoOp bool
	// NewTrees is the number of trees fitted by this call.
	NewTrees int
	// TotalTrees is the ensemble size after the call.
	TotalTrees int
	// Seed is the ensemble seed the tree streams were derived from.
	Seed uint64
	// Plans has one entry per new tree, in tree index order.
	Plans []PlanSummary
	// OOBScore is the out-of-bag accuracy over all trees, NaN unless
	// oob_score is on.
	OOBScore float64
	// Warnings holds the warnings emitted during the call.
	Warnings []error
	// Duration is the wall time of the call.
	Duration time.Duration
}

// Capped reports whether any new tree had its majority draw capped.
func (r *FitReport) Capped() bool {
	for _, p := range r.Plans {
		if p.Capped {
			return true
		}
	}
	return false
}

// NewSubsampleForest creates an unfitted forest.
func NewSubsampleForest(opts ...Option) *SubsampleForest {
	f := &SubsampleForest{
		state:  model.NewStateManager(),
		params: defaultParams(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = log.GetLoggerWithName("ensemble")
	}
	f.logger = f.logger.With(log.ModelNameKey, modelName)
	return f
}

// defaultTree builds the default member with the forest's tree parameters.
func (f *SubsampleForest) defaultTree(p params) model.WeightedClassifierFactory {
	return func(seed uint64) model.WeightedClassifier {
		return tree.NewDecisionTreeClassifier(
			tree.WithCriterion(p.criterion),
			tree.WithMaxDepth(p.maxDepth),
			tree.WithMinSamplesSplit(p.minSamplesSplit),
			tree.WithMinSamplesLeaf(p.minSamplesLeaf),
			tree.WithMaxFeatures(p.maxFeatures),
			tree.WithRandomState(int64(seed&math.MaxInt64)),
		)
	}
}

// Fit fits the forest without external sample weights.
func (f *SubsampleForest) Fit(X, y mat.Matrix) error {
	_, err := f.FitContext(context.Background(), X, y, nil)
	return err
}

// FitWeighted fits the forest with external per-row sample weights.
func (f *SubsampleForest) FitWeighted(X, y mat.Matrix, sampleWeight []float64) error {
	_, err := f.FitContext(context.Background(), X, y, sampleWeight)
	return err
}

// FitContext fits the forest. y holds labels 1 (positive), 0 (negative) and
// -1 (unlabeled).
//
// Configuration and input errors are returned before any sampling, and the
// ensemble is left untouched. Trees are fitted concurrently, up to NJobs at
// a time; if any tree fails or ctx is cancelled, the call fails and no tree
// is appended. Under warm start a call that adds no trees is not an error:
// the report has NoOp set and a WarmStartWarning is emitted.
//
// With oob_score on, every training row is scored by the trees whose
// bootstrap never drew it; see OOBDecisionFunction and OOBScore.
func (f *SubsampleForest) FitContext(ctx context.Context, X, y mat.Matrix, sampleWeight []float64) (*FitReport, error) {
	start := time.Now()
	p := f.params
	if err := p.validate(); err != nil {
		return nil, err
	}

	labels, nFeatures, err := f.validateInput(X, y, sampleWeight)
	if err != nil {
		return nil, err
	}
	nSamples := len(labels)

	existing := 0
	if p.warmStart {
		existing = len(f.trees)
		if existing > 0 {
			if err := f.state.RequireFeatures("SubsampleForest.Fit", nFeatures); err != nil {
				return nil, err
			}
		}
	}
	nMore := p.nEstimators - existing
	if nMore < 0 {
		return nil, errors.NewValidationError("n_estimators",
			"must be larger or equal to the number of fitted trees when warm_start is true", p.nEstimators)
	}

	masksUsable := existing == 0 || (len(f.oobMasks) == existing && len(f.oobMasks[0]) == nSamples)
	if p.oobScore && !masksUsable {
		return nil, errors.NewValidationError("oob_score",
			"warm start needs the out-of-bag masks of every fitted tree on the same rows", p.oobScore)
	}

	logger := f.logger.With(log.OperationKey, log.OperationFit)
	report := &FitReport{TotalTrees: existing, OOBScore: math.NaN()}
	if nMore == 0 {
		w := errors.NewWarmStartWarning(modelName, p.nEstimators, existing)
		errors.Warn(w)
		logger.Warn("warm start added no trees", log.TreesKey, existing, "warning", w)
		report.NoOp = true
		report.Seed = f.seed
		if p.oobScore && f.oobDecision != nil {
			report.OOBScore = f.oobScore
		}
		report.Warnings = append(report.Warnings, w)
		report.Duration = time.Since(start)
		return report, nil
	}

	seed := f.seed
	if existing == 0 {
		seed = resolveSeed(p.randomState)
	}
	report.Seed = seed

	target := binaryTarget(labels)
	targetVec := mat.NewVecDense(nSamples, nil)
	for i, c := range target {
		targetVec.SetVec(i, float64(c))
	}
	base := baseWeights(p.classWeight, target, sampleWeight)

	counts := labels.Count()
	logger.Info("fitting trees",
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.PositivesKey, counts.Positive,
		log.NegativesKey, counts.Negative,
		log.UnlabeledKey, counts.Unlabeled,
		log.TreesKey, nMore,
		log.RatioKey, p.targetImbalanceRatio,
		log.NJobsKey, p.nJobs,
		log.RandomSeedKey, seed,
	)

	factory := f.factory
	if factory == nil {
		factory = f.defaultTree(p)
	}

	newTrees := make([]model.WeightedClassifier, nMore)
	plans := make([]PlanSummary, nMore)
	masks := make([][]bool, nMore)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveJobs(p.nJobs))
	for i := 0; i < nMore; i++ {
		treeIndex := existing + i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return errors.SafeExecute("SubsampleForest.fitTree", func() error {
				src := TreeSource(seed, treeIndex)
				plan, err := Plan(labels, p.targetImbalanceRatio, src)
				if err != nil {
					return err
				}
				w := plan.Weights(nSamples)
				if p.classWeight.perTree() {
					cw := sampleClassWeights(p.classWeight, target, 2, plan.Indices())
					for r := range w {
						w[r] *= cw[r]
					}
				}
				if base != nil {
					for r := range w {
						w[r] *= base[r]
					}
				}

				member := factory(src.Uint64())
				if member == nil {
					return errors.NewModelError("SubsampleForest.fitTree", "estimator factory returned nil", nil)
				}
				if err := member.FitWeighted(X, targetVec, w); err != nil {
					return errors.NewModelError("SubsampleForest.fitTree", "tree fit failed", errors.Wrapf(err, "tree %d", treeIndex))
				}
				newTrees[i] = member
				plans[i] = plan.Summary(treeIndex)
				masks[i] = oobMask(plan.Counts(nSamples))
				logger.Debug("tree fitted",
					log.TreeIndexKey, treeIndex,
					log.MinorityKey, plan.MinorityCount,
					log.MajorityKey, plan.MajorityDrawn,
					log.PoolSizeKey, plan.PoolSize(),
					log.EffectiveRatioKey, plan.EffectiveRatio(),
				)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("fit aborted", err, log.TreesKey, nMore)
		return nil, err
	}

	// Every plan of one fit sees the same label counts, so capping is the
	// same for all of them.
	if plans[0].Capped {
		w := errors.NewInfeasibleRatioWarning(p.targetImbalanceRatio, plans[0].EffectiveRatio,
			plans[0].MajorityRequested, plans[0].MajorityDrawn)
		errors.Warn(w)
		report.Warnings = append(report.Warnings, w)
	}

	trees := append(append([]model.WeightedClassifier(nil), f.trees[:existing]...), newTrees...)
	var allMasks [][]bool
	if masksUsable {
		allMasks = append(append([][]bool(nil), f.oobMasks[:existing]...), masks...)
	}

	var decision *mat.Dense
	if p.oobScore {
		var missing int
		decision, missing, err = outOfBag(trees, allMasks, X)
		if err != nil {
			logger.Error("out-of-bag estimation failed", err)
			return nil, err
		}
		if missing > 0 {
			w := errors.NewMissingOOBWarning(modelName, missing, nSamples)
			errors.Warn(w)
			logger.Warn("rows without out-of-bag estimate", "missing", missing, "warning", w)
			report.Warnings = append(report.Warnings, w)
		}
		report.OOBScore = oobAccuracy(decision, target)
	}

	f.trees = trees
	f.oobMasks = allMasks
	f.oobDecision = decision
	f.oobScore = report.OOBScore
	f.seed = seed
	f.state.SetDimensions(nFeatures, nSamples)
	f.state.SetFitted()

	report.NewTrees = nMore
	report.TotalTrees = len(f.trees)
	report.Plans = plans
	report.Duration = time.Since(start)
	logger.Info("fit complete",
		log.TreesKey, report.TotalTrees,
		log.DurationMsKey, report.Duration.Milliseconds(),
	)
	return report, nil
}

func (f *SubsampleForest) validateInput(X, y mat.Matrix, sampleWeight []float64) (pu.Labels, int, error) {
	if X == nil || y == nil {
		return nil, 0, errors.NewValueError("SubsampleForest.Fit", "nil input")
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return nil, 0, errors.WithStack(errors.ErrEmptyData)
	}
	if err := errors.CheckMatrix("SubsampleForest.Fit", X, nSamples, nFeatures); err != nil {
		return nil, 0, err
	}
	labels, err := pu.FromMatrix(y)
	if err != nil {
		return nil, 0, err
	}
	if len(labels) != nSamples {
		return nil, 0, errors.NewDimensionError("SubsampleForest.Fit", nSamples, len(labels), 0)
	}
	if sampleWeight != nil {
		if len(sampleWeight) != nSamples {
			return nil, 0, errors.NewDimensionError("SubsampleForest.Fit", nSamples, len(sampleWeight), 0)
		}
		for _, w := range sampleWeight {
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, 0, errors.NewValidationError("sample_weight", "must be finite and non-negative", w)
			}
		}
	}
	return labels, nFeatures, nil
}

func resolveSeed(randomState int64) uint64 {
	if randomState >= 0 {
		return uint64(randomState)
	}
	return rand.Uint64()
}

func resolveJobs(nJobs int) int {
	if nJobs <= 0 {
		return runtime.NumCPU()
	}
	return nJobs
}

// binaryTarget encodes Positive as 1 and everything else as 0.
func binaryTarget(labels pu.Labels) []int {
	out := make([]int, len(labels))
	for i, l := range labels {
		if l == pu.Positive {
			out[i] = 1
		}
	}
	return out
}

// baseWeights combines the external sample weights with the full-data
// balanced class weights. It returns nil when neither applies.
func baseWeights(mode ClassWeight, target []int, sampleWeight []float64) []float64 {
	var base []float64
	if sampleWeight != nil {
		base = append([]float64(nil), sampleWeight...)
	}
	if mode == ClassWeightBalanced {
		cw := sampleClassWeights(mode, target, 2, nil)
		if base == nil {
			return cw
		}
		for i := range base {
			base[i] *= cw[i]
		}
	}
	return base
}

// PredictProba returns the mean class probabilities of the trees as an n×2
// matrix with columns [negative, positive].
func (f *SubsampleForest) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := f.state.RequireFitted(modelName, "PredictProba"); err != nil {
		return nil, err
	}
	if X == nil {
		return nil, errors.NewValueError("SubsampleForest.PredictProba", "nil input")
	}
	rows, cols := X.Dims()
	if err := f.state.RequireFeatures("SubsampleForest.PredictProba", cols); err != nil {
		return nil, err
	}
	if err := errors.CheckMatrix("SubsampleForest.PredictProba", X, rows, cols); err != nil {
		return nil, err
	}

	trees := f.trees
	perTree := make([]*mat.Dense, len(trees))
	errs := make([]error, len(trees))
	parallel.ParallelizeWithThreshold(len(trees), predictParallelThreshold, func(start, end int) {
		for t := start; t < end; t++ {
			perTree[t], errs[t] = treeProba(trees[t], X, rows)
		}
	})

	out := mat.NewDense(rows, 2, nil)
	for t := range trees {
		if errs[t] != nil {
			return nil, errors.Wrapf(errs[t], "tree %d", t)
		}
		out.Add(out, perTree[t])
	}
	out.Scale(1/float64(len(trees)), out)
	return out, nil
}

// treeProba maps a member's probability columns onto [negative, positive].
// A member that only saw one class puts all mass on that class.
func treeProba(member model.WeightedClassifier, X mat.Matrix, rows int) (*mat.Dense, error) {
	proba, err := member.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(rows, 2, nil)
	for k, c := range member.Classes() {
		col := 0
		if c == 1 {
			col = 1
		}
		for i := 0; i < rows; i++ {
			out.Set(i, col, out.At(i, col)+proba.At(i, k))
		}
	}
	return out, nil
}

// Predict returns 1 where the mean positive probability exceeds the
// negative one and 0 otherwise, as an n×1 matrix.
func (f *SubsampleForest) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		if proba.At(i, 1) > proba.At(i, 0) {
			out.Set(i, 0, 1)
		}
	}
	return out, nil
}

// Classes returns the output classes, always [0, 1].
func (f *SubsampleForest) Classes() []float64 {
	return []float64{0, 1}
}

// NEstimators returns the number of fitted trees.
func (f *SubsampleForest) NEstimators() int {
	return len(f.trees)
}

// Trees returns the fitted members in index order.
func (f *SubsampleForest) Trees() []model.WeightedClassifier {
	return append([]model.WeightedClassifier(nil), f.trees...)
}

// Seed returns the ensemble seed of the last fit.
func (f *SubsampleForest) Seed() uint64 {
	return f.seed
}

// IsFitted reports whether Fit has completed at least once.
func (f *SubsampleForest) IsFitted() bool {
	return f.state.IsFitted()
}

// FeatureImportances averages the members' importances and renormalises
// them to sum to 1. Members without importances are skipped.
func (f *SubsampleForest) FeatureImportances() ([]float64, error) {
	if err := f.state.RequireFitted(modelName, "FeatureImportances"); err != nil {
		return nil, err
	}
	nFeatures, _ := f.state.GetDimensions()
	out := make([]float64, nFeatures)
	for _, t := range f.trees {
		fi, ok := t.(model.FeatureImportancer)
		if !ok {
			continue
		}
		imp, err := fi.FeatureImportances()
		if err != nil {
			return nil, err
		}
		if len(imp) != nFeatures {
			return nil, errors.NewDimensionError("SubsampleForest.FeatureImportances", nFeatures, len(imp), 1)
		}
		floats.Add(out, imp)
	}
	if total := floats.Sum(out); total > 0 {
		floats.Scale(1/total, out)
	}
	return out, nil
}

// SetNEstimators changes the total tree count used by the next fit.
func (f *SubsampleForest) SetNEstimators(n int) {
	f.params.nEstimators = n
}

// SetWarmStart toggles warm start for the next fit.
func (f *SubsampleForest) SetWarmStart(warmStart bool) {
	f.params.warmStart = warmStart
}

// GetParams returns the hyperparameters.
func (f *SubsampleForest) GetParams() map[string]interface{} {
	p := f.params
	return map[string]interface{}{
		"n_estimators":           p.nEstimators,
		"target_imbalance_ratio": p.targetImbalanceRatio,
		"bootstrap":              p.bootstrap,
		"oob_score":              p.oobScore,
		"class_weight":           string(p.classWeight),
		"warm_start":             p.warmStart,
		"n_jobs":                 p.nJobs,
		"random_state":           p.randomState,
		"criterion":              p.criterion,
		"max_depth":              p.maxDepth,
		"min_samples_split":      p.minSamplesSplit,
		"min_samples_leaf":       p.minSamplesLeaf,
		"max_features":           p.maxFeatures,
	}
}

// SetParams updates hyperparameters by name. Nothing changes unless every
// entry is known, well typed and the result validates.
func (f *SubsampleForest) SetParams(values map[string]interface{}) error {
	p := f.params
	for key, value := range values {
		var ok bool
		switch key {
		case "n_estimators":
			p.nEstimators, ok = value.(int)
		case "target_imbalance_ratio":
			p.targetImbalanceRatio, ok = value.(float64)
		case "bootstrap":
			p.bootstrap, ok = value.(bool)
		case "oob_score":
			p.oobScore, ok = value.(bool)
		case "class_weight":
			var s string
			if s, ok = value.(string); ok {
				cw, err := ParseClassWeight(s)
				if err != nil {
					return err
				}
				p.classWeight = cw
			}
		case "warm_start":
			p.warmStart, ok = value.(bool)
		case "n_jobs":
			p.nJobs, ok = value.(int)
		case "random_state":
			switch v := value.(type) {
			case int64:
				p.randomState, ok = v, true
			case int:
				p.randomState, ok = int64(v), true
			}
		case "criterion":
			p.criterion, ok = value.(string)
		case "max_depth":
			p.maxDepth, ok = value.(int)
		case "min_samples_split":
			p.minSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			p.minSamplesLeaf, ok = value.(int)
		case "max_features":
			p.maxFeatures, ok = value.(string)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "unexpected type", value)
		}
	}
	if err := p.validate(); err != nil {
		return err
	}
	f.params = p
	return nil
}
