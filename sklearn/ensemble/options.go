package ensemble

import (
	"github.com/YuminosukeSato/pulearn/core/model"
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/pkg/log"
	"github.com/YuminosukeSato/pulearn/sklearn/tree"
)

// params holds the forest hyperparameters. SetParams edits a copy and only
// swaps it in after validation.
type params struct {
	nEstimators          int
	targetImbalanceRatio float64
	bootstrap            bool
	oobScore             bool
	classWeight          ClassWeight
	warmStart            bool
	nJobs                int   // <= 0 means one job per CPU
	randomState          int64 // -1 draws a fresh seed

	// default member hyperparameters
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string
}

func defaultParams() params {
	return params{
		nEstimators:          10,
		targetImbalanceRatio: 1.0,
		bootstrap:            true,
		classWeight:          ClassWeightNone,
		nJobs:                1,
		randomState:          -1,
		criterion:            tree.CriterionGini,
		maxDepth:             -1,
		minSamplesSplit:      2,
		minSamplesLeaf:       1,
		maxFeatures:          tree.MaxFeaturesSqrt,
	}
}

// validate checks the configuration errors that must be rejected before any
// sampling.
func (p params) validate() error {
	if p.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", p.nEstimators)
	}
	if err := ValidateRatio(p.targetImbalanceRatio); err != nil {
		return err
	}
	if p.oobScore && !p.bootstrap {
		return errors.NewValidationError("oob_score", "out of bag estimation only available if bootstrap is true", p.oobScore)
	}
	if !p.bootstrap {
		return errors.NewValidationError("bootstrap", "false is invalid for a subsample forest", p.bootstrap)
	}
	if _, err := ParseClassWeight(string(p.classWeight)); err != nil {
		return err
	}
	return nil
}

// Option configures a SubsampleForest.
type Option func(*SubsampleForest)

// ValidateOptions applies opts to the default configuration and returns the
// configuration error Fit would reject it with, if any.
func ValidateOptions(opts ...Option) error {
	f := &SubsampleForest{params: defaultParams()}
	for _, opt := range opts {
		opt(f)
	}
	return f.params.validate()
}

// WithNEstimators sets the total number of trees.
func WithNEstimators(n int) Option {
	return func(f *SubsampleForest) {
		f.params.nEstimators = n
	}
}

// WithTargetImbalanceRatio sets the minority/majority ratio of each tree's
// pool. Valid values are in (0.1, 1.0].
func WithTargetImbalanceRatio(ratio float64) Option {
	return func(f *SubsampleForest) {
		f.params.targetImbalanceRatio = ratio
	}
}

// WithBootstrap exists for parity with other forests; false is rejected by Fit.
func WithBootstrap(bootstrap bool) Option {
	return func(f *SubsampleForest) {
		f.params.bootstrap = bootstrap
	}
}

// WithOOBScore makes Fit estimate the out-of-bag decision function and
// accuracy. It requires bootstrap.
func WithOOBScore(oobScore bool) Option {
	return func(f *SubsampleForest) {
		f.params.oobScore = oobScore
	}
}

// WithClassWeight sets the class weighting mode.
func WithClassWeight(cw ClassWeight) Option {
	return func(f *SubsampleForest) {
		f.params.classWeight = cw
	}
}

// WithWarmStart makes Fit append trees to the existing ensemble.
func WithWarmStart(warmStart bool) Option {
	return func(f *SubsampleForest) {
		f.params.warmStart = warmStart
	}
}

// WithNJobs bounds the number of trees fitted concurrently.
func WithNJobs(n int) Option {
	return func(f *SubsampleForest) {
		f.params.nJobs = n
	}
}

// WithRandomState fixes the ensemble seed. A negative value draws a fresh
// seed on each non-warm-start fit.
func WithRandomState(seed int64) Option {
	return func(f *SubsampleForest) {
		f.params.randomState = seed
	}
}

// WithCriterion sets the impurity criterion of the default trees.
func WithCriterion(criterion string) Option {
	return func(f *SubsampleForest) {
		f.params.criterion = criterion
	}
}

// WithMaxDepth sets the depth limit of the default trees.
func WithMaxDepth(depth int) Option {
	return func(f *SubsampleForest) {
		f.params.maxDepth = depth
	}
}

// WithMinSamplesSplit sets min_samples_split of the default trees.
func WithMinSamplesSplit(n int) Option {
	return func(f *SubsampleForest) {
		f.params.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets min_samples_leaf of the default trees.
func WithMinSamplesLeaf(n int) Option {
	return func(f *SubsampleForest) {
		f.params.minSamplesLeaf = n
	}
}

// WithMaxFeatures sets the per-split feature budget of the default trees.
func WithMaxFeatures(strategy string) Option {
	return func(f *SubsampleForest) {
		f.params.maxFeatures = strategy
	}
}

// WithEstimatorFactory replaces the weighted-fit strategy. The factory is
// called once per new tree with a seed derived from the tree's stream.
func WithEstimatorFactory(factory model.WeightedClassifierFactory) Option {
	return func(f *SubsampleForest) {
		f.factory = factory
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(f *SubsampleForest) {
		f.logger = logger
	}
}
