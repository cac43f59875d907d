// Standard attribute keys for pulearn log records.
//
// Keys follow a hierarchical naming convention ("model.name",
// "data.samples", "sampler.ratio") so that records from the sampler, the
// forest, the scorer and the aggregator can be filtered uniformly.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model, e.g. "SubsampleForest".
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "predict_proba", "score", "aggregate"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package performs the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the cross-validation phase: "train" or "test".
	PhaseKey = "ml.phase"
)

// Data Shape
const (
	// SamplesKey indicates the number of rows.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of feature columns.
	FeaturesKey = "data.features"

	// PositivesKey, NegativesKey and UnlabeledKey count the three label values.
	PositivesKey = "data.positives"
	NegativesKey = "data.negatives"
	UnlabeledKey = "data.unlabeled"
)

// Ensemble and Sampler
const (
	// TreesKey records how many trees an operation involves.
	TreesKey = "ensemble.trees"

	// TreeIndexKey identifies a single ensemble member.
	TreeIndexKey = "ensemble.tree_index"

	// NJobsKey records the fit parallelism.
	NJobsKey = "ensemble.n_jobs"

	// RatioKey records the requested minority/majority ratio.
	RatioKey = "sampler.ratio"

	// EffectiveRatioKey records the ratio actually achieved after capping.
	EffectiveRatioKey = "sampler.effective_ratio"

	// MinorityKey and MajorityKey record group sizes of a sample plan.
	MinorityKey = "sampler.minority"
	MajorityKey = "sampler.majority"

	// PoolSizeKey records the size of the reduced pool.
	PoolSizeKey = "sampler.pool_size"
)

// Scoring and Aggregation
const (
	// MetricKey names a metric.
	MetricKey = "metrics.name"

	// ScoreKey records the decision scalar returned by the scorer.
	ScoreKey = "metrics.score"

	// SplitKey identifies a cross-validation split.
	SplitKey = "cv.split"

	// RowsKey and ColumnsKey describe the shape of a score grid.
	RowsKey    = "grid.rows"
	ColumnsKey = "grid.columns"
)

// Performance
const (
	// DurationMsKey records the execution time in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Configuration
const (
	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationPredictProba = "predict_proba"
	OperationScore        = "score"
	OperationAggregate    = "aggregate"
	OperationSample       = "sample"

	PhaseTrain = "train"
	PhaseTest  = "test"
)
