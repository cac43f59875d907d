// Package config loads forest, scorer and cross-validation settings from a
// file and PULEARN_* environment variables.
package config

import (
	"strings"

	"github.com/YuminosukeSato/pulearn/metrics"
	"github.com/YuminosukeSato/pulearn/model_selection"
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/pkg/log"
	"github.com/YuminosukeSato/pulearn/scoring"
	"github.com/YuminosukeSato/pulearn/sklearn/ensemble"
	"github.com/YuminosukeSato/pulearn/sklearn/tree"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PULEARN_FOREST_N_ESTIMATORS.
const EnvPrefix = "PULEARN"

// Config is the full configuration.
type Config struct {
	Forest ForestConfig `mapstructure:"forest"`
	Tree   TreeConfig   `mapstructure:"tree"`
	Scorer ScorerConfig `mapstructure:"scorer"`
	CV     CVConfig     `mapstructure:"cv"`
	Log    LogConfig    `mapstructure:"log"`
}

// ForestConfig configures the SubsampleForest.
type ForestConfig struct {
	NEstimators          int     `mapstructure:"n_estimators"`
	TargetImbalanceRatio float64 `mapstructure:"target_imbalance_ratio"`
	ClassWeight          string  `mapstructure:"class_weight"`
	WarmStart            bool    `mapstructure:"warm_start"`
	NJobs                int     `mapstructure:"n_jobs"`
	RandomState          int64   `mapstructure:"random_state"`
	OOBScore             bool    `mapstructure:"oob_score"`
}

// TreeConfig configures the trees of the forest.
type TreeConfig struct {
	Criterion       string `mapstructure:"criterion"`
	MaxDepth        int    `mapstructure:"max_depth"`
	MinSamplesSplit int    `mapstructure:"min_samples_split"`
	MinSamplesLeaf  int    `mapstructure:"min_samples_leaf"`
	MaxFeatures     string `mapstructure:"max_features"`
}

// ScorerConfig configures the multi-metric scorer.
type ScorerConfig struct {
	DecisionMetric string  `mapstructure:"decision_metric"`
	Prior          float64 `mapstructure:"prior"`
}

// CVConfig configures cross-validation.
type CVConfig struct {
	NSplits    int    `mapstructure:"n_splits"`
	Stratified bool   `mapstructure:"stratified"`
	Shuffle    bool   `mapstructure:"shuffle"`
	RandomSeed uint64 `mapstructure:"random_seed"`
	NJobs      int    `mapstructure:"n_jobs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

var defaults = map[string]interface{}{
	"forest.n_estimators":           10,
	"forest.target_imbalance_ratio": 1.0,
	"forest.class_weight":           string(ensemble.ClassWeightNone),
	"forest.warm_start":             false,
	"forest.n_jobs":                 1,
	"forest.random_state":           -1,
	"forest.oob_score":              false,
	"tree.criterion":                tree.CriterionGini,
	"tree.max_depth":                -1,
	"tree.min_samples_split":        2,
	"tree.min_samples_leaf":         1,
	"tree.max_features":             tree.MaxFeaturesSqrt,
	"scorer.decision_metric":        scoring.LabeledF1.String(),
	"scorer.prior":                  metrics.DefaultPrior,
	"cv.n_splits":                   3,
	"cv.stratified":                 true,
	"cv.shuffle":                    true,
	"cv.random_seed":                0,
	"cv.n_jobs":                     1,
	"log.level":                     "info",
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the defaults with environment overrides applied.
func Default() (*Config, error) {
	return Load("")
}

// Load reads the file at path (YAML, JSON or TOML by extension) on top of
// the defaults, then applies environment overrides. An empty path skips
// the file. The result is validated.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the components would reject later.
func (c *Config) Validate() error {
	if err := ensemble.ValidateOptions(c.ForestOptions()...); err != nil {
		return errors.Wrap(err, "forest")
	}
	switch c.Tree.Criterion {
	case tree.CriterionGini, tree.CriterionEntropy:
	default:
		return errors.NewValidationError("tree.criterion", "must be gini or entropy", c.Tree.Criterion)
	}
	switch c.Tree.MaxFeatures {
	case tree.MaxFeaturesAll, tree.MaxFeaturesSqrt, tree.MaxFeaturesLog2:
	default:
		return errors.NewValidationError("tree.max_features", "must be all, sqrt or log2", c.Tree.MaxFeatures)
	}
	if _, err := c.ScorerOptions(); err != nil {
		return err
	}
	if c.CV.NSplits < 2 {
		return errors.NewValidationError("cv.n_splits", "must be at least 2", c.CV.NSplits)
	}
	if _, err := log.ToLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ForestOptions returns the forest options, tree settings included.
func (c *Config) ForestOptions() []ensemble.Option {
	return []ensemble.Option{
		ensemble.WithNEstimators(c.Forest.NEstimators),
		ensemble.WithTargetImbalanceRatio(c.Forest.TargetImbalanceRatio),
		ensemble.WithClassWeight(ensemble.ClassWeight(c.Forest.ClassWeight)),
		ensemble.WithWarmStart(c.Forest.WarmStart),
		ensemble.WithNJobs(c.Forest.NJobs),
		ensemble.WithRandomState(c.Forest.RandomState),
		ensemble.WithOOBScore(c.Forest.OOBScore),
		ensemble.WithCriterion(c.Tree.Criterion),
		ensemble.WithMaxDepth(c.Tree.MaxDepth),
		ensemble.WithMinSamplesSplit(c.Tree.MinSamplesSplit),
		ensemble.WithMinSamplesLeaf(c.Tree.MinSamplesLeaf),
		ensemble.WithMaxFeatures(c.Tree.MaxFeatures),
	}
}

// TreeOptions returns options for a standalone decision tree.
func (c *Config) TreeOptions() []tree.Option {
	return []tree.Option{
		tree.WithCriterion(c.Tree.Criterion),
		tree.WithMaxDepth(c.Tree.MaxDepth),
		tree.WithMinSamplesSplit(c.Tree.MinSamplesSplit),
		tree.WithMinSamplesLeaf(c.Tree.MinSamplesLeaf),
		tree.WithMaxFeatures(c.Tree.MaxFeatures),
		tree.WithRandomState(c.Forest.RandomState),
	}
}

// ScorerOptions resolves the decision metric and returns scorer options.
func (c *Config) ScorerOptions() ([]scoring.Option, error) {
	m, err := scoring.ParseMetric(c.Scorer.DecisionMetric)
	if err != nil {
		return nil, errors.Wrap(err, "scorer")
	}
	if m.Kind() != scoring.KindScalar {
		return nil, errors.NewValidationError("scorer.decision_metric", "must be a scalar metric", c.Scorer.DecisionMetric)
	}
	if c.Scorer.Prior < 0 || c.Scorer.Prior > 1 {
		return nil, errors.NewValidationError("scorer.prior", "must be in [0, 1]", c.Scorer.Prior)
	}
	return []scoring.Option{
		scoring.WithDecisionMetric(m),
		scoring.WithPrior(c.Scorer.Prior),
	}, nil
}

// Splitter returns the configured fold splitter.
func (c *Config) Splitter() model_selection.Splitter {
	if c.CV.Stratified {
		return model_selection.NewStratifiedKFold(c.CV.NSplits, c.CV.Shuffle, c.CV.RandomSeed)
	}
	return model_selection.NewKFold(c.CV.NSplits, c.CV.Shuffle, c.CV.RandomSeed)
}

// CVOptions returns the cross-validation options.
func (c *Config) CVOptions() []model_selection.Option {
	return []model_selection.Option{model_selection.WithNJobs(c.CV.NJobs)}
}

// SetupLogging installs the slog default logger and sets the level of the
// package loggers.
func (c *Config) SetupLogging() error {
	if err := log.SetupLogger(c.Log.Level); err != nil {
		return err
	}
	level, err := log.ToLogLevel(c.Log.Level)
	if err != nil {
		return err
	}
	log.SetLevel(log.Level(level))
	return nil
}
