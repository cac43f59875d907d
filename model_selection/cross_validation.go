package model_selection

import (
	"context"
	"runtime"
	"time"

	"github.com/YuminosukeSato/pulearn/core/model"
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/pkg/log"
	"github.com/YuminosukeSato/pulearn/scoring"
	"github.com/YuminosukeSato/pulearn/sklearn/ensemble"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

type cvConfig struct {
	nJobs  int
	logger log.Logger
}

// Option configures CrossValidate and CrossValidateCandidates.
type Option func(*cvConfig)

// WithNJobs bounds how many folds (or candidates) run at once. Values
// <= 0 use one job per CPU.
func WithNJobs(n int) Option {
	return func(c *cvConfig) {
		c.nJobs = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(c *cvConfig) {
		c.logger = logger
	}
}

func newConfig(opts []Option) *cvConfig {
	c := &cvConfig{nJobs: 1}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.GetLoggerWithName("model_selection")
	}
	if c.nJobs <= 0 {
		c.nJobs = runtime.NumCPU()
	}
	return c
}

// CrossValidate fits a fresh estimator from factory on the train part of
// every fold and scores it on both parts. Any failing fold fails the call.
func CrossValidate(ctx context.Context, factory model.ClassifierFactory, X, y mat.Matrix,
	splitter Splitter, scorer *scoring.Scorer, opts ...Option) (*scoring.RunResult, error) {
	cfg := newConfig(opts)
	return crossValidate(ctx, "", factory, X, y, splitter, scorer, cfg)
}

func crossValidate(ctx context.Context, name string, factory model.ClassifierFactory, X, y mat.Matrix,
	splitter Splitter, scorer *scoring.Scorer, cfg *cvConfig) (*scoring.RunResult, error) {
	if factory == nil || splitter == nil || scorer == nil {
		return nil, errors.NewValueError("CrossValidate", "factory, splitter and scorer are required")
	}
	if X == nil || y == nil {
		return nil, errors.NewValueError("CrossValidate", "nil input")
	}
	folds, err := splitter.Split(X, y)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger.With(log.ComponentKey, "cross_validation")
	result := &scoring.RunResult{Name: name, Splits: make([]scoring.SplitResult, len(folds))}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.nJobs)
	for i, fold := range folds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			split, err := runFold(factory, X, y, fold, scorer)
			if err != nil {
				return errors.Wrapf(err, "fold %d", i)
			}
			result.Splits[i] = split
			test, _ := split.Test.Score()
			logger.Debug("fold scored", log.SplitKey, i, log.ScoreKey, test)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("cross-validation failed", err)
		return nil, err
	}
	logger.Info("cross-validation complete",
		log.SplitKey, len(folds),
		log.MetricKey, scorer.DecisionMetric().String(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return result, nil
}

func runFold(factory model.ClassifierFactory, X, y mat.Matrix, fold Fold, scorer *scoring.Scorer) (scoring.SplitResult, error) {
	var out scoring.SplitResult
	trainX, trainY := extractSubset(X, y, fold.TrainIndices)
	testX, testY := extractSubset(X, y, fold.TestIndices)

	est, err := factory()
	if err != nil {
		return out, err
	}
	if err := errors.SafeExecute("CrossValidate.fit", func() error {
		return est.Fit(trainX, trainY)
	}); err != nil {
		return out, err
	}
	if out.Train, _, err = scorer.Score(est, trainX, trainY); err != nil {
		return out, errors.Wrap(err, "train score")
	}
	if out.Test, _, err = scorer.Score(est, testX, testY); err != nil {
		return out, errors.Wrap(err, "test score")
	}
	return out, nil
}

// Candidate is one configuration evaluated by CrossValidateCandidates.
type Candidate struct {
	Name    string
	Params  map[string]interface{}
	Factory model.ClassifierFactory
}

// ForestCandidate builds a candidate whose estimator is a SubsampleForest
// created with opts and then updated with params.
func ForestCandidate(name string, params map[string]interface{}, opts ...ensemble.Option) Candidate {
	return Candidate{
		Name:   name,
		Params: params,
		Factory: func() (model.Classifier, error) {
			f := ensemble.NewSubsampleForest(opts...)
			if len(params) > 0 {
				if err := f.SetParams(params); err != nil {
					return nil, err
				}
			}
			return f, nil
		},
	}
}

// CrossValidateCandidates cross-validates every candidate with the same
// folds and aggregates the results into a ScoreGrid, one row per
// candidate in input order. Candidates run concurrently up to NJobs; folds
// of one candidate run sequentially.
func CrossValidateCandidates(ctx context.Context, candidates []Candidate, X, y mat.Matrix,
	splitter Splitter, scorer *scoring.Scorer, opts ...Option) (*scoring.ScoreGrid, []scoring.RunResult, error) {
	if len(candidates) == 0 {
		return nil, nil, errors.NewValueError("CrossValidateCandidates", "no candidates")
	}
	cfg := newConfig(opts)
	inner := &cvConfig{nJobs: 1, logger: cfg.logger}

	runs := make([]scoring.RunResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.nJobs)
	for i, c := range candidates {
		g.Go(func() error {
			run, err := crossValidate(gctx, c.Name, c.Factory, X, y, splitter, scorer, inner)
			if err != nil {
				return errors.Wrapf(err, "candidate %q", c.Name)
			}
			run.Params = c.Params
			runs[i] = *run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	grid, err := scoring.Aggregate(runs)
	if err != nil {
		return nil, nil, err
	}
	return grid, runs, nil
}
