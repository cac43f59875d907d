// Package scoring evaluates fitted PU classifiers with a fixed set of
// metrics and aggregates the per-split results of model selection runs.
//
// A Scorer returns a Dictionary holding every registered metric plus the
// configured decision metric under ScoreKey. Aggregate turns dictionaries
// collected across runs and splits into a ScoreGrid with mean and standard
// deviation columns.
package scoring

import (
	"math"
	"sync"

	"github.com/YuminosukeSato/pulearn/metrics"
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/pkg/log"
	"github.com/YuminosukeSato/pulearn/pu"
	"gonum.org/v1/gonum/mat"
)

// Estimator is what the scorer needs from a fitted model.
type Estimator interface {
	Predict(X mat.Matrix) (mat.Matrix, error)
	PredictProba(X mat.Matrix) (mat.Matrix, error)
	Classes() []float64
}

// Scorer computes every registered metric for an estimator and returns the
// decision metric as the ranking scalar. It is safe for concurrent use.
type Scorer struct {
	mu       sync.RWMutex
	decision Metric
	prior    float64
	logger   log.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithDecisionMetric sets the metric returned as the ranking scalar.
func WithDecisionMetric(m Metric) Option {
	return func(s *Scorer) {
		s.decision = m
	}
}

// WithPrior sets the prior used by prior_squared_error.
func WithPrior(prior float64) Option {
	return func(s *Scorer) {
		s.prior = prior
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Scorer) {
		s.logger = logger
	}
}

// NewScorer creates a scorer. The decision metric defaults to labeled_f1
// and must be a scalar metric.
func NewScorer(opts ...Option) (*Scorer, error) {
	s := &Scorer{
		decision: LabeledF1,
		prior:    metrics.DefaultPrior,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := validateDecision(s.decision); err != nil {
		return nil, err
	}
	if s.prior < 0 || s.prior > 1 || math.IsNaN(s.prior) {
		return nil, errors.NewValidationError("prior", "must be in [0, 1]", s.prior)
	}
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("scoring")
	}
	s.logger = s.logger.With(log.ComponentKey, "scorer")
	return s, nil
}

func validateDecision(m Metric) error {
	if !m.Valid() {
		return errors.NewValidationError("decision_metric", "unknown metric", int(m))
	}
	if m.Kind() != KindScalar {
		return errors.NewValidationError("decision_metric", "must be a scalar metric", m.String())
	}
	return nil
}

// DecisionMetric returns the current decision metric.
func (s *Scorer) DecisionMetric() Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decision
}

// SetDecisionMetric changes the ranking metric. Nothing is refitted.
func (s *Scorer) SetDecisionMetric(m Metric) error {
	if err := validateDecision(m); err != nil {
		return err
	}
	s.mu.Lock()
	s.decision = m
	s.mu.Unlock()
	return nil
}

// SetDecisionMetricByName is SetDecisionMetric with a metric name.
func (s *Scorer) SetDecisionMetricByName(name string) error {
	m, err := ParseMetric(name)
	if err != nil {
		return err
	}
	return s.SetDecisionMetric(m)
}

// Prior returns the prior used by prior_squared_error.
func (s *Scorer) Prior() float64 {
	return s.prior
}

// Score predicts X with est and evaluates every metric against the PU
// labels y. The returned scalar is the decision metric, NaN when that
// metric is undefined on this data.
func (s *Scorer) Score(est Estimator, X, y mat.Matrix) (Dictionary, float64, error) {
	decision := s.DecisionMetric()

	in, err := prepare(est, X, y, s.prior)
	if err != nil {
		return nil, math.NaN(), err
	}

	dict := make(Dictionary, numMetrics+1)
	for _, m := range Metrics() {
		v, err := m.compute(in)
		if err != nil {
			s.logger.Error("metric failed", err, log.MetricKey, m.String())
			return nil, math.NaN(), err
		}
		dict[m.String()] = v
	}

	score := dict[decision.String()]
	dict[ScoreKey] = score

	s.logger.Debug("scored",
		log.OperationKey, log.OperationScore,
		log.SamplesKey, len(in.labels),
		log.MetricKey, decision.String(),
		log.ScoreKey, score.Scalar,
	)
	return dict, score.Scalar, nil
}

// prepare validates the labels and collects hard and positive-class
// predictions.
func prepare(est Estimator, X, y mat.Matrix, prior float64) (*input, error) {
	if est == nil || X == nil || y == nil {
		return nil, errors.NewValueError("Scorer.Score", "nil input")
	}
	labels, err := pu.FromMatrix(y)
	if err != nil {
		return nil, err
	}
	rows, _ := X.Dims()
	if rows != len(labels) {
		return nil, errors.NewDimensionError("Scorer.Score", rows, len(labels), 0)
	}

	predM, err := est.Predict(X)
	if err != nil {
		return nil, errors.Wrap(err, "predict")
	}
	pred, err := column(predM, 0, rows)
	if err != nil {
		return nil, err
	}

	probaM, err := est.PredictProba(X)
	if err != nil {
		return nil, errors.Wrap(err, "predict proba")
	}
	prob, err := positiveColumn(probaM, est.Classes(), rows)
	if err != nil {
		return nil, err
	}
	return &input{labels: labels, pred: pred, prob: prob, prior: prior}, nil
}

func column(m mat.Matrix, j, rows int) (*mat.VecDense, error) {
	r, c := m.Dims()
	if r != rows || j >= c {
		return nil, errors.NewDimensionError("Scorer.Score", rows, r, 0)
	}
	out := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		out.SetVec(i, m.At(i, j))
	}
	return out, nil
}

// positiveColumn returns the probability of class 1. An estimator that
// never saw class 1 predicts it with probability 0.
func positiveColumn(proba mat.Matrix, classes []float64, rows int) (*mat.VecDense, error) {
	for k, c := range classes {
		if c == 1 {
			return column(proba, k, rows)
		}
	}
	r, _ := proba.Dims()
	if r != rows {
		return nil, errors.NewDimensionError("Scorer.Score", rows, r, 0)
	}
	return mat.NewVecDense(rows, nil), nil
}
