package scoring

import (
	"math"

	"github.com/YuminosukeSato/pulearn/metrics"
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SingleScorer scores an estimator with one scalar metric. Losses are
// negated so that a larger score is always better.
type SingleScorer struct {
	metric Metric
	prior  float64
	sign   float64
}

// NewSingleScorer creates a scorer for one scalar metric.
func NewSingleScorer(m Metric, prior float64) (*SingleScorer, error) {
	if err := validateDecision(m); err != nil {
		return nil, err
	}
	if prior < 0 || prior > 1 || math.IsNaN(prior) {
		return nil, errors.NewValidationError("prior", "must be in [0, 1]", prior)
	}
	sign := 1.0
	if !m.GreaterIsBetter() {
		sign = -1
	}
	return &SingleScorer{metric: m, prior: prior, sign: sign}, nil
}

// PUScorer ranks by pu_score.
func PUScorer() *SingleScorer {
	return &SingleScorer{metric: PUScore, prior: metrics.DefaultPrior, sign: 1}
}

// PriorSquaredErrorScorer ranks by the negated prior_squared_error with the
// default prior of 0.015.
func PriorSquaredErrorScorer() *SingleScorer {
	return &SingleScorer{metric: PriorSquaredError, prior: metrics.DefaultPrior, sign: -1}
}

// BrierScoreLabeledLossScorer ranks by the negated Brier loss over labeled
// rows.
func BrierScoreLabeledLossScorer() *SingleScorer {
	return &SingleScorer{metric: LabeledBrier, prior: metrics.DefaultPrior, sign: -1}
}

// Metric returns the scored metric.
func (s *SingleScorer) Metric() Metric {
	return s.metric
}

// Score returns the signed metric value, NaN when it is undefined.
func (s *SingleScorer) Score(est Estimator, X, y mat.Matrix) (float64, error) {
	in, err := prepare(est, X, y, s.prior)
	if err != nil {
		return math.NaN(), err
	}
	v, err := s.metric.compute(in)
	if err != nil {
		return math.NaN(), err
	}
	if !v.Defined {
		return math.NaN(), nil
	}
	return s.sign * v.Scalar, nil
}
