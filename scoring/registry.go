package scoring

import (
	"math"

	"github.com/YuminosukeSato/pulearn/metrics"
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/pu"
	"gonum.org/v1/gonum/mat"
)

// Kind tags the shape of a metric value.
type Kind int

const (
	// KindScalar is a single float.
	KindScalar Kind = iota
	// KindConfusionMatrix is a 2×2 matrix laid out [[tn, fp], [fn, tp]].
	KindConfusionMatrix
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindConfusionMatrix:
		return "confusion_matrix"
	}
	return "unknown"
}

// Metric is one of the metrics computed by Scorer.
type Metric int

// The metric set is closed. Labeled* metrics use only rows whose label is
// known, Assumed* metrics treat unlabeled rows as negative.
const (
	LabeledAccuracy Metric = iota
	LabeledPrecision
	LabeledRecall
	LabeledF1
	LabeledROCAUC
	LabeledAveragePrecision
	LabeledBrier
	LabeledBrierPositive
	LabeledBrierNegative
	LabeledConfusionMatrix
	PrOneUnlabeled
	AssumedBrier
	AssumedBrierNegative
	AssumedF1
	AssumedF1Beta10
	AssumedConfusionMatrix
	PUScore
	PriorSquaredError
	LabeledLogLoss

	numMetrics
)

// input carries everything a metric may need.
type input struct {
	labels pu.Labels
	pred   *mat.VecDense // hard predictions in {0, 1}
	prob   *mat.VecDense // positive class probability
	prior  float64
}

type scalarFunc func(in *input) (float64, error)

type matrixFunc func(in *input) (*mat.Dense, error)

type definition struct {
	name            string
	kind            Kind
	greaterIsBetter bool
	scalar          scalarFunc
	matrix          matrixFunc
}

func labeledPred(fn metrics.Func) scalarFunc {
	return func(in *input) (float64, error) {
		return metrics.LabeledMetric[float64](fn, in.labels, in.pred)
	}
}

func labeledProb(fn metrics.Func) scalarFunc {
	return func(in *input) (float64, error) {
		return metrics.LabeledMetric[float64](fn, in.labels, in.prob)
	}
}

func assumedPred(fn metrics.Func) scalarFunc {
	return func(in *input) (float64, error) {
		return metrics.AssumedMetric[float64](fn, in.labels, in.pred)
	}
}

func assumedProb(fn metrics.Func) scalarFunc {
	return func(in *input) (float64, error) {
		return metrics.AssumedMetric[float64](fn, in.labels, in.prob)
	}
}

// registry maps every metric to its definition. ROC AUC and average
// precision are computed on hard predictions.
var registry = [numMetrics]definition{
	LabeledAccuracy:         {name: "labeled_acc", greaterIsBetter: true, scalar: labeledPred(metrics.Accuracy)},
	LabeledPrecision:        {name: "labeled_prec", greaterIsBetter: true, scalar: labeledPred(metrics.Precision)},
	LabeledRecall:           {name: "labeled_recall", greaterIsBetter: true, scalar: labeledPred(metrics.Recall)},
	LabeledF1:               {name: "labeled_f1", greaterIsBetter: true, scalar: labeledPred(metrics.F1Score)},
	LabeledROCAUC:           {name: "labeled_roc_auc", greaterIsBetter: true, scalar: labeledPred(metrics.AUC)},
	LabeledAveragePrecision: {name: "labeled_avg_prec", greaterIsBetter: true, scalar: labeledPred(metrics.AveragePrecision)},
	LabeledBrier:            {name: "labeled_brier", scalar: labeledProb(metrics.BrierScoreLoss)},
	LabeledBrierPositive:    {name: "labeled_brier_pos", scalar: labeledProb(metrics.BrierPartialFunc(1))},
	LabeledBrierNegative:    {name: "labeled_brier_neg", scalar: labeledProb(metrics.BrierPartialFunc(0))},
	LabeledConfusionMatrix: {
		name: "confusion_matrix_lab",
		kind: KindConfusionMatrix,
		matrix: func(in *input) (*mat.Dense, error) {
			return metrics.LabeledMetric(metrics.ConfusionMatrix, in.labels, in.pred)
		},
	},
	PrOneUnlabeled: {
		name: "pr_one_unlabeled",
		scalar: func(in *input) (float64, error) {
			return metrics.PrOneUnlabeled(in.labels, in.pred)
		},
	},
	AssumedBrier:         {name: "assumed_brier", scalar: assumedProb(metrics.BrierScoreLoss)},
	AssumedBrierNegative: {name: "assumed_brier_neg", scalar: assumedProb(metrics.BrierPartialFunc(0))},
	AssumedF1:            {name: "assumed_f1", greaterIsBetter: true, scalar: assumedPred(metrics.F1Score)},
	AssumedF1Beta10:      {name: "assumed_f1beta10", greaterIsBetter: true, scalar: assumedPred(metrics.FBetaFunc(10))},
	AssumedConfusionMatrix: {
		name: "confusion_matrix_un",
		kind: KindConfusionMatrix,
		matrix: func(in *input) (*mat.Dense, error) {
			return metrics.AssumedMetric(metrics.ConfusionMatrix, in.labels, in.pred)
		},
	},
	PUScore: {
		name:            "pu_score",
		greaterIsBetter: true,
		scalar: func(in *input) (float64, error) {
			return metrics.PUScore(in.labels, in.pred)
		},
	},
	PriorSquaredError: {
		name: "prior_squared_error",
		scalar: func(in *input) (float64, error) {
			return metrics.PriorSquaredError(in.labels, in.pred, in.prior)
		},
	},
	LabeledLogLoss: {name: "labeled_log_loss", scalar: labeledProb(metrics.BinaryLogLoss)},
}

var byName = func() map[string]Metric {
	m := make(map[string]Metric, numMetrics)
	for i := Metric(0); i < numMetrics; i++ {
		m[registry[i].name] = i
	}
	return m
}()

// Metrics returns every metric in registry order.
func Metrics() []Metric {
	out := make([]Metric, numMetrics)
	for i := range out {
		out[i] = Metric(i)
	}
	return out
}

// ParseMetric resolves a metric by name.
func ParseMetric(name string) (Metric, error) {
	m, ok := byName[name]
	if !ok {
		return 0, errors.NewValidationError("metric", "unknown metric name", name)
	}
	return m, nil
}

// Valid reports whether m is a registered metric.
func (m Metric) Valid() bool {
	return m >= 0 && m < numMetrics
}

// String returns the dictionary key of the metric.
func (m Metric) String() string {
	if !m.Valid() {
		return "unknown"
	}
	return registry[m].name
}

// Kind returns the value shape of the metric.
func (m Metric) Kind() Kind {
	if !m.Valid() {
		return KindScalar
	}
	return registry[m].kind
}

// GreaterIsBetter reports whether larger values rank higher. Losses and
// error metrics return false.
func (m Metric) GreaterIsBetter() bool {
	return m.Valid() && registry[m].greaterIsBetter
}

// compute evaluates the metric. Undefined results become an undefined
// Value, anything else is returned as an error.
func (m Metric) compute(in *input) (Value, error) {
	def := registry[m]
	switch def.kind {
	case KindConfusionMatrix:
		cm, err := def.matrix(in)
		if err != nil {
			if metrics.IsUndefined(err) {
				return UndefinedValue(KindConfusionMatrix), nil
			}
			return Value{}, errors.Wrapf(err, "metric %s", def.name)
		}
		return ConfusionValue(cm), nil
	default:
		v, err := def.scalar(in)
		if err != nil {
			if metrics.IsUndefined(err) {
				return UndefinedValue(KindScalar), nil
			}
			return Value{}, errors.Wrapf(err, "metric %s", def.name)
		}
		if math.IsNaN(v) {
			return UndefinedValue(KindScalar), nil
		}
		return ScalarValue(v), nil
	}
}
