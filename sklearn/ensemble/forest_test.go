package ensemble

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/YuminosukeSato/pulearn/core/model"
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// puDataset returns 60 rows: 10 labeled positives around (3, 3), 10 labeled
// negatives around (0, 0) and 40 unlabeled rows, 10 of them around (4, 4).
func puDataset() (*mat.Dense, *mat.VecDense) {
	n := 60
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		jitter := float64(i%7) * 0.05
		switch {
		case i < 10:
			X.Set(i, 0, 3+jitter)
			X.Set(i, 1, 3-jitter)
			y.SetVec(i, 1)
		case i < 20:
			X.Set(i, 0, jitter)
			X.Set(i, 1, -jitter)
			y.SetVec(i, 0)
		case i < 30:
			X.Set(i, 0, 4+jitter)
			X.Set(i, 1, 4+jitter)
			y.SetVec(i, -1)
		default:
			X.Set(i, 0, -jitter)
			X.Set(i, 1, jitter)
			y.SetVec(i, -1)
		}
	}
	return X, y
}

func silentLogger() log.Logger {
	logger, _ := log.NewTestLogger(log.LevelError)
	return logger
}

func captureWarnings(t *testing.T) *[]error {
	var mu sync.Mutex
	warnings := &[]error{}
	errors.SetZerologWarnFunc(func(w error) {
		mu.Lock()
		defer mu.Unlock()
		*warnings = append(*warnings, w)
	})
	t.Cleanup(func() { errors.SetZerologWarnFunc(nil) })
	return warnings
}

func TestSubsampleForestFitPredict(t *testing.T) {
	X, y := puDataset()
	forest := NewSubsampleForest(
		WithNEstimators(15),
		WithTargetImbalanceRatio(0.5),
		WithRandomState(7),
		WithLogger(silentLogger()),
	)

	report, err := forest.FitContext(context.Background(), X, y, nil)
	require.NoError(t, err)
	assert.False(t, report.NoOp)
	assert.Equal(t, 15, report.NewTrees)
	assert.Equal(t, 15, forest.NEstimators())
	assert.Len(t, report.Plans, 15)
	for i, p := range report.Plans {
		assert.Equal(t, i, p.TreeIndex)
		assert.Equal(t, 10, p.MinorityCount)
		assert.Equal(t, 20, p.MajorityDrawn)
	}

	proba, err := forest.PredictProba(X)
	require.NoError(t, err)
	rows, cols := proba.Dims()
	assert.Equal(t, 60, rows)
	assert.Equal(t, 2, cols)
	for i := 0; i < rows; i++ {
		assert.InDelta(t, 1.0, proba.At(i, 0)+proba.At(i, 1), 1e-9)
	}

	pred, err := forest.Predict(mat.NewDense(2, 2, []float64{3.15, 2.85, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, pred.At(0, 0))
	assert.Equal(t, 0.0, pred.At(1, 0))
	assert.Equal(t, []float64{0, 1}, forest.Classes())

	imp, err := forest.FeatureImportances()
	require.NoError(t, err)
	require.Len(t, imp, 2)
	assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)
}

func TestSubsampleForestDeterministicAcrossJobs(t *testing.T) {
	X, y := puDataset()
	fit := func(jobs int) mat.Matrix {
		forest := NewSubsampleForest(
			WithNEstimators(12),
			WithRandomState(11),
			WithNJobs(jobs),
			WithLogger(silentLogger()),
		)
		require.NoError(t, forest.Fit(X, y))
		proba, err := forest.PredictProba(X)
		require.NoError(t, err)
		return proba
	}
	assert.True(t, mat.Equal(fit(1), fit(4)))
	assert.True(t, mat.Equal(fit(1), fit(0)))
}

func TestSubsampleForestRejectsConfigurationBeforeSampling(t *testing.T) {
	X, y := puDataset()
	var calls int
	factory := func(seed uint64) model.WeightedClassifier {
		calls++
		return &stubTree{}
	}

	tests := []struct {
		name string
		opts []Option
	}{
		{name: "ratio at exclusive bound", opts: []Option{WithTargetImbalanceRatio(0.1)}},
		{name: "ratio above one", opts: []Option{WithTargetImbalanceRatio(1.5)}},
		{name: "bootstrap disabled", opts: []Option{WithBootstrap(false)}},
		{name: "oob score without bootstrap", opts: []Option{WithOOBScore(true), WithBootstrap(false)}},
		{name: "unknown class weight", opts: []Option{WithClassWeight("auto")}},
		{name: "no trees", opts: []Option{WithNEstimators(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithEstimatorFactory(factory), WithLogger(silentLogger())}, tt.opts...)
			forest := NewSubsampleForest(opts...)
			err := forest.Fit(X, y)
			require.Error(t, err)
			var ve *errors.ValidationError
			assert.True(t, errors.As(err, &ve))
			assert.Equal(t, 0, forest.NEstimators())
			assert.False(t, forest.IsFitted())
		})
	}
	assert.Zero(t, calls)
}

func TestSubsampleForestRejectsBadInput(t *testing.T) {
	X, y := puDataset()
	forest := NewSubsampleForest(WithNEstimators(2), WithLogger(silentLogger()))

	_, err := forest.FitContext(context.Background(), X, y, make([]float64, 3))
	assert.Error(t, err)

	w := make([]float64, 60)
	w[5] = -1
	_, err = forest.FitContext(context.Background(), X, y, w)
	assert.Error(t, err)

	bad := mat.NewVecDense(60, nil)
	bad.SetVec(0, 2)
	assert.Error(t, forest.Fit(X, bad))

	assert.Error(t, forest.Fit(X, mat.NewVecDense(10, nil)))

	_, err = forest.PredictProba(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}

func TestSubsampleForestRejectsNonFiniteFeatures(t *testing.T) {
	X, y := puDataset()
	forest := NewSubsampleForest(WithNEstimators(2), WithRandomState(1), WithLogger(silentLogger()))

	nanX := mat.DenseCopyOf(X)
	nanX.Set(12, 1, math.NaN())
	err := forest.Fit(nanX, y)
	var numErr *errors.NumericalInstabilityError
	require.True(t, errors.As(err, &numErr))
	assert.Equal(t, 12, numErr.Iteration)
	assert.False(t, forest.IsFitted())

	require.NoError(t, forest.Fit(X, y))
	infX := mat.NewDense(2, 2, []float64{0, 0, math.Inf(1), 3})
	_, err = forest.PredictProba(infX)
	require.True(t, errors.As(err, &numErr))
	assert.Equal(t, 1, numErr.Iteration)
	_, err = forest.Predict(infX)
	assert.Error(t, err)
}

func TestSubsampleForestWarmStart(t *testing.T) {
	X, y := puDataset()
	forest := NewSubsampleForest(WithNEstimators(5), WithRandomState(3), WithLogger(silentLogger()))
	require.NoError(t, forest.Fit(X, y))
	first := forest.Trees()

	forest.SetWarmStart(true)
	forest.SetNEstimators(8)
	report, err := forest.FitContext(context.Background(), X, y, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, report.NewTrees)
	assert.Equal(t, 8, report.TotalTrees)
	assert.Equal(t, []int{5, 6, 7}, []int{report.Plans[0].TreeIndex, report.Plans[1].TreeIndex, report.Plans[2].TreeIndex})
	trees := forest.Trees()
	for i := range first {
		assert.Same(t, first[i], trees[i])
	}

	// Growing to 8 trees equals fitting 8 trees at once with the same seed.
	direct := NewSubsampleForest(WithNEstimators(8), WithRandomState(3), WithLogger(silentLogger()))
	require.NoError(t, direct.Fit(X, y))
	a, err := forest.PredictProba(X)
	require.NoError(t, err)
	b, err := direct.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}

func TestSubsampleForestWarmStartShrinkRejected(t *testing.T) {
	X, y := puDataset()
	forest := NewSubsampleForest(WithNEstimators(4), WithWarmStart(true), WithLogger(silentLogger()))
	require.NoError(t, forest.Fit(X, y))

	forest.SetNEstimators(2)
	err := forest.Fit(X, y)
	require.Error(t, err)
	assert.Equal(t, 4, forest.NEstimators())
}

func TestSubsampleForestWarmStartNoOp(t *testing.T) {
	warnings := captureWarnings(t)
	X, y := puDataset()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	forest := NewSubsampleForest(WithNEstimators(3), WithWarmStart(true), WithLogger(logger))
	require.NoError(t, forest.Fit(X, y))
	before := forest.Trees()

	report, err := forest.FitContext(context.Background(), X, y, nil)
	require.NoError(t, err)
	assert.True(t, report.NoOp)
	assert.Equal(t, 0, report.NewTrees)
	assert.Equal(t, 3, report.TotalTrees)
	require.Len(t, report.Warnings, 1)

	var ws *errors.WarmStartWarning
	assert.True(t, errors.As(report.Warnings[0], &ws))
	require.Len(t, *warnings, 1)
	assert.True(t, errors.As((*warnings)[0], &ws))
	assert.True(t, logger.ContainsMessage("warm start added no trees"))
	assert.Equal(t, before, forest.Trees())
}

func TestSubsampleForestCappedRatioReported(t *testing.T) {
	warnings := captureWarnings(t)
	X := mat.NewDense(9, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8})
	y := mat.NewVecDense(9, []float64{1, 1, 1, 1, -1, -1, -1, -1, -1})

	forest := NewSubsampleForest(WithNEstimators(3), WithTargetImbalanceRatio(0.5), WithRandomState(1), WithLogger(silentLogger()))
	report, err := forest.FitContext(context.Background(), X, y, nil)
	require.NoError(t, err)
	assert.True(t, report.Capped())
	require.Len(t, report.Warnings, 1)
	var iw *errors.InfeasibleRatioWarning
	require.True(t, errors.As(report.Warnings[0], &iw))
	assert.Equal(t, 8, iw.Requested)
	assert.Equal(t, 5, iw.Available)
	assert.Len(t, *warnings, 1)
}

func TestSubsampleForestWeightsFollowPlan(t *testing.T) {
	rec := &recorder{}
	X := mat.NewDense(8, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7})
	y := mat.NewVecDense(8, []float64{1, 1, 0, 0, -1, -1, -1, -1})
	ext := []float64{1, 1, 1, 1, 2, 2, 2, 2}

	forest := NewSubsampleForest(
		WithNEstimators(6),
		WithRandomState(5),
		WithNJobs(3),
		WithEstimatorFactory(rec.factory),
		WithLogger(silentLogger()),
	)
	report, err := forest.FitContext(context.Background(), X, y, ext)
	require.NoError(t, err)
	require.Len(t, rec.weights, 6)

	for _, w := range rec.weights {
		assert.Zero(t, w[2], "negatives are neither minority nor majority here")
		assert.Zero(t, w[3])
		draws := 0.0
		for i, v := range w {
			draws += v / ext[i]
		}
		assert.Equal(t, 4.0, draws)
	}
	for _, p := range report.Plans {
		assert.Equal(t, 4, p.PoolSize)
	}
	for _, target := range rec.targets {
		assert.Equal(t, []float64{1, 1, 0, 0, 0, 0, 0, 0}, target)
	}

	// single-class members put all mass on class 0
	proba, err := forest.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, mat.Row(nil, 0, proba))
}

func TestSubsampleForestClassWeightModes(t *testing.T) {
	X, y := puDataset()
	for _, cw := range []ClassWeight{ClassWeightNone, ClassWeightBalanced, ClassWeightSubsample, ClassWeightBalancedSubsample} {
		t.Run(string(cw), func(t *testing.T) {
			forest := NewSubsampleForest(WithNEstimators(4), WithClassWeight(cw), WithRandomState(2), WithLogger(silentLogger()))
			require.NoError(t, forest.Fit(X, y))
			assert.Equal(t, 4, forest.NEstimators())
		})
	}
}

func TestSubsampleForestMemberFailureIsFatal(t *testing.T) {
	X, y := puDataset()
	logger, _ := log.NewTestLogger(log.LevelDebug)

	failing := NewSubsampleForest(
		WithNEstimators(4),
		WithNJobs(2),
		WithEstimatorFactory(func(seed uint64) model.WeightedClassifier {
			return &stubTree{fitErr: errors.New("boom")}
		}),
		WithLogger(logger),
	)
	err := failing.Fit(X, y)
	require.Error(t, err)
	var me *errors.ModelError
	assert.True(t, errors.As(err, &me))
	assert.Equal(t, 0, failing.NEstimators())
	assert.True(t, logger.ContainsMessage("fit aborted"))

	panicking := NewSubsampleForest(
		WithNEstimators(2),
		WithEstimatorFactory(func(seed uint64) model.WeightedClassifier {
			return &stubTree{panics: true}
		}),
		WithLogger(silentLogger()),
	)
	err = panicking.Fit(X, y)
	require.Error(t, err)
	var pe *errors.PanicError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, 0, panicking.NEstimators())
}

func TestSubsampleForestCancelledContext(t *testing.T) {
	X, y := puDataset()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	forest := NewSubsampleForest(WithNEstimators(3), WithLogger(silentLogger()))
	_, err := forest.FitContext(ctx, X, y, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, forest.NEstimators())
}

func TestSubsampleForestParams(t *testing.T) {
	forest := NewSubsampleForest(WithLogger(silentLogger()))
	params := forest.GetParams()
	assert.Equal(t, 10, params["n_estimators"])
	assert.Equal(t, 1.0, params["target_imbalance_ratio"])
	assert.Equal(t, "none", params["class_weight"])

	require.NoError(t, forest.SetParams(map[string]interface{}{
		"n_estimators":           20,
		"target_imbalance_ratio": 0.25,
		"class_weight":           "balanced_subsample",
		"random_state":           5,
	}))
	params = forest.GetParams()
	assert.Equal(t, 20, params["n_estimators"])
	assert.Equal(t, 0.25, params["target_imbalance_ratio"])
	assert.Equal(t, "balanced_subsample", params["class_weight"])
	assert.Equal(t, int64(5), params["random_state"])

	assert.Error(t, forest.SetParams(map[string]interface{}{"n_estimators": 5, "target_imbalance_ratio": 0.05}))
	assert.Equal(t, 20, forest.GetParams()["n_estimators"])
	assert.Error(t, forest.SetParams(map[string]interface{}{"unknown": 1}))
	assert.Error(t, forest.SetParams(map[string]interface{}{"n_estimators": "ten"}))
}

func TestSubsampleForestSaveLoad(t *testing.T) {
	X, y := puDataset()
	forest := NewSubsampleForest(WithNEstimators(4), WithRandomState(9), WithLogger(silentLogger()))
	require.NoError(t, forest.Fit(X, y))

	path := filepath.Join(t.TempDir(), "forest.gob")
	require.NoError(t, forest.Save(path))
	loaded, err := Load(path, WithLogger(silentLogger()))
	require.NoError(t, err)

	a, err := forest.PredictProba(X)
	require.NoError(t, err)
	b, err := loaded.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
	assert.Equal(t, forest.Seed(), loaded.Seed())
	assert.Equal(t, forest.GetParams(), loaded.GetParams())

	stub := NewSubsampleForest(WithNEstimators(1), WithEstimatorFactory(func(uint64) model.WeightedClassifier {
		return &stubTree{}
	}), WithLogger(silentLogger()))
	require.NoError(t, stub.Fit(X, y))
	_, err = stub.Snapshot()
	assert.Error(t, err)
}

// stubTree is a single-class member that always predicts class 0.
type stubTree struct {
	fitErr error
	panics bool
}

func (s *stubTree) FitWeighted(X, y mat.Matrix, w []float64) error {
	if s.panics {
		panic("member exploded")
	}
	return s.fitErr
}

func (s *stubTree) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, _ := X.Dims()
	return mat.NewDense(rows, 1, nil), nil
}

func (s *stubTree) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, _ := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, 1)
	}
	return out, nil
}

func (s *stubTree) Classes() []float64 {
	return []float64{0}
}

// recorder captures the weights and targets each member is fitted with.
type recorder struct {
	mu      sync.Mutex
	weights [][]float64
	targets [][]float64
}

func (r *recorder) factory(seed uint64) model.WeightedClassifier {
	return &recordingTree{rec: r}
}

type recordingTree struct {
	stubTree
	rec *recorder
}

func (t *recordingTree) FitWeighted(X, y mat.Matrix, w []float64) error {
	rows, _ := y.Dims()
	target := make([]float64, rows)
	for i := range target {
		target[i] = y.At(i, 0)
	}
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	t.rec.weights = append(t.rec.weights, append([]float64(nil), w...))
	t.rec.targets = append(t.rec.targets, target)
	return nil
}


func TestValidateOptions(t *testing.T) {
	assert.NoError(t, ValidateOptions())
	assert.NoError(t, ValidateOptions(WithNEstimators(3), WithOOBScore(true)))

	err := ValidateOptions(WithTargetImbalanceRatio(0.05))
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "target_imbalance_ratio", ve.ParamName)

	err = ValidateOptions(WithOOBScore(true), WithBootstrap(false))
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "oob_score", ve.ParamName)
}
