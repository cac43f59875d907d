package ensemble

import (
	"github.com/YuminosukeSato/pulearn/core/model"
	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/sklearn/tree"
	"gonum.org/v1/gonum/mat"
)

// ForestSnapshot is the exported, gob-encodable state of a fitted forest
// built from the default tree members.
type ForestSnapshot struct {
	NEstimators          int
	TargetImbalanceRatio float64
	ClassWeight          string
	NJobs                int
	RandomState          int64
	Criterion            string
	MaxDepth             int
	MinSamplesSplit      int
	MinSamplesLeaf       int
	MaxFeatures          string
	OOBScore             bool

	Seed      uint64
	NFeatures int
	NSamples  int
	Trees     []tree.Snapshot

	// OOBDecision is the row-major n×2 out-of-bag decision function, empty
	// unless oob_score was on.
	OOBDecision   []float64
	OOBScoreValue float64
}

// Snapshot captures the fitted forest. It fails if a member is not a
// *tree.DecisionTreeClassifier.
func (f *SubsampleForest) Snapshot() (*ForestSnapshot, error) {
	if err := f.state.RequireFitted(modelName, "Snapshot"); err != nil {
		return nil, err
	}
	nFeatures, nSamples := f.state.GetDimensions()
	p := f.params
	s := &ForestSnapshot{
		NEstimators:          p.nEstimators,
		TargetImbalanceRatio: p.targetImbalanceRatio,
		ClassWeight:          string(p.classWeight),
		NJobs:                p.nJobs,
		RandomState:          p.randomState,
		Criterion:            p.criterion,
		MaxDepth:             p.maxDepth,
		MinSamplesSplit:      p.minSamplesSplit,
		MinSamplesLeaf:       p.minSamplesLeaf,
		MaxFeatures:          p.maxFeatures,
		OOBScore:             p.oobScore,
		Seed:                 f.seed,
		NFeatures:            nFeatures,
		NSamples:             nSamples,
		Trees:                make([]tree.Snapshot, len(f.trees)),
	}
	for i, t := range f.trees {
		dt, ok := t.(*tree.DecisionTreeClassifier)
		if !ok {
			return nil, errors.NewModelError("SubsampleForest.Snapshot", "member is not a decision tree", nil)
		}
		ts, err := dt.Snapshot()
		if err != nil {
			return nil, err
		}
		s.Trees[i] = *ts
	}
	if f.oobDecision != nil {
		s.OOBDecision = append([]float64(nil), f.oobDecision.RawMatrix().Data...)
		s.OOBScoreValue = f.oobScore
	}
	return s, nil
}

// FromSnapshot rebuilds a fitted forest. Extra options (for example a
// logger) are applied after the stored hyperparameters.
func FromSnapshot(s *ForestSnapshot, opts ...Option) (*SubsampleForest, error) {
	if s == nil || len(s.Trees) == 0 {
		return nil, errors.NewValueError("ensemble.FromSnapshot", "empty snapshot")
	}
	cw, err := ParseClassWeight(s.ClassWeight)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithNEstimators(s.NEstimators),
		WithTargetImbalanceRatio(s.TargetImbalanceRatio),
		WithClassWeight(cw),
		WithNJobs(s.NJobs),
		WithRandomState(s.RandomState),
		WithCriterion(s.Criterion),
		WithMaxDepth(s.MaxDepth),
		WithMinSamplesSplit(s.MinSamplesSplit),
		WithMinSamplesLeaf(s.MinSamplesLeaf),
		WithMaxFeatures(s.MaxFeatures),
		WithOOBScore(s.OOBScore),
	}
	f := NewSubsampleForest(append(base, opts...)...)
	if err := f.params.validate(); err != nil {
		return nil, err
	}
	for i := range s.Trees {
		dt, err := tree.FromSnapshot(&s.Trees[i])
		if err != nil {
			return nil, errors.Wrapf(err, "tree %d", i)
		}
		f.trees = append(f.trees, dt)
	}
	f.seed = s.Seed
	if len(s.OOBDecision) > 0 {
		if len(s.OOBDecision) != 2*s.NSamples {
			return nil, errors.NewDimensionError("ensemble.FromSnapshot", 2*s.NSamples, len(s.OOBDecision), 0)
		}
		f.oobDecision = mat.NewDense(s.NSamples, 2, append([]float64(nil), s.OOBDecision...))
		f.oobScore = s.OOBScoreValue
	}
	f.state.SetState(model.ModelState{Fitted: true, NFeatures: s.NFeatures, NSamples: s.NSamples})
	return f, nil
}

// Save writes the forest snapshot to path with gob.
func (f *SubsampleForest) Save(path string) error {
	s, err := f.Snapshot()
	if err != nil {
		return err
	}
	return model.SaveModel(s, path)
}

// Load reads a forest written by Save.
func Load(path string, opts ...Option) (*SubsampleForest, error) {
	var s ForestSnapshot
	if err := model.LoadModel(&s, path); err != nil {
		return nil, err
	}
	return FromSnapshot(&s, opts...)
}
