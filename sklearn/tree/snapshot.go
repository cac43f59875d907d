package tree

import (
	"github.com/YuminosukeSato/pulearn/core/model"
	"github.com/YuminosukeSato/pulearn/pkg/errors"
)

// Snapshot is the exported, gob-encodable state of a fitted tree.
type Snapshot struct {
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	RandomState     int64

	Classes     []float64
	NFeatures   int
	NSamples    int
	Nodes       []Node
	Importances []float64
	Depth       int
	NLeaves     int
}

// Snapshot captures the fitted tree.
func (dt *DecisionTreeClassifier) Snapshot() (*Snapshot, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "Snapshot"); err != nil {
		return nil, err
	}
	nFeatures, nSamples := dt.state.GetDimensions()
	nodes := make([]Node, len(dt.nodes))
	for i, n := range dt.nodes {
		n.Value = append([]float64(nil), n.Value...)
		nodes[i] = n
	}
	return &Snapshot{
		Criterion:       dt.criterion,
		MaxDepth:        dt.maxDepth,
		MinSamplesSplit: dt.minSamplesSplit,
		MinSamplesLeaf:  dt.minSamplesLeaf,
		MaxFeatures:     dt.maxFeatures,
		RandomState:     dt.randomState,
		Classes:         dt.Classes(),
		NFeatures:       nFeatures,
		NSamples:        nSamples,
		Nodes:           nodes,
		Importances:     dt.GetFeatureImportances(),
		Depth:           dt.depth_,
		NLeaves:         dt.nLeaves_,
	}, nil
}

// FromSnapshot rebuilds a fitted tree.
func FromSnapshot(s *Snapshot) (*DecisionTreeClassifier, error) {
	if s == nil || len(s.Nodes) == 0 || len(s.Classes) == 0 {
		return nil, errors.NewValueError("tree.FromSnapshot", "empty snapshot")
	}
	for _, n := range s.Nodes {
		if len(n.Value) != len(s.Classes) {
			return nil, errors.NewDimensionError("tree.FromSnapshot", len(s.Classes), len(n.Value), 1)
		}
		if !n.IsLeaf() && (n.Left >= len(s.Nodes) || n.Right >= len(s.Nodes) || n.Feature >= s.NFeatures) {
			return nil, errors.NewValueError("tree.FromSnapshot", "node references out of range")
		}
	}
	dt := NewDecisionTreeClassifier(
		WithCriterion(s.Criterion),
		WithMaxDepth(s.MaxDepth),
		WithMinSamplesSplit(s.MinSamplesSplit),
		WithMinSamplesLeaf(s.MinSamplesLeaf),
		WithMaxFeatures(s.MaxFeatures),
		WithRandomState(s.RandomState),
	)
	dt.nodes = s.Nodes
	dt.classes_ = append([]float64(nil), s.Classes...)
	dt.nClasses_ = len(s.Classes)
	dt.nFeatures_ = s.NFeatures
	dt.importances_ = append([]float64(nil), s.Importances...)
	dt.depth_ = s.Depth
	dt.nLeaves_ = s.NLeaves
	dt.state.SetState(model.ModelState{Fitted: true, NFeatures: s.NFeatures, NSamples: s.NSamples})
	return dt, nil
}
