// Package pulearn provides positive-unlabeled (PU) learning for Go: a
// random forest trained on class-rebalanced bootstraps, PU-aware metrics,
// a multi-metric scorer and tools to compare configurations by
// cross-validation.
//
// Labels use three values: 1 (positive), 0 (negative) and -1 (unlabeled).
// Unlabeled rows may hide positives, so metrics come in two flavours:
// "labeled" metrics use only rows whose label is known and "assumed"
// metrics treat unlabeled rows as negative.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//	    "os"
//
//	    "github.com/YuminosukeSato/pulearn/model_selection"
//	    "github.com/YuminosukeSato/pulearn/scoring"
//	    "github.com/YuminosukeSato/pulearn/sklearn/ensemble"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    var X, y *mat.Dense // features and PU labels
//
//	    forest := ensemble.NewSubsampleForest(
//	        ensemble.WithNEstimators(100),
//	        ensemble.WithTargetImbalanceRatio(0.5),
//	        ensemble.WithNJobs(-1),
//	    )
//	    if err := forest.Fit(X, y); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    scorer, _ := scoring.NewScorer(scoring.WithDecisionMetric(scoring.PUScore))
//	    grid, _, err := model_selection.CrossValidateCandidates(context.Background(),
//	        []model_selection.Candidate{
//	            model_selection.ForestCandidate("ratio_1.0", map[string]interface{}{"target_imbalance_ratio": 1.0}),
//	            model_selection.ForestCandidate("ratio_0.5", map[string]interface{}{"target_imbalance_ratio": 0.5}),
//	        },
//	        X, y, model_selection.NewStratifiedKFold(5, true, 1), scorer)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    _ = grid.MeanTestScores().Render(os.Stdout)
//	}
//
// # Packages
//
//   - pu: label type and label vector helpers
//   - metrics: classification metrics, labeled/assumed adapters, PU metrics
//   - sklearn/tree: weighted decision tree used as the forest member
//   - sklearn/ensemble: class-balanced sampler and SubsampleForest
//   - scoring: metric registry, Scorer, ScoreGrid aggregation
//   - model_selection: k-fold splitters and cross-validation
//   - config: viper based configuration
//   - core/model: estimator interfaces and fit state
//   - core/parallel: parallel processing utilities
//   - pkg/errors, pkg/log: structured errors, warnings and logging
package pulearn
