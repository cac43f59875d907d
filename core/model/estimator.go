// Package model はモデルが満たすべきインターフェースと学習状態の管理を提供します。
package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対するクラスラベルを n×1 の行列で返す
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// ProbabilisticPredictor は各クラスの確率を返せるモデル
type ProbabilisticPredictor interface {
	Predictor

	// PredictProba は n×k の確率行列を返す。列の並びは Classes() と同じ
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes は学習時に見たクラスを昇順で返す
	Classes() []float64
}

// WeightedFitter はサンプル重み付きで学習できるモデル。
// アンサンブルの各木はこのインターフェース越しに学習される。
type WeightedFitter interface {
	// FitWeighted は重み w で学習する。w が nil なら全行の重みを 1 とみなす。
	// 重みが 0 の行は学習に使われない。
	FitWeighted(X, y mat.Matrix, w []float64) error
}

// WeightedClassifier はアンサンブルのメンバーとして使える分類器
type WeightedClassifier interface {
	WeightedFitter
	ProbabilisticPredictor
}

// Classifier は学習と確率予測ができる分類器。
// スコアラーや交差検証はこのインターフェースを受け取る。
type Classifier interface {
	Fitter
	ProbabilisticPredictor
}

// ParameterGetter はハイパーパラメータを公開するモデル
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter はハイパーパラメータを変更できるモデル
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}

// FeatureImportancer は特徴量の重要度を返すモデル
type FeatureImportancer interface {
	FeatureImportances() ([]float64, error)
}

// ClassifierFactory は未学習の分類器を新しく作る関数。
// 交差検証ではfoldごとに呼ばれる。
type ClassifierFactory func() (Classifier, error)

// WeightedClassifierFactory はアンサンブルの木を一本ずつ作る関数
type WeightedClassifierFactory func(seed uint64) WeightedClassifier
