// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// scikit-learnの警告・例外システムにインスパイアされており、構造化されたエラー情報を提供します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("pulearn-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
// これにより、WarmStartWarningなどのカスタム警告の処理方法を制御できます。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
// nil を渡すと従来のハンドラに戻ります。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが利用可能な場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	scikit-learn互換の警告型
//
// ===========================================================================

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、適合率(precision)を計算する際に、陽性クラスの予測が一つもなかった場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// WarmStartWarning はウォームスタートで木の本数が増えず、何も学習されなかった場合の警告です。
// エラーではありませんが、呼び出し側の設定ミスである可能性が高いことを示します。
type WarmStartWarning struct {
	Model       string
	NEstimators int
	Existing    int
}

func (w *WarmStartWarning) Error() string {
	return fmt.Sprintf("%s: warm-start fitting without increasing n_estimators (%d, already fitted %d) does not fit new trees",
		w.Model, w.NEstimators, w.Existing)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *WarmStartWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("model", w.Model).
		Int("n_estimators", w.NEstimators).
		Int("existing", w.Existing).
		Str("type", "WarmStartWarning")
}

// NewWarmStartWarning は新しいWarmStartWarningを作成します。
func NewWarmStartWarning(model string, nEstimators, existing int) *WarmStartWarning {
	return &WarmStartWarning{Model: model, NEstimators: nEstimators, Existing: existing}
}

// InfeasibleRatioWarning は要求された不均衡比率を満たすだけの多数派サンプルが存在しない場合の警告です。
// サンプリングは利用可能な件数で打ち切られ、実効比率は要求値と異なります。
type InfeasibleRatioWarning struct {
	RequestedRatio float64
	EffectiveRatio float64
	Requested      int // 要求された多数派サンプル数
	Available      int // 実際に存在する多数派サンプル数
}

func (w *InfeasibleRatioWarning) Error() string {
	return fmt.Sprintf("target imbalance ratio %.4f needs %d majority samples but only %d exist; effective ratio is %.4f",
		w.RequestedRatio, w.Requested, w.Available, w.EffectiveRatio)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *InfeasibleRatioWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("requested_ratio", w.RequestedRatio).
		Float64("effective_ratio", w.EffectiveRatio).
		Int("requested", w.Requested).
		Int("available", w.Available).
		Str("type", "InfeasibleRatioWarning")
}

// NewInfeasibleRatioWarning は新しいInfeasibleRatioWarningを作成します。
func NewInfeasibleRatioWarning(requestedRatio, effectiveRatio float64, requested, available int) *InfeasibleRatioWarning {
	return &InfeasibleRatioWarning{
		RequestedRatio: requestedRatio,
		EffectiveRatio: effectiveRatio,
		Requested:      requested,
		Available:      available,
	}
}

// MissingOOBWarning は一部のサンプルがすべての木のブートストラップに含まれ、
// OOB推定値を持たない場合の警告です。該当する行の決定関数はNaNになります。
type MissingOOBWarning struct {
	Model   string
	Missing int // OOB推定値を持たない行数
	Total   int
}

func (w *MissingOOBWarning) Error() string {
	return fmt.Sprintf("%s: %d of %d inputs do not have OOB scores; this probably means too few trees were used to compute any reliable oob estimates",
		w.Model, w.Missing, w.Total)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *MissingOOBWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("model", w.Model).
		Int("missing", w.Missing).
		Int("total", w.Total).
		Str("type", "MissingOOBWarning")
}

// NewMissingOOBWarning は新しいMissingOOBWarningを作成します。
func NewMissingOOBWarning(model string, missing, total int) *MissingOOBWarning {
	return &MissingOOBWarning{Model: model, Missing: missing, Total: total}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` や `Score` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("pulearn: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("pulearn: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
// 不均衡比率の範囲外、bootstrap=false、ウォームスタートでの木の本数減少などの設定エラーはこの型で返されます。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pulearn: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("pulearn: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError は機械学習モデルに関する一般的なエラーです。
// 外部の学習器（決定木など）の失敗をラップするために使われます。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pulearn: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("pulearn: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	数値計算のエラー型
//
// ===========================================================================

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// 予測確率にNaNやInfが含まれている場合などに検出されます。
type NumericalInstabilityError struct {
	Operation string    // 発生した操作（例: "predict_proba"）
	Values    []float64 // 問題のある値
	Iteration int       // 発生した位置（行番号など）
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("pulearn: numerical instability detected in %s at index %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")
)
