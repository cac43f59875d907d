// Package log provides a structured logging interface for pulearn operations.
//
// The Logger interface is slog-compatible so that backends can be swapped
// without touching the callers. The default backend is zerolog (see
// provider.go); SetupLogger installs a log/slog JSON handler for processes
// that prefer the standard library default logger.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("ensemble").With(
//	    log.ModelNameKey, "SubsampleForest",
//	)
//	logger.Info("Training started",
//	    log.OperationKey, log.OperationFit,
//	    log.SamplesKey, 1000,
//	    log.TreesKey, 100,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. With returns a child logger that
// carries the given fields on every record.
type Logger interface {
	// Debug logs detailed diagnostic information such as per-tree sample plans.
	Debug(msg string, fields ...any)

	// Info logs operational information about fit and score calls.
	Info(msg string, fields ...any)

	// Warn logs conditions that do not abort the operation, for example a
	// warm-start fit that added no trees or a capped majority draw.
	Warn(msg string, fields ...any)

	// Error logs error conditions. If the first field is an error value it is
	// recorded under the "error" key.
	//
	//	logger.Error("Tree fit failed", err, log.TreeIndexKey, 3)
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates and configures loggers.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers created by this provider.
	SetLevel(level Level)
}
