package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestLoggerLevels(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelInfo)

	testLogger.Debug("debug message", "key1", "value1")
	testLogger.Info("info message", OperationKey, OperationFit)
	testLogger.Warn("warning message", TreesKey, 10)
	testLogger.Error("error message", fmt.Errorf("boom"), TreeIndexKey, 3)

	require.NotEmpty(t, buffer.String())
	assert.False(t, testLogger.ContainsMessage("debug message"))
	assert.True(t, testLogger.ContainsMessage("info message"))
	assert.True(t, testLogger.ContainsMessage("warning message"))
	assert.True(t, testLogger.ContainsField(OperationKey, OperationFit))
	assert.True(t, testLogger.ContainsField(TreesKey, 10.0))
	assert.True(t, testLogger.ContainsField(ErrAttrKey, "boom"))
	assert.True(t, testLogger.ContainsField(TreeIndexKey, 3.0))
	assert.Equal(t, 1, testLogger.CountLevel(LevelWarn))

	assert.False(t, testLogger.Enabled(context.Background(), LevelDebug))
	assert.True(t, testLogger.Enabled(context.Background(), LevelError))
}

func TestTestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	child := testLogger.With(ModelNameKey, "SubsampleForest", ComponentKey, "ensemble")
	child.Info("contextual message", RatioKey, 0.5)

	assert.True(t, testLogger.ContainsField(ModelNameKey, "SubsampleForest"))
	assert.True(t, testLogger.ContainsField(ComponentKey, "ensemble"))
	assert.True(t, testLogger.ContainsField(RatioKey, 0.5))
}

func TestTestLoggerConcurrent(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(tree int) {
			defer wg.Done()
			testLogger.With(TreeIndexKey, tree).Debug("tree fitted")
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 16)
}

func TestTestLoggerProvider(t *testing.T) {
	provider, buffer := NewTestLoggerProvider(LevelDebug)

	provider.GetLogger().Info("provider test message")
	provider.GetLoggerWithName("scoring").Info("named message")

	output := buffer.String()
	assert.Contains(t, output, "provider test message")
	assert.True(t, provider.Logger().ContainsField(ComponentKey, "scoring"))

	provider.SetLevel(LevelError)
	provider.GetLogger().Warn("dropped")
	assert.NotContains(t, buffer.String(), "dropped")
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo).With(ModelNameKey, "SubsampleForest")

	logger.Debug("hidden")
	logger.Info("fit finished", TreesKey, 5, RatioKey, 0.5)
	logger.Error("fit failed", errors.New("tree 2 failed"), TreeIndexKey, 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "fit finished", first["message"])
	assert.Equal(t, "info", first["level"])
	assert.Equal(t, "SubsampleForest", first[ModelNameKey])
	assert.Equal(t, 5.0, first[TreesKey])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "tree 2 failed", second["error"])
	assert.Equal(t, 2.0, second[TreeIndexKey])

	assert.False(t, logger.Enabled(context.Background(), LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), LevelWarn))
}

func TestProviderRoutesWarnings(t *testing.T) {
	provider, _ := NewTestLoggerProvider(LevelDebug)
	previous := Provider()
	SetProvider(provider)
	defer SetProvider(previous)

	errors.Warn(errors.NewWarmStartWarning("SubsampleForest", 4, 4))

	assert.True(t, provider.Logger().ContainsField(ComponentKey, "warnings"))
	assert.True(t, provider.Logger().ContainsMessage("does not fit new trees"))
}

func TestToLogLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error"} {
		_, err := ToLogLevel(name)
		assert.NoError(t, err, name)
	}
	_, err := ToLogLevel("verbose")
	assert.Error(t, err)
}

func TestErrFmtHandlerPassesRecords(t *testing.T) {
	var buf bytes.Buffer
	handler := WrapByErrFmtHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler)

	logger.Error("fit failed", ErrAttr(errors.New("tree failed")))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fit failed", entry["msg"])
	assert.Equal(t, "tree failed", entry[ErrAttrKey])
}
