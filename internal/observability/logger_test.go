// internal/observability/logger_test.go
package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	json "github.com/json-iterator/go"

	"github.com/zerofrost11/cortex-client/internal/config"
)

func TestInitialize(t *testing.T) {

	t.Run("console format produces single line output", func(t *testing.T) {
		ResetForTest()
		buf := &zaptest.Buffer{}

		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
		}
		Initialize(cfg, buf)
		GetLogger().Info("hello from the console encoder")

		lines := buf.Lines()
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "INFO")
		assert.Contains(t, lines[0], "TestService.")
		assert.Contains(t, lines[0], "hello from the console encoder")
	})

	t.Run("json format produces structured entries", func(t *testing.T) {
		ResetForTest()
		buf := &zaptest.Buffer{}

		cfg := config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		}
		Initialize(cfg, buf)
		GetLogger().Warn("structured message", zap.String("key", "value"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "structured message", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		ResetForTest()
		buf := &zaptest.Buffer{}

		Initialize(config.LoggerConfig{Level: "chatty", Format: "json"}, buf)
		GetLogger().Debug("dropped")
		GetLogger().Info("kept")

		require.Len(t, buf.Lines(), 1)
		assert.Contains(t, buf.Lines()[0], "kept")
	})

	t.Run("writes to a log file when configured", func(t *testing.T) {
		ResetForTest()
		logFile := filepath.Join(t.TempDir(), "cortex.log")

		cfg := config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1,
		}
		Initialize(cfg, &zaptest.Buffer{})
		GetLogger().Error("this should land in the file")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "this should land in the file")
	})

	t.Run("initializes exactly once", func(t *testing.T) {
		ResetForTest()
		buf := &zaptest.Buffer{}

		Initialize(config.LoggerConfig{Level: "info", ServiceName: "First"}, buf)
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, &zaptest.Buffer{})
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("probe")
		require.Len(t, buf.Lines(), 1)
		assert.Contains(t, buf.Lines()[0], "First")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("returns a fallback before initialization", func(t *testing.T) {
		ResetForTest()
		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("returns the global logger after initialization", func(t *testing.T) {
		ResetForTest()
		Initialize(config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"}, &zaptest.Buffer{})
		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}
