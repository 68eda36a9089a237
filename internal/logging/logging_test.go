package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_QuietIsJSONAtWarn(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(Options{Output: zapcore.AddSync(&buf)})
	require.NoError(t, err)

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("root dropped", zap.String("root", "/missing"))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "root dropped", entry["msg"])
	assert.Equal(t, "/missing", entry["root"])
}

func TestNew_VerboseLogsDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(Options{Verbose: true, Output: zapcore.AddSync(&buf)})
	require.NoError(t, err)

	logger.Debug("stage transition", zap.String("to", "walking"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "stage transition")
	assert.Contains(t, out, `"to": "walking"`)
}

func TestNew_Default(t *testing.T) {
	t.Parallel()

	for _, verbose := range []bool{false, true} {
		logger, err := New(Options{Verbose: verbose})
		require.NoError(t, err)
		assert.Equal(t, verbose, logger.Core().Enabled(zapcore.DebugLevel))
		assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	}
}
