package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestSetupWriterHonoursLevel(t *testing.T) {
	logger = nil
	once = *new(sync.Once)

	var buf bytes.Buffer
	SetupWriter(&buf, "warn")
	require.NotNil(t, logger)

	Info("dropped")
	assert.Zero(t, buf.Len())

	Warn("kept")
	out := decodeLine(t, &buf)
	assert.Equal(t, "kept", out["msg"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARN "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestWithComponent(t *testing.T) {
	buf := captureLogger(t)

	WithComponent("dispatch").Info("hello")

	out := decodeLine(t, buf)
	assert.Equal(t, "dispatch", out["component"])
	assert.Equal(t, "hello", out["msg"])
}

func TestWithRun(t *testing.T) {
	buf := captureLogger(t)

	WithRun("run-123").Info("run msg")

	assert.Equal(t, "run-123", decodeLine(t, buf)["run_id"])
}

func TestWithController(t *testing.T) {
	buf := captureLogger(t)

	WithController("ursim:30004").Info("connected")

	assert.Equal(t, "ursim:30004", decodeLine(t, buf)["controller"])
}
