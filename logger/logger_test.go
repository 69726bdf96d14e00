package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func captureJSON(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, initWith(Options{Level: level, Format: "json"}, zapcore.AddSync(buf)))
	t.Cleanup(ResetForTest)
	return buf
}

func TestErrorIncludesFieldsAndError(t *testing.T) {
	buf := captureJSON(t, "info")

	Error("persist failed", errors.New("boom"), FieldKV("message_id", "m-1"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "persist failed", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "m-1", entry["message_id"])
	assert.Contains(t, entry, "ts")
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	buf := captureJSON(t, "info")

	Debug("hidden")
	Info("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := initWith(Options{Level: "loud"}, zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestFallbackLoggerWithoutInit(t *testing.T) {
	ResetForTest()
	assert.NotNil(t, L())
}
