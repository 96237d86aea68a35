package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level Level) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(Options{Output: buf, Level: level, Format: FormatJSON}), buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LevelWarn)

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error", Err(errors.New("boom")))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "warn", lines[0]["message"])
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestLogger_WithFieldsAndRedaction(t *testing.T) {
	l, buf := newBufferLogger(LevelDebug)

	l.With(Component("http"), UserID("u-1")).Info("request",
		String("token", "eyJhbGciOi..."),
		Int("status", 200),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "http", lines[0]["component"])
	assert.Equal(t, "u-1", lines[0]["user_id"])
	assert.Equal(t, "[REDACTED]", lines[0]["token"])
	assert.EqualValues(t, 200, lines[0]["status"])
}

func TestLogger_SetLevel(t *testing.T) {
	l, buf := newBufferLogger(LevelError)
	child := l.With(String("k", "v"))

	child.Info("hidden")
	l.SetLevel(LevelInfo)
	child.Info("shown")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
	assert.True(t, l.Enabled(LevelInfo))
}

func TestLogger_Context(t *testing.T) {
	l, _ := newBufferLogger(LevelInfo)
	ctx := WithContext(context.Background(), l)

	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
