package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Output: &buf}).With("component", "scheduler")

	l.Debug("hidden")
	l.Warn("guardrail override", "proposed", "generate_images")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "generate_images", entry["proposed"])
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Format: "TEXT", Level: "debug", Output: &buf}).Debug("hello", "k", 1)
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=1")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	assert.NotPanics(t, func() { l.With("a", 1).Info("x") })
}
