package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, slog.LevelInfo, "json", "watcher")

	l.WithRunID("abc123").
		WithExperiment("exp1").
		WithError(errors.New("boom")).
		WithDuration(1500 * time.Millisecond).
		Info("tick")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tick", entry["msg"])
	assert.Equal(t, "watcher", entry["component"])
	assert.Equal(t, "abc123", entry["run_id"])
	assert.Equal(t, "exp1", entry["experiment"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, float64(1500), entry["duration_ms"])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, slog.LevelWarn, "text", "watcher")

	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithErrorNil(t *testing.T) {
	l := Discard()
	assert.Same(t, l, l.WithError(nil))
}
