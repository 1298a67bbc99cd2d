package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Options{Level: "warn"})
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("Skipping a log message", zap.String("reason", "garbage line"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "Skipping a log message")
	assert.Contains(t, out, `"reason": "garbage line"`)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Options{Format: "json"})
	require.NoError(t, err)

	log.Info("phase finished", zap.Int("rows", 3))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "phase finished", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.EqualValues(t, 3, entry["rows"])
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Options{Level: "loud"})
	require.Error(t, err)

	_, err = New(&bytes.Buffer{}, Options{Format: "xml"})
	require.Error(t, err)
}
