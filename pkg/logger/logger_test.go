package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	var out []map[string]interface{}
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]interface{}
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestNewLoggerWithLevel(t *testing.T) {
	l := NewLoggerWithLevel("debug")
	assert.NotNil(t, l)
	assert.IsType(t, &zerologLogger{}, l)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn")

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "warn message", lines[0]["message"])
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "error message", lines[1]["message"])
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "verbose")

	l.Debug("hidden")
	l.Info("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
}

func TestDisabledLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "disabled")
	l.Error("nothing")
	assert.Empty(t, buf.String())
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(&buf, "info")

	child := base.WithFields(map[string]interface{}{
		"item_id":     "item-1",
		"campaign_id": "camp-1",
	}).WithField("attempts", 2)
	child.Info("claimed")
	base.Info("plain")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "item-1", lines[0]["item_id"])
	assert.Equal(t, "camp-1", lines[0]["campaign_id"])
	assert.Equal(t, float64(2), lines[0]["attempts"])

	// the parent logger is not mutated by WithFields
	_, ok := lines[1]["item_id"]
	assert.False(t, ok)
}
