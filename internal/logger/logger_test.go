package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, false, "json")

	l.Debug("hidden")
	l.Info("batch finished", "persisted", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "batch finished", entry["msg"])
	assert.EqualValues(t, 3, entry["persisted"])
}

func TestNewLoggerDebugText(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, true, "text")

	l.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}
