package logging

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

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatJSON)
	logger.SetOutput(&buf)

	logger.WithFields(map[string]interface{}{
		"resource": "trades",
		"sequence": 3,
	}).WithError(errors.New("connection refused")).Warn("fetch failed")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry.Level)
	assert.Equal(t, "fetch failed", entry.Message)
	assert.Equal(t, "trades", entry.Fields["resource"])
	assert.Equal(t, "connection refused", entry.Fields["error"])
	assert.Empty(t, entry.Caller)
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelWarn, FormatText)
	logger.SetOutput(&buf)

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Error("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "error: shown")
	assert.Contains(t, out, "caller=")
}

func TestLogger_DerivedLoggersShareSink(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger(LevelInfo, FormatText)
	child := root.WithComponent("scheduler")

	root.SetOutput(&buf)
	child.Info("tick")

	assert.Contains(t, buf.String(), "component=scheduler")

	// Parent fields are not modified by derivation
	assert.Empty(t, root.fields)
}

func TestLogger_TextFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatText)
	logger.SetOutput(&buf)

	logger.WithFields(map[string]interface{}{"b": 2, "a": 1}).Info("msg")

	line := buf.String()
	assert.Less(t, strings.Index(line, "a=1"), strings.Index(line, "b=2"))
}

func TestFromContext(t *testing.T) {
	logger := NewNopLogger().WithField("session", "abc")
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLogLevel("nonsense"))
	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatJSON, ParseLogFormat("xml"))
}
