package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/pevans/feedsnap/failure"
)

// TestNew_EventShape verifies JSON events use the ts/level/message keys
func TestNew_EventShape(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{}, &buf)
	require.NoError(t, err)

	logger.Event(zapcore.WarnLevel, failure.FeedParseError, "feed parse failed",
		AdapterID("rss"), Data(map[string]any{"targetId": "rss:golang"}))

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))

	assert.Contains(t, event, "ts")
	assert.Equal(t, "warn", event["level"])
	assert.Equal(t, "feed parse failed", event["message"])
	assert.Equal(t, "rss", event["adapterId"])
	assert.Equal(t, "FEED_PARSE_ERROR", event["code"])
	assert.Equal(t, map[string]any{"targetId": "rss:golang"}, event["data"])
}

// TestNew_LevelFilter verifies entries below the configured level are dropped
func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Error("shown")
	assert.Contains(t, buf.String(), "shown")
}

// TestNew_InvalidLevel verifies unknown levels are rejected
func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}

// TestTestLogger_WithCode verifies coded entries can be filtered
func TestTestLogger_WithCode(t *testing.T) {
	logger := NewTestLogger()

	logger.Event(zapcore.WarnLevel, failure.NoItems, "empty feed")
	logger.Info("unrelated")

	assert.Len(t, logger.WithCode("NO_ITEMS"), 1)
	logger.AssertLogged(t, zapcore.WarnLevel, "empty feed")
}
