package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"critical": LevelCritical,
		"ERROR":    slog.LevelError,
		"warning":  slog.LevelWarn,
		"warn":     slog.LevelWarn,
		"info":     slog.LevelInfo,
		"":         slog.LevelInfo,
		"debug":    slog.LevelDebug,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_FiltersAndNamesCritical(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "error", FormatJSON)
	require.NoError(t, err)

	logger.Info("dropped")
	Critical(logger, "lock lost", slog.String("path", "/tmp/x"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "CRITICAL", rec["level"])
	assert.Equal(t, "lock lost", rec["msg"])
	assert.Equal(t, "/tmp/x", rec["path"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug", FormatText)
	require.NoError(t, err)
	logger.Debug("hello")
	assert.Contains(t, buf.String(), "level=DEBUG")

	_, err = New(&buf, "info", "xml")
	assert.Error(t, err)
}
