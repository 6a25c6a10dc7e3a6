package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.Equal(t, time.RFC3339, cfg.TimeFormat)
	assert.True(t, cfg.Caller)
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "not-a-level", Format: "console", Output: "stdout"})
	assert.Error(t, err)
}

func TestNewRejectsInvalidFormat(t *testing.T) {
	_, err := New(&Config{Level: "info", Format: "not-a-format", Output: "stdout"})
	assert.Error(t, err)
}

func TestNewNilConfigUsesDefaults(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestNewJSONFormatProducesValidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.log")
	l, err := New(&Config{Level: "debug", Format: "json", Output: path, TimeFormat: time.RFC3339})
	require.NoError(t, err)
	l.Info().Str("k", "v").Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "v", entry["k"])
}

func TestWithSessionStampsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	sessionLog := WithSession(base, "sess-1", "CP-1")
	sessionLog.Info().Msg("connected")

	out := buf.String()
	assert.True(t, strings.Contains(out, `"session_id":"sess-1"`))
	assert.True(t, strings.Contains(out, `"charge_point_id":"CP-1"`))
}

func TestWithPoolStampsScenario(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	poolLog := WithPool(base, "soak-test")
	poolLog.Info().Msg("batch started")

	assert.True(t, strings.Contains(buf.String(), `"scenario":"soak-test"`))
}
