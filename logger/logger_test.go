package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"marketfeed/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// go test -v --run TestInvalidLevel
func TestInvalidLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

// go test -v --run TestJSONOutput
func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := build(config.LogConfig{Level: "info", Format: "json", Environment: "prod"}, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Named("session").Info("connected", zap.String("url", "wss://x"))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "connected", entry["msg"])
	assert.Equal(t, "session", entry["logger"])
	assert.Equal(t, "prod", entry["env"])
	assert.Equal(t, "wss://x", entry["url"])
}

// go test -v --run TestFileOutput
func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "feed.log")
	log, err := build(config.LogConfig{Level: "debug", Format: "console", OutputFile: path}, &bytes.Buffer{})
	require.NoError(t, err)

	log.Debug("written")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"written"`)
}
