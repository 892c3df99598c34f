package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/relaygate/internal/config"
	"github.com/rickgao/relaygate/internal/gateway"
)

func TestManagerConfig(t *testing.T) {
	gc := config.GatewayConfig{
		URL:                  "wss://gateway.example.com",
		Version:              10,
		Encoding:             "json",
		Intents:              513,
		Compress:             true,
		LargeThreshold:       100,
		ShardID:              1,
		ShardCount:           4,
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    time.Minute,
		MaxReconnectAttempts: 5,
		WriteTimeout:         5 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		BufferSize:           256,
		CommandLimit:         120,
		CommandWindow:        time.Minute,
	}

	mc := managerConfig(gc, "abc")
	assert.Equal(t, "wss://gateway.example.com", mc.URL)
	assert.Equal(t, "abc", mc.Token)
	assert.Equal(t, gateway.IntentGuilds|gateway.IntentGuildMessages, mc.Intents)
	assert.True(t, mc.Compress)
	assert.Equal(t, 1, mc.ShardID)
	assert.Equal(t, 4, mc.ShardCount)
	assert.Equal(t, 5, mc.MaxReconnectAttempts)
	assert.Equal(t, 120, mc.CommandLimit)
	assert.Nil(t, mc.Checkpoint)
}

func TestManagerConfig_UnlimitedReconnects(t *testing.T) {
	mc := managerConfig(config.GatewayConfig{MaxReconnectAttempts: -1}, "abc")
	assert.Equal(t, 0, mc.MaxReconnectAttempts)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"key":"value"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelError, parseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, loadEnvFile(""))
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("RELAYGATE_TEST_TOKEN=from-dotenv\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("RELAYGATE_TEST_TOKEN") })

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-dotenv", os.Getenv("RELAYGATE_TEST_TOKEN"))
}
