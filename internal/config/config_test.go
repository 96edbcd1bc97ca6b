package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
listen_addr = "127.0.0.1:9000"
ping_interval_ms = 5000
pong_timeout_ms = 2000
history_size = 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	require.Equal(t, 5*time.Second, cfg.PingInterval)
	require.Equal(t, 2*time.Second, cfg.PongTimeout)
	require.Equal(t, 8, cfg.HistorySize)

	// Undefined keys keep their defaults.
	require.Equal(t, Default().DBPath, cfg.DBPath)
	require.Equal(t, Default().AuthTimeout, cfg.AuthTimeout)
	require.Equal(t, Default().MinBatchWindow, cfg.MinBatchWindow)
}

func TestLoadRejectsInvalidHeartbeat(t *testing.T) {
	path := writeConfig(t, `ping_interval_ms = 0`)

	_, err := Load(path)
	require.ErrorContains(t, err, "heartbeat intervals")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
