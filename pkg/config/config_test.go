package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:3003", cfg.Server.Addr())
	require.Equal(t, 3600, cfg.Relay.IdleWindowSeconds)
	require.Equal(t, 0, cfg.Relay.EvictIntervalSeconds)
	require.Equal(t, "info", cfg.Log.Level)
	require.Empty(t, cfg.LLM.APIKey)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  host: 127.0.0.1
  port: "9000"
llm:
  base_url: http://localhost:11434/v1
  api_key: test-key
relay:
  idle_window_seconds: 120
  evict_interval_seconds: 30
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	require.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
	require.Equal(t, "test-key", cfg.LLM.APIKey)
	require.Equal(t, 120, cfg.Relay.IdleWindowSeconds)
	require.Equal(t, 30, cfg.Relay.EvictIntervalSeconds)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("AICHAT_SERVER_PORT", "4444")
	t.Setenv("AICHAT_LLM_API_KEY", "env-key")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "4444", cfg.Server.Port)
	require.Equal(t, "env-key", cfg.LLM.APIKey)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [not a map"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}
