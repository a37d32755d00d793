package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "gateway.db", cfg.Database.Path)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, 15, cfg.Loader.MaxLayer2)
	require.Equal(t, 8, cfg.RPC.MaxConcurrentCalls)
}

func TestLoadEnvOverridesDBPath(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/override.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "/tmp/override.db", cfg.Database.Path)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: noisy\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
