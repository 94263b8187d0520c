package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("log_level: debug\nregistry:\n  port: 9090\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 9090, cfg.Registry.Port)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("registry:\n  port: 9090\n"), 0o644))
	t.Setenv("MESHCORE_REGISTRY_PORT", "7070")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Registry.Port)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.LogLevel = "warn"

	require.NoError(t, Save(dir, cfg))
	got, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "warn", got.LogLevel)
}
