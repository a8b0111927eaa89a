package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("RECIPE_HOME", home)
	t.Setenv("RECIPE_PREFIX", "")
	t.Setenv("RECIPE_BUILD_DIR", "")
	t.Setenv("RECIPE_DIR", "")
	t.Setenv("RECIPE_LOCK_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultPrefix, cfg.Prefix)
	require.Equal(t, filepath.Join(home, "build"), cfg.BuildDir)
	require.Equal(t, filepath.Join(home, "installed"), cfg.InstallDB)
	require.Equal(t, DefaultLockTimeout, cfg.LockTimeout)
}

func TestLoad_EnvOverridesOverlay(t *testing.T) {
	home := t.TempDir()
	t.Setenv("RECIPE_HOME", home)
	overlay := filepath.Join(home, "config.toml")
	require.NoError(t, writeFile(overlay, "prefix = \"/opt/overlay\"\nlock_timeout = \"5s\"\n"))

	t.Setenv("RECIPE_PREFIX", "/opt/env")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/opt/env", cfg.Prefix, "env var must win over overlay")
	require.Equal(t, "5s", cfg.LockTimeout.String())
}

func TestLoad_OverlayAppliesWithoutEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("RECIPE_HOME", home)
	t.Setenv("RECIPE_PREFIX", "")
	overlay := filepath.Join(home, "config.toml")
	require.NoError(t, writeFile(overlay, "prefix = \"/opt/overlay\"\n"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/opt/overlay", cfg.Prefix)
}

func TestLoad_InvalidLockTimeout(t *testing.T) {
	home := t.TempDir()
	t.Setenv("RECIPE_HOME", home)
	t.Setenv("RECIPE_LOCK_TIMEOUT", "not-a-duration")

	_, err := Load()
	require.Error(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
