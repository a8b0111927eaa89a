// Package config provides the ambient configuration for the recipe core:
// where the installation prefix, build directory, and recipe directory
// live, with environment-variable overrides and validated defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// EnvPrefix overrides the installation prefix (default /usr/local).
	EnvPrefix = "RECIPE_PREFIX"

	// EnvBuildDir overrides the scratch directory staging dirs are created under.
	EnvBuildDir = "RECIPE_BUILD_DIR"

	// EnvRecipeDir overrides the directory scanned for recipe files.
	EnvRecipeDir = "RECIPE_DIR"

	// EnvHome overrides the core's home directory (installed-database, config.toml).
	EnvHome = "RECIPE_HOME"

	// EnvLockTimeout configures how long a caller retries a busy lock before
	// surfacing contention to the user. The lock acquisition itself is
	// non-blocking (spec §4.7); this only bounds caller-side retry.
	EnvLockTimeout = "RECIPE_LOCK_TIMEOUT"

	// DefaultPrefix is the conventional installation root.
	DefaultPrefix = "/usr/local"

	// DefaultLockTimeout disables retry by default: the first contention is surfaced.
	DefaultLockTimeout = 0 * time.Second

	// RecipeExtension is the fixed file extension recipes are enumerated by.
	RecipeExtension = ".recipe"

	// LockSuffix is appended to a recipe's canonical path to name its lock file.
	LockSuffix = ".lock"
)

// Config holds the resolved ambient configuration for one invocation of the core.
type Config struct {
	Prefix    string // installation root; recipes never see this path directly during install
	BuildDir  string // scratch directory; staging dirs are created under here
	RecipeDir string // directory scanned by internal/graph.BuildGraph
	HomeDir   string // holds the installed-database and config.toml

	InstallDB  string // HomeDir/installed
	ConfigFile string // HomeDir/config.toml

	LockTimeout time.Duration
}

// fileOverlay is the optional on-disk overlay read from ConfigFile.
type fileOverlay struct {
	Prefix      string `toml:"prefix"`
	BuildDir    string `toml:"build_dir"`
	RecipeDir   string `toml:"recipe_dir"`
	LockTimeout string `toml:"lock_timeout"`
}

// Load resolves configuration from environment variables, then a config.toml
// overlay if present, then compiled-in defaults — environment variables win.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	homeDir := firstNonEmpty(os.Getenv(EnvHome), filepath.Join(home, ".recipe-core"))

	cfg := &Config{
		Prefix:      firstNonEmpty(os.Getenv(EnvPrefix), DefaultPrefix),
		BuildDir:    firstNonEmpty(os.Getenv(EnvBuildDir), filepath.Join(homeDir, "build")),
		RecipeDir:   firstNonEmpty(os.Getenv(EnvRecipeDir), filepath.Join(homeDir, "recipes")),
		HomeDir:     homeDir,
		LockTimeout: DefaultLockTimeout,
	}

	if err := cfg.applyOverlay(); err != nil {
		return nil, err
	}

	if v := os.Getenv(EnvLockTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvLockTimeout, err)
		}
		cfg.LockTimeout = d
	}

	cfg.InstallDB = filepath.Join(cfg.HomeDir, "installed")
	cfg.ConfigFile = filepath.Join(cfg.HomeDir, "config.toml")

	return cfg, nil
}

// applyOverlay reads HomeDir/config.toml if it exists and fills in any field
// not already set by an environment variable.
func (c *Config) applyOverlay() error {
	path := filepath.Join(c.HomeDir, "config.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config overlay: %w", err)
	}

	var overlay fileOverlay
	if _, err := toml.Decode(string(data), &overlay); err != nil {
		return fmt.Errorf("parsing config overlay %s: %w", path, err)
	}

	if os.Getenv(EnvPrefix) == "" && overlay.Prefix != "" {
		c.Prefix = overlay.Prefix
	}
	if os.Getenv(EnvBuildDir) == "" && overlay.BuildDir != "" {
		c.BuildDir = overlay.BuildDir
	}
	if os.Getenv(EnvRecipeDir) == "" && overlay.RecipeDir != "" {
		c.RecipeDir = overlay.RecipeDir
	}
	if os.Getenv(EnvLockTimeout) == "" && overlay.LockTimeout != "" {
		d, err := time.ParseDuration(overlay.LockTimeout)
		if err != nil {
			return fmt.Errorf("config overlay: invalid lock_timeout: %w", err)
		}
		c.LockTimeout = d
	}

	return nil
}

// EnsureDirectories creates BuildDir, RecipeDir, and HomeDir if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.HomeDir, c.BuildDir, c.RecipeDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
