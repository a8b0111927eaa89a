// Package testutil holds small helpers shared by the core's package-level
// tests: writing a recipe file without executing it, building a disposable
// config.Config, and rendering Go values as Starlark literals for recipe
// bodies assembled in test code.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/levitate-pkg/recipe-core/internal/config"
)

// WriteRecipe writes content to <dir>/<name><config.RecipeExtension> and
// returns its path.
func WriteRecipe(dir, name, content string) (string, error) {
	path := filepath.Join(dir, name+config.RecipeExtension)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing recipe %s: %w", name, err)
	}
	return path, nil
}

// MustWriteRecipe is WriteRecipe for *testing.T-based tests, failing the
// test immediately on a write error instead of returning it.
func MustWriteRecipe(t *testing.T, dir, name, content string) string {
	t.Helper()
	path, err := WriteRecipe(dir, name, content)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

// NewConfig builds a config.Config rooted at fresh temp directories, sized
// for internal/lifecycle and internal/graph tests that don't need a shared
// HomeDir or config.toml overlay.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Prefix:    t.TempDir(),
		BuildDir:  t.TempDir(),
		RecipeDir: t.TempDir(),
		InstallDB: filepath.Join(t.TempDir(), "installed"),
	}
}

// StarlarkBool renders a Go bool as the Starlark literal a recipe body uses.
func StarlarkBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// StarlarkStringList renders a Go string slice as a Starlark list literal,
// e.g. for a recipe's deps or installed_files variable.
func StarlarkStringList(items []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q", item)
	}
	b.WriteByte(']')
	return b.String()
}

// FileExists reports whether a file exists at path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
