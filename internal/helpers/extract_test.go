package helpers

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/levitate-pkg/recipe-core/internal/execctx"
)

func writeTarGz(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestExtractTarGzWritesFilesUnderDest(t *testing.T) {
	buildDir := t.TempDir()
	archivePath := filepath.Join(buildDir, "pkg.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"pkg-1.0/bin/tool": "binary-content",
		"pkg-1.0/README":   "docs",
	})

	prefix := t.TempDir()
	ctx := &execctx.Context{Prefix: prefix, BuildDir: buildDir, CurrentDir: buildDir}
	thread := attachedThread(t, ctx)

	h := &helperSet{}
	fn := starlark.NewBuiltin("extract", h.extract)
	_, err := callBuiltin(t, thread, fn, map[string]starlark.Value{
		"archive": starlark.String("pkg.tar.gz"),
		"dest":    starlark.String("."),
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(prefix, "pkg-1.0", "bin", "tool"))
	require.NoError(t, err)
	require.Equal(t, "binary-content", string(data))
}

func TestExtractStripDirsRemovesLeadingComponents(t *testing.T) {
	buildDir := t.TempDir()
	archivePath := filepath.Join(buildDir, "pkg.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"pkg-1.0/bin/tool": "binary-content",
	})

	prefix := t.TempDir()
	ctx := &execctx.Context{Prefix: prefix, BuildDir: buildDir, CurrentDir: buildDir}
	thread := attachedThread(t, ctx)

	h := &helperSet{}
	fn := starlark.NewBuiltin("extract", h.extract)
	_, err := callBuiltin(t, thread, fn, map[string]starlark.Value{
		"archive":    starlark.String("pkg.tar.gz"),
		"dest":       starlark.String("."),
		"strip_dirs": starlark.MakeInt(1),
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(prefix, "bin", "tool"))
	require.NoError(t, err)
}

func TestExtractRejectsPathTraversalEntry(t *testing.T) {
	buildDir := t.TempDir()
	archivePath := filepath.Join(buildDir, "evil.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"../../etc/passwd": "pwned",
	})

	prefix := t.TempDir()
	ctx := &execctx.Context{Prefix: prefix, BuildDir: buildDir, CurrentDir: buildDir}
	thread := attachedThread(t, ctx)

	h := &helperSet{}
	fn := starlark.NewBuiltin("extract", h.extract)
	_, err := callBuiltin(t, thread, fn, map[string]starlark.Value{
		"archive": starlark.String("evil.tar.gz"),
		"dest":    starlark.String("."),
	})
	require.Error(t, err)
}

func TestDetectFormatFromFilename(t *testing.T) {
	require.Equal(t, "tar.gz", detectFormat("foo-1.0.tar.gz"))
	require.Equal(t, "tar.xz", detectFormat("foo-1.0.txz"))
	require.Equal(t, "zip", detectFormat("foo-1.0.zip"))
	require.Equal(t, "unknown", detectFormat("foo-1.0.rar"))
}

func TestStripPrefixSkipsShorterEntries(t *testing.T) {
	rel, skip := stripPrefix("pkg-1.0", 1)
	require.True(t, skip)
	require.Empty(t, rel)

	rel, skip = stripPrefix("pkg-1.0/bin/tool", 1)
	require.False(t, skip)
	require.Equal(t, filepath.Join("bin", "tool"), rel)
}
