package pathsafe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateWithinPrefix_ExistingPath(t *testing.T) {
	prefix := t.TempDir()
	sub := filepath.Join(prefix, "bin", "tool")
	require.NoError(t, os.MkdirAll(filepath.Dir(sub), 0o755))
	require.NoError(t, os.WriteFile(sub, []byte("x"), 0o644))

	resolved, err := ValidateWithinPrefix(sub, prefix)
	require.NoError(t, err)
	require.NotEmpty(t, resolved)
}

func TestValidateWithinPrefix_NotYetExisting(t *testing.T) {
	prefix := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "bin"), 0o755))
	target := filepath.Join(prefix, "bin", "newfile")

	_, err := ValidateWithinPrefix(target, prefix)
	require.NoError(t, err)
}

func TestValidateWithinPrefix_DeeplyMissingDirs(t *testing.T) {
	prefix := t.TempDir()
	target := filepath.Join(prefix, "a", "b", "c", "newfile")

	resolved, err := ValidateWithinPrefix(target, prefix)
	require.NoError(t, err)
	require.Contains(t, resolved, filepath.Join("a", "b", "c", "newfile"))
}

func TestValidateWithinPrefix_RejectsEscape(t *testing.T) {
	prefix := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "evil")

	_, err := ValidateWithinPrefix(target, prefix)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTraversal)
}

func TestValidateWithinPrefix_RejectsDotDotEscape(t *testing.T) {
	prefix := t.TempDir()
	target := filepath.Join(prefix, "..", "escaped")

	_, err := ValidateWithinPrefix(target, prefix)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTraversal)
}

func TestValidateWithinPrefix_RejectsSymlinkEscape(t *testing.T) {
	prefix := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(prefix, "link")
	require.NoError(t, os.Symlink(outside, link))

	target := filepath.Join(link, "file")
	_, err := ValidateWithinPrefix(target, prefix)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTraversal)
}

func TestValidateSymlinkTarget_AllowsRelativeWithinDest(t *testing.T) {
	dest := t.TempDir()
	linkLocation := filepath.Join(dest, "sub", "link")
	err := ValidateSymlinkTarget("../other", linkLocation, dest)
	require.NoError(t, err)
}

func TestValidateSymlinkTarget_RejectsAbsolute(t *testing.T) {
	dest := t.TempDir()
	linkLocation := filepath.Join(dest, "link")
	err := ValidateSymlinkTarget("/etc/passwd", linkLocation, dest)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTraversal)
}

func TestValidateSymlinkTarget_RejectsEscapeViaDotDot(t *testing.T) {
	dest := t.TempDir()
	linkLocation := filepath.Join(dest, "link")
	err := ValidateSymlinkTarget("../../etc/passwd", linkLocation, dest)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTraversal)
}
