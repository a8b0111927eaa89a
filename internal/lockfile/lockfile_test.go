package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireThenClose_RemovesLockFile(t *testing.T) {
	dir := t.TempDir()
	recipePath := filepath.Join(dir, "jq.recipe")
	require.NoError(t, os.WriteFile(recipePath, []byte("name = \"jq\";\n"), 0o644))

	lock, err := Acquire(recipePath)
	require.NoError(t, err)
	require.FileExists(t, lock.Path())

	require.NoError(t, lock.Close())
	require.NoFileExists(t, lock.Path())
}

func TestAcquire_SecondCallerGetsBusy(t *testing.T) {
	dir := t.TempDir()
	recipePath := filepath.Join(dir, "jq.recipe")
	require.NoError(t, os.WriteFile(recipePath, []byte("name = \"jq\";\n"), 0o644))

	first, err := Acquire(recipePath)
	require.NoError(t, err)
	defer first.Close()

	_, err = Acquire(recipePath)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrBusy))
}

func TestAcquire_LockReleasedAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	recipePath := filepath.Join(dir, "jq.recipe")
	require.NoError(t, os.WriteFile(recipePath, []byte("name = \"jq\";\n"), 0o644))

	first, err := Acquire(recipePath)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Acquire(recipePath)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestClose_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	recipePath := filepath.Join(dir, "jq.recipe")
	require.NoError(t, os.WriteFile(recipePath, []byte("name = \"jq\";\n"), 0o644))

	lock, err := Acquire(recipePath)
	require.NoError(t, err)
	require.NoError(t, lock.Close())
	require.NoError(t, lock.Close())
}
