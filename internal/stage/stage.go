// Package stage implements the staging directory the lifecycle executor
// installs into before committing to the real prefix (spec §4.9 steps
// 2-3 and 8): a unique scratch directory under build_dir that a recipe's
// install phase writes to via PREFIX, walked and merged into the real
// prefix file by file once every phase function has succeeded.
package stage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// New creates a uniquely named staging directory under buildDir and
// returns its absolute path. The caller is responsible for removing it
// (via Cleanup) on any failure path.
func New(buildDir string) (string, error) {
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return "", fmt.Errorf("creating build directory %s: %w", buildDir, err)
	}
	dir, err := os.MkdirTemp(buildDir, "stage-")
	if err != nil {
		return "", fmt.Errorf("creating staging directory under %s: %w", buildDir, err)
	}
	return dir, nil
}

// Cleanup removes a staging directory and everything under it. Errors are
// not fatal to the caller's own error path, so Cleanup only returns an
// error to let callers log it; it never masks an in-flight error.
func Cleanup(stageDir string) error {
	if stageDir == "" {
		return nil
	}
	return os.RemoveAll(stageDir)
}

// Commit walks stageDir and merges every regular file, symlink, and
// directory into prefix, creating parent directories as needed. It
// returns the absolute paths of every regular file and symlink it moved,
// in the order they were committed. A per-entry failure stops immediately,
// leaving every already-committed file in place (spec §4.9 step 8: "a
// per-file commit failure leaves already-committed files in place but
// aborts the install").
//
// Each file is renamed into prefix when stageDir and prefix share a
// filesystem; otherwise it is copied through a renameio temp file beside
// the destination and atomically renamed over it. Either way a destination
// is never partially written.
func Commit(stageDir, prefix string) ([]string, error) {
	var committed []string

	err := filepath.Walk(stageDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == stageDir {
			return nil
		}

		rel, err := filepath.Rel(stageDir, path)
		if err != nil {
			return fmt.Errorf("computing relative path for %s: %w", path, err)
		}
		dest := filepath.Join(prefix, rel)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("reading symlink %s: %w", path, err)
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("creating parent directory for %s: %w", dest, err)
			}
			if err := commitSymlink(target, dest); err != nil {
				return fmt.Errorf("committing symlink %s: %w", dest, err)
			}
			committed = append(committed, dest)

		case info.IsDir():
			if err := os.MkdirAll(dest, info.Mode().Perm()); err != nil {
				return fmt.Errorf("creating directory %s: %w", dest, err)
			}

		default:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("creating parent directory for %s: %w", dest, err)
			}
			if err := commitFile(path, dest, info.Mode()); err != nil {
				return fmt.Errorf("committing file %s: %w", dest, err)
			}
			committed = append(committed, dest)
		}
		return nil
	})
	if err != nil {
		return committed, err
	}

	return committed, nil
}

func commitFile(src, dest string, mode os.FileMode) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	t, err := renameio.TempFile("", dest)
	if err != nil {
		return err
	}
	defer t.Cleanup()

	if err := t.Chmod(mode.Perm()); err != nil {
		return err
	}
	if _, err := io.Copy(t, in); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}

func commitSymlink(target, dest string) error {
	tmp := dest + ".tmp-symlink"
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
