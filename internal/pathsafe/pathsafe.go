// Package pathsafe implements the path-traversal defense every install
// helper and archive extraction routine relies on (spec §4.4): no write
// may land outside the installation prefix (or, during extraction, outside
// the destination directory), even when a symlink inside the tree tries
// to redirect it there.
package pathsafe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrTraversal is wrapped into every rejection so callers can match with errors.Is.
var ErrTraversal = errors.New("path escapes prefix")

// ValidateWithinPrefix canonicalizes path and prefix (resolving symlinks and
// ".."), and fails if the canonical path does not live under the canonical
// prefix. If path does not exist yet, its parent directory is canonicalized
// instead and the final path component is re-appended — this lets helpers
// validate a file they are about to create.
func ValidateWithinPrefix(path, prefix string) (string, error) {
	canonicalPrefix, err := canonicalize(prefix)
	if err != nil {
		return "", fmt.Errorf("canonicalizing prefix %s: %w", prefix, err)
	}

	canonicalPath, err := canonicalizeMaybeMissing(path)
	if err != nil {
		return "", fmt.Errorf("canonicalizing path %s: %w", path, err)
	}

	if !isWithin(canonicalPath, canonicalPrefix) {
		return "", fmt.Errorf("%w: %s is not under %s", ErrTraversal, canonicalPath, canonicalPrefix)
	}

	return canonicalPath, nil
}

// ValidateSymlinkTarget checks that a symlink about to be created at
// linkLocation, pointing at linkTarget (as written in the archive or
// recipe, possibly relative), resolves to somewhere inside destPath.
// Absolute symlink targets are always rejected: they could point anywhere.
func ValidateSymlinkTarget(linkTarget, linkLocation, destPath string) error {
	if filepath.IsAbs(linkTarget) {
		return fmt.Errorf("%w: absolute symlink target %s -> %s", ErrTraversal, linkLocation, linkTarget)
	}

	resolved := filepath.Join(filepath.Dir(linkLocation), linkTarget)
	if !isWithinLexical(resolved, destPath) {
		return fmt.Errorf("%w: symlink %s -> %s resolves to %s, outside %s",
			ErrTraversal, linkLocation, linkTarget, resolved, destPath)
	}
	return nil
}

// canonicalize resolves symlinks and ".." for a path that must already exist.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// canonicalizeMaybeMissing canonicalizes path's parent when path itself
// does not exist yet, re-appending the final component.
func canonicalizeMaybeMissing(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	if _, err := os.Lstat(abs); err == nil {
		return canonicalize(abs)
	} else if !os.IsNotExist(err) {
		return "", err
	}

	parent := filepath.Dir(abs)
	canonicalParent, err := canonicalizeExistingAncestor(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(canonicalParent, filepath.Base(abs)), nil
}

// canonicalizeExistingAncestor walks up from dir until it finds a directory
// that exists, canonicalizes that, and rejoins the missing suffix
// lexically (no further symlink resolution is possible for paths that
// don't exist yet).
func canonicalizeExistingAncestor(dir string) (string, error) {
	var missing []string
	cur := dir
	for {
		if _, err := os.Lstat(cur); err == nil {
			resolved, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", err
			}
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			// Reached the filesystem root without finding an existing ancestor.
			for i := len(missing) - 1; i >= 0; i-- {
				cur = filepath.Join(cur, missing[i])
			}
			return cur, nil
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}

// isWithin reports whether candidate is prefix itself or a descendant of it,
// comparing canonicalized (symlink-resolved) paths.
func isWithin(candidate, prefix string) bool {
	if candidate == prefix {
		return true
	}
	return strings.HasPrefix(candidate, prefix+string(filepath.Separator))
}

// isWithinLexical is isWithin but for paths that may not exist on disk
// (used for symlink-target checks during archive extraction, where the
// target file has not been written yet).
func isWithinLexical(candidate, base string) bool {
	absCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return false
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	cleanCandidate := filepath.Clean(absCandidate)
	cleanBase := filepath.Clean(absBase)
	return cleanCandidate == cleanBase || strings.HasPrefix(cleanCandidate, cleanBase+string(filepath.Separator))
}
