// Package installdb implements the flat installed-database file (spec
// §6): one package name per line, written atomically whenever an install
// or remove succeeds. It exists alongside the per-recipe state variables
// as a fast membership index; the recipe file itself remains the source
// of truth for everything else.
package installdb

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/renameio"
)

// Load reads every package name recorded in path. A missing file is not
// an error; it reads as an empty database (nothing installed yet).
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading install database %s: %w", path, err)
	}

	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	return names, nil
}

// Contains reports whether pkg is recorded in path's database.
func Contains(path, pkg string) (bool, error) {
	names, err := Load(path)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == pkg {
			return true, nil
		}
	}
	return false, nil
}

// Add records pkg in path's database, rewriting it atomically. Adding a
// package that is already present is a no-op (the file is not rewritten).
func Add(path, pkg string) error {
	names, err := Load(path)
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == pkg {
			return nil
		}
	}
	names = append(names, pkg)
	return write(path, names)
}

// Remove deletes pkg from path's database, rewriting it atomically.
// Removing a package that is not present is a no-op.
func Remove(path, pkg string) error {
	names, err := Load(path)
	if err != nil {
		return err
	}
	kept := names[:0]
	for _, n := range names {
		if n != pkg {
			kept = append(kept, n)
		}
	}
	return write(path, kept)
}

func write(path string, names []string) error {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	var b strings.Builder
	for _, n := range sorted {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return renameio.WriteFile(path, []byte(b.String()), 0o644)
}
