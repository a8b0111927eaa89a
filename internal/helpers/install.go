package helpers

import (
	"fmt"
	"os"
	"path/filepath"

	"go.starlark.net/starlark"

	"github.com/levitate-pkg/recipe-core/internal/execctx"
)

// installBin copies pattern's glob matches (resolved against the context's
// CurrentDir) into <prefix>/bin, marking every installed file executable.
func (h *helperSet) installBin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return h.installInto(thread, b, args, kwargs, "bin", 0o755)
}

// installLib copies pattern's glob matches into <prefix>/lib, non-executable.
func (h *helperSet) installLib(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return h.installInto(thread, b, args, kwargs, "lib", 0o644)
}

// installMan copies pattern's glob matches into <prefix>/share/man/man<section>,
// inferring the section number from each matched file's own extension (jq.1 -> man1).
func (h *helperSet) installMan(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	pattern, err := unpackArgs1(b.Name(), args, kwargs, "pattern")
	if err != nil {
		return nil, err
	}

	matches, err := resolveGlob(ctx, pattern)
	if err != nil {
		return nil, err
	}

	for _, src := range matches {
		section := filepath.Ext(src)
		if len(section) < 2 {
			return nil, fmt.Errorf("install_man: %s has no section suffix (expected e.g. jq.1)", src)
		}
		section = section[1:]
		rel := filepath.Join("share", "man", "man"+section, filepath.Base(src))
		if err := h.copyMatchToStage(ctx, src, rel, 0o644); err != nil {
			return nil, err
		}
	}
	return starlark.None, nil
}

// installToDir copies pattern's glob matches into an arbitrary prefix-relative
// directory, preserving each matched file's own permission bits.
func (h *helperSet) installToDir(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	var pattern, destDir string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "pattern", &pattern, "dest_dir", &destDir); err != nil {
		return nil, err
	}

	matches, err := resolveGlob(ctx, pattern)
	if err != nil {
		return nil, err
	}

	for _, src := range matches {
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("install_to_dir: %w", err)
		}
		rel := filepath.Join(destDir, filepath.Base(src))
		if err := h.copyMatchToStage(ctx, src, rel, info.Mode().Perm()); err != nil {
			return nil, err
		}
	}
	return starlark.None, nil
}

func (h *helperSet) installInto(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, subdir string, mode os.FileMode) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	pattern, err := unpackArgs1(b.Name(), args, kwargs, "pattern")
	if err != nil {
		return nil, err
	}

	matches, err := resolveGlob(ctx, pattern)
	if err != nil {
		return nil, err
	}

	for _, src := range matches {
		rel := filepath.Join(subdir, filepath.Base(src))
		if err := h.copyMatchToStage(ctx, src, rel, mode); err != nil {
			return nil, err
		}
	}
	return starlark.None, nil
}

func (h *helperSet) copyMatchToStage(ctx *execctx.Context, src, rel string, mode os.FileMode) error {
	dst, err := stageTarget(ctx, rel)
	if err != nil {
		return err
	}
	if err := copyFile(src, dst, mode); err != nil {
		return err
	}
	ctx.AddInstalledFile(dst)
	return nil
}
