package helpers

import (
	"fmt"
	"os"
	"path/filepath"

	"go.starlark.net/starlark"

	"github.com/levitate-pkg/recipe-core/internal/pathsafe"
)

func (h *helperSet) mkdir(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	path, err := unpackArgs1(b.Name(), args, kwargs, "path")
	if err != nil {
		return nil, err
	}

	target, err := stageTarget(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", path, err)
	}
	return starlark.None, nil
}

func (h *helperSet) rm(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	path, err := unpackArgs1(b.Name(), args, kwargs, "path")
	if err != nil {
		return nil, err
	}

	joined := filepath.Join(ctx.Prefix, path)
	target, err := pathsafe.ValidateWithinPrefix(joined, ctx.Prefix)
	if err != nil {
		return nil, err
	}
	if err := os.RemoveAll(target); err != nil {
		return nil, fmt.Errorf("rm %s: %w", path, err)
	}
	return starlark.None, nil
}

func (h *helperSet) mv(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	var src, dst string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "src", &src, "dst", &dst); err != nil {
		return nil, err
	}

	srcJoined := filepath.Join(ctx.Prefix, src)
	srcCanon, err := pathsafe.ValidateWithinPrefix(srcJoined, ctx.Prefix)
	if err != nil {
		return nil, err
	}
	dstCanon, err := stageTarget(ctx, dst)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(srcCanon, dstCanon); err != nil {
		return nil, fmt.Errorf("mv %s %s: %w", src, dst, err)
	}
	return starlark.None, nil
}

func (h *helperSet) ln(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	var target, linkName string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "target", &target, "link_name", &linkName); err != nil {
		return nil, err
	}

	linkPath, err := stageTarget(ctx, linkName)
	if err != nil {
		return nil, err
	}
	if err := pathsafe.ValidateSymlinkTarget(target, linkPath, ctx.Prefix); err != nil {
		return nil, err
	}
	if err := os.Symlink(target, linkPath); err != nil {
		return nil, fmt.Errorf("ln %s %s: %w", target, linkName, err)
	}
	ctx.AddInstalledFile(linkPath)
	return starlark.None, nil
}

func (h *helperSet) chmod(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	var path string
	var mode starlark.Int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "mode", &mode); err != nil {
		return nil, err
	}

	joined := filepath.Join(ctx.Prefix, path)
	target, err := pathsafe.ValidateWithinPrefix(joined, ctx.Prefix)
	if err != nil {
		return nil, err
	}
	modeVal, ok := mode.Int64()
	if !ok {
		return nil, fmt.Errorf("chmod: mode out of range")
	}
	if err := os.Chmod(target, os.FileMode(modeVal)); err != nil {
		return nil, fmt.Errorf("chmod %s: %w", path, err)
	}
	return starlark.None, nil
}

func (h *helperSet) readFile(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	path, err := unpackArgs1(b.Name(), args, kwargs, "path")
	if err != nil {
		return nil, err
	}

	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(ctx.CurrentDir, path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read_file %s: %w", path, err)
	}
	return starlark.String(data), nil
}

func (h *helperSet) writeFile(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	var path string
	var content starlark.String
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "content", &content); err != nil {
		return nil, err
	}

	target, err := stageTarget(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write_file %s: %w", path, err)
	}
	ctx.AddInstalledFile(target)
	return starlark.None, nil
}
