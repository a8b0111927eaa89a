// Package helpers implements the fixed set of install-helper operations a
// recipe script can call (spec §4.5), registered as Starlark builtins.
// Every helper resolves its execution context via internal/execctx. The
// install and filesystem helpers write exclusively inside that context's
// Prefix (the staging directory during install, per spec §4.6) and
// validate every path they write with internal/pathsafe first. The
// acquire helpers (download, git_clone, torrent) write under the
// context's BuildDir instead, without a pathsafe check.
package helpers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.starlark.net/starlark"

	"github.com/levitate-pkg/recipe-core/internal/execctx"
	"github.com/levitate-pkg/recipe-core/internal/log"
	"github.com/levitate-pkg/recipe-core/internal/pathsafe"
)

// Register returns the full set of install-helper builtins, ready to be
// passed to internal/script.Predeclared. logger is used for diagnostic
// messages; a nil logger falls back to internal/log's no-op default.
func Register(logger log.Logger) starlark.StringDict {
	if logger == nil {
		logger = log.Default()
	}
	h := &helperSet{logger: logger}

	return starlark.StringDict{
		"install_bin":    starlark.NewBuiltin("install_bin", h.installBin),
		"install_lib":    starlark.NewBuiltin("install_lib", h.installLib),
		"install_man":    starlark.NewBuiltin("install_man", h.installMan),
		"install_to_dir": starlark.NewBuiltin("install_to_dir", h.installToDir),
		"rpm_install":    starlark.NewBuiltin("rpm_install", h.rpmInstall),

		"mkdir":      starlark.NewBuiltin("mkdir", h.mkdir),
		"rm":         starlark.NewBuiltin("rm", h.rm),
		"mv":         starlark.NewBuiltin("mv", h.mv),
		"ln":         starlark.NewBuiltin("ln", h.ln),
		"chmod":      starlark.NewBuiltin("chmod", h.chmod),
		"read_file":  starlark.NewBuiltin("read_file", h.readFile),
		"write_file": starlark.NewBuiltin("write_file", h.writeFile),

		"download":              starlark.NewBuiltin("download", h.download),
		"http_get":              starlark.NewBuiltin("http_get", h.httpGet),
		"verify_sha256":         starlark.NewBuiltin("verify_sha256", h.verifySHA256),
		"verify_sha512":         starlark.NewBuiltin("verify_sha512", h.verifySHA512),
		"verify_blake3":         starlark.NewBuiltin("verify_blake3", h.verifyBlake3),
		"verify_signature":      starlark.NewBuiltin("verify_signature", h.verifySignature),
		"git_clone":             starlark.NewBuiltin("git_clone", h.gitClone),
		"torrent":               starlark.NewBuiltin("torrent", h.torrentFetch),
		"github_latest_release": starlark.NewBuiltin("github_latest_release", h.githubLatestRelease),

		"extract": starlark.NewBuiltin("extract", h.extract),
	}
}

type helperSet struct {
	logger log.Logger
}

// ChecksumMismatchError is the concrete error type for the "Checksum
// mismatch" error kind (spec §7): surfaced with both hashes so the
// operator can tell a corrupt download from a tampered one at a glance.
type ChecksumMismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// contextFrom fetches the active execution context, translating a missing
// context into the Starlark-friendly error every builtin returns.
func contextFrom(thread *starlark.Thread) (*execctx.Context, error) {
	ctx, err := execctx.From(thread)
	if err != nil {
		return nil, fmt.Errorf("helper called with no active execution context: %w", err)
	}
	return ctx, nil
}

// stageTarget validates that relPath, joined under ctx.Prefix, does not
// escape it, then creates its parent directory and returns the canonical
// absolute path to write to. Validation happens before any directory is
// created so a traversal attempt never touches the filesystem.
func stageTarget(ctx *execctx.Context, relPath string) (string, error) {
	joined := filepath.Join(ctx.Prefix, relPath)
	canonical, err := pathsafe.ValidateWithinPrefix(joined, ctx.Prefix)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(canonical), 0o755); err != nil {
		return "", fmt.Errorf("creating parent directory for %s: %w", relPath, err)
	}
	return canonical, nil
}

// resolveGlob expands pattern relative to ctx.CurrentDir, erroring if it
// matches nothing — spec §4.5: "Empty glob matches are a helper-level
// error; the recipe author intended something."
func resolveGlob(ctx *execctx.Context, pattern string) ([]string, error) {
	full := pattern
	if !filepath.IsAbs(pattern) {
		full = filepath.Join(ctx.CurrentDir, pattern)
	}
	matches, err := filepath.Glob(full)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("glob %q matched no files", pattern)
	}
	return matches, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return nil
}

func unpackArgs1(fnName string, args starlark.Tuple, kwargs []starlark.Tuple, name string) (string, error) {
	var s starlark.String
	if err := starlark.UnpackArgs(fnName, args, kwargs, name, &s); err != nil {
		return "", err
	}
	return string(s), nil
}
