package helpers

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"
	"go.starlark.net/starlark"

	"github.com/levitate-pkg/recipe-core/internal/execctx"
	"github.com/levitate-pkg/recipe-core/internal/pathsafe"
)

// extract(archive, format = "auto", dest = ".", strip_dirs = 0) unpacks an
// archive from build_dir into a prefix-relative destination, recording every
// regular file and symlink it writes.
func (h *helperSet) extract(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}

	var archive, format, dest string
	var stripDirs int
	format = "auto"
	dest = "."
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"archive", &archive, "format?", &format, "dest?", &dest, "strip_dirs?", &stripDirs); err != nil {
		return nil, err
	}

	archivePath := archive
	if !filepath.IsAbs(archivePath) {
		archivePath = filepath.Join(ctx.BuildDir, archive)
	}

	if format == "auto" {
		format = detectFormat(archive)
	}

	destPath, err := stageTarget(ctx, dest)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destPath, 0o755); err != nil {
		return nil, fmt.Errorf("extract: creating destination %s: %w", dest, err)
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("extract: opening %s: %w", archive, err)
	}
	defer file.Close()

	switch format {
	case "tar.gz", "tgz":
		gzr, err := pgzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("extract: gzip reader: %w", err)
		}
		defer gzr.Close()
		err = extractTarReader(ctx, tar.NewReader(gzr), destPath, stripDirs)
		return starlark.None, err

	case "tar.xz", "txz":
		xzr, err := xz.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("extract: xz reader: %w", err)
		}
		err = extractTarReader(ctx, tar.NewReader(xzr), destPath, stripDirs)
		return starlark.None, err

	case "tar.bz2", "tbz2", "tbz":
		bzr := bzip2.NewReader(file)
		err = extractTarReader(ctx, tar.NewReader(bzr), destPath, stripDirs)
		return starlark.None, err

	case "tar.zst", "tzst":
		zr, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("extract: zstd reader: %w", err)
		}
		defer zr.Close()
		err = extractTarReader(ctx, tar.NewReader(zr), destPath, stripDirs)
		return starlark.None, err

	case "tar.lz", "tlz":
		lr, err := lzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("extract: lzip reader: %w", err)
		}
		err = extractTarReader(ctx, tar.NewReader(lr), destPath, stripDirs)
		return starlark.None, err

	case "tar":
		err = extractTarReader(ctx, tar.NewReader(file), destPath, stripDirs)
		return starlark.None, err

	case "zip":
		err = extractZip(ctx, archivePath, destPath, stripDirs)
		return starlark.None, err

	default:
		return nil, fmt.Errorf("extract: unsupported archive format %q", format)
	}
}

func detectFormat(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return "tar.gz"
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return "tar.xz"
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"), strings.HasSuffix(lower, ".tbz"):
		return "tar.bz2"
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return "tar.zst"
	case strings.HasSuffix(lower, ".tar.lz"), strings.HasSuffix(lower, ".tlz"):
		return "tar.lz"
	case strings.HasSuffix(lower, ".tar"):
		return "tar"
	case strings.HasSuffix(lower, ".zip"):
		return "zip"
	default:
		return "unknown"
	}
}

func extractTarReader(ctx *execctx.Context, tr *tar.Reader, destPath string, stripDirs int) error {
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar header: %w", err)
		}

		relativePath, skip := stripPrefix(header.Name, stripDirs)
		if skip {
			continue
		}

		target := filepath.Join(destPath, relativePath)
		canonTarget, err := pathsafe.ValidateWithinPrefix(target, destPath)
		if err != nil {
			return fmt.Errorf("archive entry %s: %w", header.Name, err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(canonTarget, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", relativePath, err)
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(canonTarget), 0o755); err != nil {
				return fmt.Errorf("creating parent of %s: %w", relativePath, err)
			}
			f, err := os.OpenFile(canonTarget, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("creating %s: %w", relativePath, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("writing %s: %w", relativePath, err)
			}
			f.Close()
			ctx.AddInstalledFile(canonTarget)

		case tar.TypeSymlink:
			if err := pathsafe.ValidateSymlinkTarget(header.Linkname, target, destPath); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(canonTarget), 0o755); err != nil {
				return fmt.Errorf("creating parent of %s: %w", relativePath, err)
			}
			if err := atomicSymlink(header.Linkname, canonTarget); err != nil {
				return fmt.Errorf("creating symlink %s: %w", relativePath, err)
			}
			ctx.AddInstalledFile(canonTarget)
		}
	}
	return nil
}

func extractZip(ctx *execctx.Context, archivePath, destPath string, stripDirs int) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		relativePath, skip := stripPrefix(f.Name, stripDirs)
		if skip {
			continue
		}

		target := filepath.Join(destPath, relativePath)
		canonTarget, err := pathsafe.ValidateWithinPrefix(target, destPath)
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", f.Name, err)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(canonTarget, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", relativePath, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(canonTarget), 0o755); err != nil {
			return fmt.Errorf("creating parent of %s: %w", relativePath, err)
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening zip entry %s: %w", relativePath, err)
		}
		out, err := os.OpenFile(canonTarget, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
		if err != nil {
			rc.Close()
			return fmt.Errorf("creating %s: %w", relativePath, err)
		}
		if _, err := io.Copy(out, rc); err != nil {
			out.Close()
			rc.Close()
			return fmt.Errorf("writing %s: %w", relativePath, err)
		}
		out.Close()
		rc.Close()
		ctx.AddInstalledFile(canonTarget)
	}
	return nil
}

// stripPrefix drops a leading "./" and the first stripDirs path components
// from an archive entry's recorded name, reporting skip=true when the entry
// has fewer components than stripDirs (it is entirely stripped away).
func stripPrefix(name string, stripDirs int) (relative string, skip bool) {
	cleanPath := strings.TrimPrefix(name, "./")
	parts := strings.Split(cleanPath, "/")
	if len(parts) <= stripDirs {
		return "", true
	}
	parts = parts[stripDirs:]
	return filepath.Join(parts...), false
}

// atomicSymlink creates a symlink via a temp-name-then-rename so a partially
// created link is never visible at its final path.
func atomicSymlink(target, linkPath string) error {
	tmpLink := linkPath + ".tmp"
	os.Remove(tmpLink)
	if err := os.Symlink(target, tmpLink); err != nil {
		return err
	}
	if err := os.Rename(tmpLink, linkPath); err != nil {
		os.Remove(tmpLink)
		return err
	}
	return nil
}
