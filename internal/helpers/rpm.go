package helpers

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cavaliercoder/go-cpio"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"go.starlark.net/starlark"

	"github.com/levitate-pkg/recipe-core/internal/execctx"
	"github.com/levitate-pkg/recipe-core/internal/pathsafe"
)

// rpmLeadSize is the fixed size of an RPM package's lead section (rpm(5)).
const rpmLeadSize = 96

// rpmHeaderMagic marks the start of both the signature header and the
// main header sections that follow the lead.
var rpmHeaderMagic = []byte{0x8e, 0xad, 0xe8, 0x01}

// rpmInstall unpacks every match of pattern (e.g. "*.rpm") in build_dir
// directly into the prefix, skipping the package's lead and header sections and feeding the
// remaining cpio payload straight into a cpio reader — no shelled-out
// rpm2cpio or system rpm binary is involved.
func (h *helperSet) rpmInstall(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	pattern, err := unpackArgs1(b.Name(), args, kwargs, "pattern")
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(ctx.BuildDir, pattern)
	}

	matches, err := resolveGlob(ctx, pattern)
	if err != nil {
		return nil, err
	}

	for _, rpmPath := range matches {
		if err := installOneRPM(ctx, rpmPath); err != nil {
			return nil, fmt.Errorf("rpm_install: %s: %w", filepath.Base(rpmPath), err)
		}
	}
	return starlark.None, nil
}

func installOneRPM(ctx *execctx.Context, rpmPath string) error {
	f, err := os.Open(rpmPath)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if err := skipRPMLeadAndHeaders(br); err != nil {
		return fmt.Errorf("parsing rpm headers: %w", err)
	}

	payload, err := decompressPayload(br)
	if err != nil {
		return fmt.Errorf("decompressing payload: %w", err)
	}

	return extractCPIO(ctx, payload)
}

// skipRPMLeadAndHeaders advances r past the fixed-size lead and the
// signature and main header sections, leaving r positioned at the start of
// the (still compressed) cpio payload.
func skipRPMLeadAndHeaders(r *bufio.Reader) error {
	if _, err := io.CopyN(io.Discard, r, rpmLeadSize); err != nil {
		return fmt.Errorf("reading lead: %w", err)
	}

	// Signature header is 8-byte aligned; the main header immediately follows.
	sigSize, err := skipRPMHeaderSection(r)
	if err != nil {
		return fmt.Errorf("reading signature header: %w", err)
	}
	if pad := (8 - sigSize%8) % 8; pad > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
			return fmt.Errorf("reading signature padding: %w", err)
		}
	}

	if _, err := skipRPMHeaderSection(r); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	return nil
}

// skipRPMHeaderSection reads one RPM header-structure section (magic +
// index count + data size + index entries + data blob) and discards it,
// returning the number of bytes consumed after the magic and version word.
func skipRPMHeaderSection(r *bufio.Reader) (int64, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return 0, err
	}
	if !bytes.Equal(magic[:], rpmHeaderMagic) {
		return 0, fmt.Errorf("unexpected header magic %x", magic)
	}
	// Reserved word (4 bytes), currently unused.
	if _, err := io.CopyN(io.Discard, r, 4); err != nil {
		return 0, err
	}

	var indexCount, dataSize uint32
	if err := binary.Read(r, binary.BigEndian, &indexCount); err != nil {
		return 0, err
	}
	if err := binary.Read(r, binary.BigEndian, &dataSize); err != nil {
		return 0, err
	}

	indexBytes := int64(indexCount) * 16
	if _, err := io.CopyN(io.Discard, r, indexBytes); err != nil {
		return 0, fmt.Errorf("reading index entries: %w", err)
	}
	if _, err := io.CopyN(io.Discard, r, int64(dataSize)); err != nil {
		return 0, fmt.Errorf("reading header data: %w", err)
	}

	return 8 + indexBytes + int64(dataSize), nil
}

// decompressPayload sniffs the compression used on the cpio payload that
// follows an RPM's header sections and returns a reader over the
// decompressed cpio stream.
func decompressPayload(r *bufio.Reader) (io.Reader, error) {
	peek, err := r.Peek(6)
	if err != nil && err != io.EOF {
		return nil, err
	}

	switch {
	case len(peek) >= 2 && peek[0] == 0x1f && peek[1] == 0x8b:
		return pgzip.NewReader(r)
	case len(peek) >= 6 && bytes.Equal(peek[:6], []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		return xz.NewReader(r)
	case len(peek) >= 4 && bytes.Equal(peek[:4], []byte{0x28, 0xb5, 0x2f, 0xfd}):
		return zstd.NewReader(r)
	default:
		return nil, fmt.Errorf("unrecognized payload compression (magic %x)", peek)
	}
}

func extractCPIO(ctx *execctx.Context, payload io.Reader) error {
	cr := cpio.NewReader(payload)
	for {
		hdr, err := cr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading cpio entry: %w", err)
		}
		if hdr.Name == "TRAILER!!!" {
			return nil
		}

		rel := hdr.Name
		target, err := stageTarget(ctx, rel)
		if err != nil {
			return err
		}

		switch {
		case hdr.Mode&cpio.ModeSymlink != 0:
			linkTarget := make([]byte, hdr.Size)
			if _, err := io.ReadFull(cr, linkTarget); err != nil {
				return fmt.Errorf("reading symlink target for %s: %w", rel, err)
			}
			if err := pathsafe.ValidateSymlinkTarget(string(linkTarget), target, ctx.Prefix); err != nil {
				return err
			}
			if err := os.Symlink(string(linkTarget), target); err != nil {
				return fmt.Errorf("creating symlink %s: %w", rel, err)
			}
			ctx.AddInstalledFile(target)

		case hdr.Mode&cpio.ModeDir != 0:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", rel, err)
			}

		default:
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode.Perm()))
			if err != nil {
				return fmt.Errorf("creating %s: %w", rel, err)
			}
			if _, err := io.Copy(out, cr); err != nil {
				out.Close()
				return fmt.Errorf("writing %s: %w", rel, err)
			}
			out.Close()
			ctx.AddInstalledFile(target)
		}
	}
}
