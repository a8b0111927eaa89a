package helpers

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/lukechampine/blake3"
	"go.starlark.net/starlark"
)

func (h *helperSet) verifySHA256(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return h.verifyDigest(thread, b, args, kwargs, sha256.New())
}

func (h *helperSet) verifySHA512(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return h.verifyDigest(thread, b, args, kwargs, sha512.New())
}

func (h *helperSet) verifyBlake3(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return h.verifyDigest(thread, b, args, kwargs, blake3.New(32, nil))
}

// verifyDigest hashes the file at path with digest and compares it against
// the hex-encoded expected checksum, returning a *ChecksumMismatchError
// (spec §7) rather than a bare error when the hashes disagree.
func (h *helperSet) verifyDigest(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, digest hash.Hash) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	var path, expected string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "expected", &expected); err != nil {
		return nil, err
	}

	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(ctx.BuildDir, path)
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	defer f.Close()

	if _, err := io.Copy(digest, f); err != nil {
		return nil, fmt.Errorf("%s: reading %s: %w", b.Name(), path, err)
	}

	actual := hex.EncodeToString(digest.Sum(nil))
	if actual != expected {
		return nil, &ChecksumMismatchError{Path: path, Expected: expected, Actual: actual}
	}
	return starlark.None, nil
}

// verifySignature(path, signature_path, public_key) checks an OpenPGP
// detached signature against path's contents using the given armored
// public key. public_key may itself be a path to an armored key file or
// the armored key text directly.
func (h *helperSet) verifySignature(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	var path, sigPath, publicKey string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"path", &path, "signature_path", &sigPath, "public_key", &publicKey); err != nil {
		return nil, err
	}

	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(ctx.BuildDir, p)
	}

	data, err := os.ReadFile(resolve(path))
	if err != nil {
		return nil, fmt.Errorf("verify_signature: reading %s: %w", path, err)
	}
	sigData, err := os.ReadFile(resolve(sigPath))
	if err != nil {
		return nil, fmt.Errorf("verify_signature: reading signature %s: %w", sigPath, err)
	}

	armoredKey := publicKey
	if keyData, err := os.ReadFile(resolve(publicKey)); err == nil {
		armoredKey = string(keyData)
	}

	keyRing, err := crypto.NewKeyFromArmored(armoredKey)
	if err != nil {
		return nil, fmt.Errorf("verify_signature: parsing public key: %w", err)
	}
	pgpKeyRing, err := crypto.NewKeyRing(keyRing)
	if err != nil {
		return nil, fmt.Errorf("verify_signature: building keyring: %w", err)
	}

	message := crypto.NewPlainMessage(data)
	signature, err := crypto.NewPGPSignatureFromArmored(string(sigData))
	if err != nil {
		signature = crypto.NewPGPSignature(sigData)
	}
	if err := pgpKeyRing.VerifyDetached(message, signature, 0); err != nil {
		return nil, fmt.Errorf("verify_signature: %s: signature verification failed: %w", path, err)
	}
	return starlark.None, nil
}
