package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrSigningFailed is returned when a signer does not produce a signature file.
var ErrSigningFailed = errors.New("signing failed")

// SigningError records which archive could not be signed.
type SigningError struct {
	Path string
	Err  error
}

func (e *SigningError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrSigningFailed, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", ErrSigningFailed, e.Path, e.Err)
}

// Is matches ErrSigningFailed.
func (e *SigningError) Is(target error) bool {
	return target == ErrSigningFailed
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// SignParams names the key used to sign archives.
type SignParams struct {
	Keyring    string
	Key        string
	Passphrase string
}

// Complete reports whether every signing parameter is present.
func (p *SignParams) Complete() bool {
	return p != nil && p.Keyring != "" && p.Key != "" && p.Passphrase != ""
}

// Signer writes a signed copy of the file at path into outDir and returns its path.
type Signer interface {
	Sign(ctx context.Context, path, keyring, key, passphrase, outDir string) (string, error)
}

// SignaturePath returns where a signer stores the signature for path.
func SignaturePath(path, outDir string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(outDir, name+".sig")
}

// VerifiedSigner checks that the wrapped signer actually produced a
// non-empty signature file.
type VerifiedSigner struct {
	Signer Signer
}

// Sign implements Signer.
func (v VerifiedSigner) Sign(ctx context.Context, path, keyring, key, passphrase, outDir string) (string, error) {
	if v.Signer == nil {
		return "", &SigningError{Path: path, Err: errors.New("no signer configured")}
	}
	sigPath, err := v.Signer.Sign(ctx, path, keyring, key, passphrase, outDir)
	if err != nil {
		return "", &SigningError{Path: path, Err: err}
	}
	if sigPath == "" {
		sigPath = SignaturePath(path, outDir)
	}
	info, err := os.Stat(sigPath)
	if err != nil {
		return "", &SigningError{Path: path, Err: err}
	}
	if info.Size() == 0 {
		_ = os.Remove(sigPath)
		return "", &SigningError{Path: path, Err: errors.New("empty signature")}
	}
	return sigPath, nil
}
