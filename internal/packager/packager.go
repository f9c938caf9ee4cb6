// Package packager turns a directory of collected files into a
// content-addressed zip archive with an info.json sidecar, optionally signed.
package packager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/artexin/internal/hash/md5"
)

// InfoFile is the name of the metadata sidecar inside each archive.
const InfoFile = "info.json"

// Options controls a single packaging run.
type Options struct {
	// KeepSrc keeps the staged directory next to the archive.
	KeepSrc bool
	Sign    *SignParams
}

// Packager produces archives.
type Packager struct {
	signer Signer
	logger *zap.Logger
}

// New creates a Packager. A nil signer uses OpenPGPSigner. The signer is
// always wrapped in a VerifiedSigner.
func New(signer Signer, logger *zap.Logger) *Packager {
	if signer == nil {
		signer = OpenPGPSigner{}
	}
	if _, ok := signer.(VerifiedSigner); !ok {
		signer = VerifiedSigner{Signer: signer}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Packager{signer: signer, logger: logger}
}

// Checksum returns the archive name for an identifier.
func Checksum(id string) string {
	return md5.Sum(id)
}

// Package copies srcDir to outDir/<md5(meta.URL)>, writes info.json, zips it
// to outDir/<md5(meta.URL)>.zip and signs it when opts.Sign is complete.
// A signing failure is reported in Result.Error; I/O failures are returned
// as errors after partial output is removed. Concurrent runs for the same
// URL and outDir are serialized.
func (p *Packager) Package(ctx context.Context, srcDir string, meta Metadata, outDir string, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	checksum := Checksum(meta.URL)
	if err := os.MkdirAll(outDir, dirPerm); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	release := outputLocks.lock(outputKey(outDir, checksum))
	defer release()

	dest := filepath.Join(outDir, checksum)
	if err := os.RemoveAll(dest); err != nil {
		return Result{}, fmt.Errorf("clear %s: %w", dest, err)
	}
	if err := copyDir(srcDir, dest); err != nil {
		_ = os.RemoveAll(dest)
		return Result{}, fmt.Errorf("copy %s: %w", srcDir, err)
	}
	res, err := p.archive(ctx, dest, checksum, meta, outDir, opts)
	if err != nil || !opts.KeepSrc {
		_ = os.RemoveAll(dest)
	}
	return res, err
}

// PackageStandalone archives a directory that already holds finished
// content. The archive is named after md5(meta.URL), which is the origin the
// content was obtained from.
func (p *Packager) PackageStandalone(ctx context.Context, dir string, meta Metadata, outDir string, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	checksum := Checksum(meta.URL)
	if err := os.MkdirAll(outDir, dirPerm); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	release := outputLocks.lock(outputKey(outDir, checksum))
	defer release()

	tmp, err := os.MkdirTemp("", "artexin-standalone-")
	if err != nil {
		return Result{}, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	dest := filepath.Join(tmp, checksum)
	if err := copyDir(dir, dest); err != nil {
		return Result{}, fmt.Errorf("copy %s: %w", dir, err)
	}
	return p.archive(ctx, dest, checksum, meta, outDir, opts)
}

func (p *Packager) archive(ctx context.Context, dest, checksum string, meta Metadata, outDir string, opts Options) (Result, error) {
	logger := p.logger.With(zap.String("url", meta.URL), zap.String("hash", checksum))
	if err := writeInfo(dest, meta); err != nil {
		return Result{}, err
	}
	zipPath := filepath.Join(outDir, checksum+".zip")
	if err := zipDir(zipPath, dest); err != nil {
		_ = os.Remove(zipPath)
		return Result{}, err
	}
	if err := verifyZip(zipPath); err != nil {
		_ = os.Remove(zipPath)
		return Result{}, err
	}

	if opts.Sign.Complete() {
		sigPath, err := p.signer.Sign(ctx, zipPath, opts.Sign.Keyring, opts.Sign.Key, opts.Sign.Passphrase, outDir)
		_ = os.Remove(zipPath)
		if err != nil {
			logger.Error("signing failed", zap.Error(err))
			return Result{Metadata: meta, Error: fmt.Sprintf("Error signing '%s'", zipPath)}, nil
		}
		zipPath = sigPath
	}

	info, err := os.Stat(zipPath)
	if err != nil {
		return Result{}, fmt.Errorf("stat archive: %w", err)
	}
	logger.Debug("archive written", zap.String("path", zipPath), zap.Int64("size", info.Size()))
	return Result{
		Metadata: meta,
		Zipfile:  zipPath,
		Size:     info.Size(),
		Hash:     checksum,
	}, nil
}
