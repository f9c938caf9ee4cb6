package handler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/artexin/internal/clock/system"
	"github.com/JakeFAU/artexin/internal/extract"
	"github.com/JakeFAU/artexin/internal/htmlutil"
	"github.com/JakeFAU/artexin/internal/images"
	"github.com/JakeFAU/artexin/internal/jobs"
	"github.com/JakeFAU/artexin/internal/packager"
	"github.com/JakeFAU/artexin/internal/urlutil"
)

var (
	// ErrNoDocument is returned when a standalone directory holds no HTML file.
	ErrNoDocument = errors.New("no html document found")
	// ErrManyDocuments is returned when a standalone directory holds more than one HTML file.
	ErrManyDocuments = errors.New("more than one html document found")
)

// StandaloneConfig wires a Standalone handler.
type StandaloneConfig struct {
	Packager     *packager.Packager
	OutDir       string
	Sign         *packager.SignParams
	Mirror       jobs.ArtifactStore
	MirrorPrefix string
	Clock        jobs.Clock
}

// Standalone handles STANDALONE jobs: each target is a local directory with
// already extracted content obtained from the job's origin.
type Standalone struct {
	packager *packager.Packager
	outDir   string
	sign     *packager.SignParams
	clock    jobs.Clock
	recorder recorder
	logger   *zap.Logger
}

// NewStandalone builds a Standalone handler.
func NewStandalone(cfg StandaloneConfig, logger *zap.Logger) *Standalone {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if cfg.Packager == nil {
		cfg.Packager = packager.New(nil, logger)
	}
	logger = logger.Named("standalone")
	return &Standalone{
		packager: cfg.Packager,
		outDir:   cfg.OutDir,
		sign:     cfg.Sign,
		clock:    cfg.Clock,
		recorder: recorder{
			mirror: cfg.Mirror,
			prefix: cfg.MirrorPrefix,
			clock:  cfg.Clock,
			logger: logger,
		},
		logger: logger,
	}
}

// IsValidTarget reports whether target exists on disk.
func (h *Standalone) IsValidTarget(_ context.Context, target string) bool {
	_, err := os.Stat(target)
	return err == nil
}

// HandleTask packages the directory named by the task target.
func (h *Standalone) HandleTask(ctx context.Context, task jobs.Task, opts jobs.Options) (packager.Result, error) {
	if opts.Standalone == nil || opts.Standalone.Origin == "" {
		return packager.Result{}, fmt.Errorf("%w: standalone origin is required", jobs.ErrInvalidOptions)
	}
	origin := opts.Standalone.Origin

	title, err := DocumentTitle(task.Target)
	if err != nil {
		return packager.Result{}, err
	}
	count, err := CountImages(task.Target)
	if err != nil {
		return packager.Result{}, err
	}
	meta := packager.Metadata{
		URL:       origin,
		Domain:    urlutil.Domain(origin),
		Timestamp: h.clock.Now().UTC(),
		Title:     title,
		Images:    count,
	}
	return h.packager.PackageStandalone(ctx, task.Target, meta, h.outDir, packager.Options{Sign: h.sign})
}

// HandleTaskResult records result on task.
func (h *Standalone) HandleTaskResult(ctx context.Context, task *jobs.Task, result packager.Result, _ jobs.Options) error {
	return h.recorder.record(ctx, task, result)
}

// DocumentTitle returns the title of the only .htm or .html file directly
// inside dir.
func DocumentTitle(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dir, err)
	}
	var doc string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".htm" && ext != ".html") {
			continue
		}
		if doc != "" {
			return "", fmt.Errorf("%w in %s", ErrManyDocuments, dir)
		}
		doc = filepath.Join(dir, e.Name())
	}
	if doc == "" {
		return "", fmt.Errorf("%w in %s", ErrNoDocument, dir)
	}

	raw, err := os.ReadFile(doc) // #nosec G304 -- operator supplied content directory
	if err != nil {
		return "", fmt.Errorf("read %s: %w", doc, err)
	}
	parsed, err := htmlutil.Parse(string(raw))
	if err != nil {
		return "", err
	}
	return extract.Title(parsed), nil
}

// CountImages counts the files under dir whose content sniffs as an image.
func CountImages(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(p) // #nosec G304 -- walking the operator supplied directory
		if err != nil {
			return err
		}
		if images.IsImage(data) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count images in %s: %w", dir, err)
	}
	return count, nil
}
