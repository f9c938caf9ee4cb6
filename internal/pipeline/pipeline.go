// Package pipeline runs the fetch, preprocess, extract, strip-links, image
// and packaging steps that turn one URL into an archive.
package pipeline

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/artexin/internal/clock/system"
	"github.com/JakeFAU/artexin/internal/extract"
	"github.com/JakeFAU/artexin/internal/fetcher"
	"github.com/JakeFAU/artexin/internal/htmlutil"
	"github.com/JakeFAU/artexin/internal/images"
	"github.com/JakeFAU/artexin/internal/jobs"
	"github.com/JakeFAU/artexin/internal/metrics"
	"github.com/JakeFAU/artexin/internal/packager"
	"github.com/JakeFAU/artexin/internal/preprocess"
	"github.com/JakeFAU/artexin/internal/urlutil"
)

var tracer = otel.Tracer("github.com/JakeFAU/artexin/internal/pipeline")

// IndexFile is the name of the collected document inside an archive.
const IndexFile = "index.html"

// Config holds filesystem and signing settings.
type Config struct {
	// TempDir is where per-target working directories are created; empty
	// uses the system default.
	TempDir string
	OutDir  string
	KeepSrc bool
	Sign    *packager.SignParams
}

// Deps are the collaborators a Collector drives.
type Deps struct {
	Page          fetcher.Fetcher
	Rendered      fetcher.Fetcher
	Extractor     extract.Extractor
	Resolver      *images.Resolver
	Packager      *packager.Packager
	Preprocessors *preprocess.Table
	Clock         jobs.Clock
}

// Collector collects single targets.
type Collector struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// NewCollector builds a Collector. Missing optional collaborators fall back
// to defaults: the readability extractor, the built-in preprocessor table
// and the system clock.
func NewCollector(deps Deps, cfg Config, logger *zap.Logger) *Collector {
	if deps.Extractor == nil {
		deps.Extractor = extract.NewReadability()
	}
	if deps.Preprocessors == nil {
		deps.Preprocessors = preprocess.DefaultTable()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Packager == nil {
		deps.Packager = packager.New(nil, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{deps: deps, cfg: cfg, logger: logger}
}

// Collect retrieves target and packages it. Failures are reported in the
// result's Error field along with whatever metadata was known at that point.
func (c *Collector) Collect(ctx context.Context, target string, opts jobs.FetchableOptions, extra map[string]string) packager.Result {
	ctx, span := tracer.Start(ctx, "pipeline.collect", trace.WithAttributes(
		attribute.String("url", target),
		attribute.Bool("javascript", opts.Javascript),
		attribute.Bool("extract", opts.Extract),
	))
	defer span.End()

	start := time.Now()
	meta := packager.Metadata{
		URL:    target,
		Domain: urlutil.Domain(target),
		Extra:  maps.Clone(extra),
	}
	logger := c.logger.With(zap.String("url", target))

	res, err := c.collect(ctx, &meta, opts)
	if err != nil {
		meta.Timestamp = c.deps.Clock.Now().UTC()
		res = packager.Result{Metadata: meta, Error: err.Error()}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	outcome := "success"
	if res.Failed() {
		outcome = "error"
		logger.Warn("collect failed", zap.String("error", res.Error))
	} else {
		logger.Info("collected",
			zap.String("title", res.Title),
			zap.Int("images", res.Images),
			zap.String("zipfile", res.Zipfile),
			zap.Int64("size", res.Size),
		)
	}
	metrics.ObserveCollect(outcome, time.Since(start))
	return res
}

func (c *Collector) collect(ctx context.Context, meta *packager.Metadata, opts jobs.FetchableOptions) (packager.Result, error) {
	resp, err := c.fetch(ctx, meta.URL, opts.Javascript)
	if err != nil {
		return packager.Result{}, err
	}
	meta.Timestamp = c.deps.Clock.Now().UTC()

	doc, err := preprocess.Apply(string(resp.Body), c.deps.Preprocessors.For(meta.URL))
	if err != nil {
		return packager.Result{}, err
	}

	article := extract.Raw(doc)
	if opts.Extract {
		article, err = c.deps.Extractor.Extract(ctx, doc, meta.URL)
		if err != nil {
			return packager.Result{}, fmt.Errorf("extract: %w", err)
		}
	}
	meta.Title = strings.TrimSpace(article.Title)

	doc, err = htmlutil.StripLinks(article.HTML)
	if err != nil {
		return packager.Result{}, err
	}

	workDir, err := os.MkdirTemp(c.cfg.TempDir, "artexin-")
	if err != nil {
		return packager.Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	base := meta.URL
	if !resp.Rendered && resp.URL != "" {
		base = resp.URL
	}
	doc, stored, err := c.deps.Resolver.Resolve(ctx, doc, base, workDir)
	if err != nil {
		return packager.Result{}, err
	}
	meta.Images = len(stored)

	if err := os.WriteFile(filepath.Join(workDir, IndexFile), []byte(doc), 0o600); err != nil {
		return packager.Result{}, fmt.Errorf("write %s: %w", IndexFile, err)
	}

	res, err := c.deps.Packager.Package(ctx, workDir, *meta, c.cfg.OutDir, packager.Options{
		KeepSrc: c.cfg.KeepSrc,
		Sign:    c.cfg.Sign,
	})
	if err != nil {
		return packager.Result{}, fmt.Errorf("package: %w", err)
	}
	return res, nil
}

func (c *Collector) fetch(ctx context.Context, target string, javascript bool) (fetcher.Response, error) {
	f, req := c.deps.Page, fetcher.Request{URL: target}
	if javascript {
		f, req = c.deps.Rendered, fetcher.Request{URL: urlutil.PercentEscape(target)}
	}
	if f == nil {
		return fetcher.Response{}, fmt.Errorf("fetch %s: no fetcher configured", target)
	}
	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("fetch %s: %w", target, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fetcher.Response{}, fmt.Errorf("fetch %s: %w", target, &fetcher.StatusError{URL: target, StatusCode: resp.StatusCode})
	}
	return resp, nil
}
