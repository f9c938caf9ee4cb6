// Package images downloads the images referenced by a document and rewrites
// their references to point at local copies.
package images

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/artexin/internal/fetcher"
	"github.com/JakeFAU/artexin/internal/metrics"
	"github.com/JakeFAU/artexin/internal/urlutil"
)

// ErrNotImage is returned when downloaded content is not a recognized image.
var ErrNotImage = errors.New("content is not an image")

const defaultParallel = 4

var extensions = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/bmp":     ".bmp",
	"image/tiff":    ".tif",
	"image/webp":    ".webp",
	"image/x-icon":  ".ico",
	"image/svg+xml": ".svg",
}

// Resolver localizes the images of a document.
type Resolver struct {
	fetcher     fetcher.Fetcher
	logger      *zap.Logger
	maxParallel int
}

// NewResolver builds a Resolver. maxParallel <= 0 uses a small default.
func NewResolver(f fetcher.Fetcher, maxParallel int, logger *zap.Logger) *Resolver {
	if maxParallel <= 0 {
		maxParallel = defaultParallel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fetcher: f, logger: logger, maxParallel: maxParallel}
}

type imageRef struct {
	index int
	src   string
	nodes []*goquery.Selection
	name  string
	path  string
	err   error
}

// Resolve downloads every distinct <img src> of rawHTML into workDir and
// returns the rewritten document together with the stored file paths in
// first-occurrence order. Images that cannot be retrieved are removed from
// the document. Duplicate references share one download.
func (r *Resolver) Resolve(ctx context.Context, rawHTML, baseURL, workDir string) (string, []string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", nil, fmt.Errorf("parse document: %w", err)
	}

	var ordered []*imageRef
	bySrc := make(map[string]*imageRef)
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok {
			sel.Remove()
			return
		}
		img, seen := bySrc[src]
		if !seen {
			img = &imageRef{index: len(ordered), src: src}
			bySrc[src] = img
			ordered = append(ordered, img)
		} else {
			metrics.ObserveImage("duplicate")
		}
		img.nodes = append(img.nodes, sel)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)
	for _, img := range ordered {
		g.Go(func() error {
			// errors stay on the image so one broken download never cancels the rest
			img.name, img.path, img.err = r.fetch(gctx, base, img, workDir)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return "", nil, fmt.Errorf("resolve images: %w", err)
	}

	paths := make([]string, 0, len(ordered))
	for _, img := range ordered {
		if img.err != nil {
			r.logger.Debug("image dropped", zap.String("src", img.src), zap.Error(img.err))
			metrics.ObserveImage("failed")
			for _, node := range img.nodes {
				node.Remove()
			}
			continue
		}
		metrics.ObserveImage("stored")
		for _, node := range img.nodes {
			node.SetAttr("src", img.name)
		}
		paths = append(paths, img.path)
	}

	out, err := doc.Html()
	if err != nil {
		return "", nil, fmt.Errorf("render document: %w", err)
	}
	return out, paths, nil
}

func (r *Resolver) fetch(ctx context.Context, base *url.URL, img *imageRef, workDir string) (string, string, error) {
	target, err := urlutil.Resolve(base, img.src)
	if err != nil {
		return "", "", err
	}
	resp, err := r.fetcher.Fetch(ctx, fetcher.Request{URL: target})
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", target, err)
	}
	ext, err := Extension(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", target, err)
	}
	name := fmt.Sprintf("image%04d%s", img.index, ext)
	path := filepath.Join(workDir, name)
	if err := os.WriteFile(path, resp.Body, 0o600); err != nil {
		return "", "", fmt.Errorf("write %s: %w", name, err)
	}
	return name, path, nil
}

// Extension sniffs data and returns the file extension for its image format.
func Extension(data []byte) (string, error) {
	mtype := mimetype.Detect(data)
	name, _, _ := strings.Cut(mtype.String(), ";")
	if !strings.HasPrefix(name, "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, name)
	}
	if ext, ok := extensions[name]; ok {
		return ext, nil
	}
	if ext := mtype.Extension(); ext != "" {
		return ext, nil
	}
	return "", fmt.Errorf("%w: no extension for %s", ErrNotImage, name)
}

// IsImage reports whether data sniffs as an image.
func IsImage(data []byte) bool {
	_, err := Extension(data)
	return err == nil
}
