// Package batch collects many URLs concurrently with a bounded pool.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/artexin/internal/jobs"
	"github.com/JakeFAU/artexin/internal/packager"
	"github.com/JakeFAU/artexin/internal/urlutil"
)

// Collector is the pipeline entry point the batch drives.
type Collector interface {
	Collect(ctx context.Context, target string, opts jobs.FetchableOptions, extra map[string]string) packager.Result
}

// Target is one URL to collect.
type Target struct {
	URL     string
	Options jobs.FetchableOptions
	Extra   map[string]string
}

// Targets builds targets sharing the same options.
func Targets(urls []string, opts jobs.FetchableOptions) []Target {
	out := make([]Target, 0, len(urls))
	for _, u := range urls {
		out = append(out, Target{URL: u, Options: opts})
	}
	return out
}

// Run collects every target using at most poolSize concurrent pipelines
// (runtime.NumCPU when poolSize <= 0). Results are keyed by URL. A failing
// or panicking target is captured in its result and never stops the others.
// Repeated URLs are collected once, using the first target's options.
func Run(ctx context.Context, c Collector, targets []Target, poolSize int, logger *zap.Logger) map[string]packager.Result {
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		mu      sync.Mutex
		results = make(map[string]packager.Result, len(targets))
		g       errgroup.Group
	)
	g.SetLimit(poolSize)
	for _, target := range unique(targets) {
		g.Go(func() error {
			res := collectOne(ctx, c, target)
			if res.Failed() {
				logger.Warn("batch target failed", zap.String("url", target.URL), zap.String("error", res.Error))
			}
			mu.Lock()
			results[target.URL] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func unique(targets []Target) []Target {
	seen := make(map[string]struct{}, len(targets))
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		if _, ok := seen[t.URL]; ok {
			continue
		}
		seen[t.URL] = struct{}{}
		out = append(out, t)
	}
	return out
}

func collectOne(ctx context.Context, c Collector, target Target) (res packager.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = packager.Result{
				Metadata: packager.Metadata{URL: target.URL, Domain: urlutil.Domain(target.URL)},
				Error:    fmt.Sprintf("panic: %v", rec),
			}
		}
	}()
	if err := ctx.Err(); err != nil {
		return packager.Result{
			Metadata: packager.Metadata{URL: target.URL, Domain: urlutil.Domain(target.URL)},
			Error:    err.Error(),
		}
	}
	return c.Collect(ctx, target.URL, target.Options, target.Extra)
}
