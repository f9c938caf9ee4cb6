package handler

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/artexin/internal/clock/system"
	"github.com/JakeFAU/artexin/internal/fetcher"
	"github.com/JakeFAU/artexin/internal/jobs"
	"github.com/JakeFAU/artexin/internal/packager"
)

// Collector runs the collection pipeline for one target.
type Collector interface {
	Collect(ctx context.Context, target string, opts jobs.FetchableOptions, extra map[string]string) packager.Result
}

// FetchableConfig wires a Fetchable handler.
type FetchableConfig struct {
	Collector Collector
	// Reachability checks that a target is reachable before it is collected.
	Reachability fetcher.Fetcher
	// Mirror, when set, receives a copy of every finished archive.
	Mirror       jobs.ArtifactStore
	MirrorPrefix string
	Clock        jobs.Clock
}

// Fetchable handles FETCHABLE jobs: each target is a URL to collect.
type Fetchable struct {
	collector Collector
	reach     fetcher.Fetcher
	recorder  recorder
	logger    *zap.Logger
}

// NewFetchable builds a Fetchable handler.
func NewFetchable(cfg FetchableConfig, logger *zap.Logger) *Fetchable {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	logger = logger.Named("fetchable")
	return &Fetchable{
		collector: cfg.Collector,
		reach:     cfg.Reachability,
		recorder: recorder{
			mirror: cfg.Mirror,
			prefix: cfg.MirrorPrefix,
			clock:  cfg.Clock,
			logger: logger,
		},
		logger: logger,
	}
}

// IsValidTarget reports whether target answers with a non-error status.
func (h *Fetchable) IsValidTarget(ctx context.Context, target string) bool {
	if h.reach == nil {
		return true
	}
	resp, err := h.reach.Fetch(ctx, fetcher.Request{URL: target})
	if err != nil {
		h.logger.Debug("reachability check failed", zap.String("url", target), zap.Error(err))
		return false
	}
	return resp.StatusCode < 400
}

// HandleTask collects the task's URL.
func (h *Fetchable) HandleTask(ctx context.Context, task jobs.Task, opts jobs.Options) (packager.Result, error) {
	return h.collector.Collect(ctx, task.Target, opts.FetchableOrDefault(), nil), nil
}

// HandleTaskResult records result on task.
func (h *Fetchable) HandleTaskResult(ctx context.Context, task *jobs.Task, result packager.Result, _ jobs.Options) error {
	return h.recorder.record(ctx, task, result)
}
