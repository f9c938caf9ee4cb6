// Package handler implements the job handlers for fetchable and standalone
// targets.
package handler

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/artexin/internal/jobs"
	"github.com/JakeFAU/artexin/internal/packager"
)

// NewRegistry registers the fetchable and standalone handlers. Either may be
// nil, in which case that job type is rejected.
func NewRegistry(fetchable *Fetchable, standalone *Standalone) (*jobs.Registry, error) {
	handlers := make(map[jobs.JobType]jobs.Handler, 2)
	if fetchable != nil {
		handlers[jobs.TypeFetchable] = fetchable
	}
	if standalone != nil {
		handlers[jobs.TypeStandalone] = standalone
	}
	return jobs.NewRegistry(handlers)
}

// recorder copies packaging results onto tasks and mirrors finished archives.
type recorder struct {
	mirror jobs.ArtifactStore
	prefix string
	clock  jobs.Clock
	logger *zap.Logger
}

func (r recorder) record(ctx context.Context, task *jobs.Task, result packager.Result) error {
	if result.Failed() {
		if err := jobs.TransitionTask(task, jobs.TaskFailed); err != nil {
			return err
		}
		now := r.clock.Now().UTC()
		task.Error = result.Error
		task.CompletedAt = &now
		return nil
	}

	if r.mirror != nil {
		uri, err := r.upload(ctx, result)
		if err != nil {
			return err
		}
		task.ArtifactURI = uri
	}

	ts := result.Timestamp
	task.Size = result.Size
	task.Hash = result.Hash
	task.Title = result.Title
	task.ImageCount = result.Images
	task.Timestamp = &ts
	task.Artifact = result.Zipfile
	task.Error = ""
	if err := jobs.TransitionTask(task, jobs.TaskFinished); err != nil {
		return err
	}
	now := r.clock.Now().UTC()
	task.CompletedAt = &now
	return nil
}

func (r recorder) upload(ctx context.Context, result packager.Result) (string, error) {
	f, err := os.Open(result.Zipfile)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	ext := filepath.Ext(result.Zipfile)
	object := path.Join(r.prefix, result.Hash+ext)
	uri, err := r.mirror.PutObject(ctx, object, contentType(ext), f)
	if err != nil {
		return "", fmt.Errorf("mirror archive: %w", err)
	}
	r.logger.Debug("archive mirrored", zap.String("hash", result.Hash), zap.String("uri", uri))
	return uri, nil
}

func contentType(ext string) string {
	if ext == ".zip" {
		return "application/zip"
	}
	return "application/octet-stream"
}
