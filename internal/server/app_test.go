package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artexin/internal/config"
	"github.com/JakeFAU/artexin/internal/jobs"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Headless.Enabled = false
	cfg.Output.Dir = t.TempDir()
	cfg.Output.TempDir = t.TempDir()
	cfg.Store.Backend = config.BackendMemory
	cfg.Queue.Backend = config.BackendMemory
	cfg.Artifacts.Backend = config.BackendMemory
	cfg.Notify.Backend = config.BackendMemory
	cfg.Telemetry.Tracing = config.TracingNone
	return cfg
}

// Build registers collectors on the default Prometheus registry, so a single
// test builds the application.
func TestBuildWithMemoryBackends(t *testing.T) {
	cfg := memoryConfig(t)
	app, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close(context.Background())) })

	require.NoError(t, app.ready(context.Background()))
	require.Nil(t, app.pool)
	require.Nil(t, app.pipeline.Sign)

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.html"), []byte("<html><title>T</title></html>"), 0o600))
	body := `{"paths":["` + src + `"],"origin":"http://example.com/article"}`

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/standalone", strings.NewReader(body))
	rec := httptest.NewRecorder()
	app.api.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	job, err := app.Service().Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	require.Equal(t, jobs.TypeStandalone, job.Type)
	require.Len(t, job.Tasks, 1)
}

func TestSignParams(t *testing.T) {
	t.Parallel()

	require.Nil(t, SignParams(config.SigningConfig{Keyring: "ring.gpg"}))
	got := SignParams(config.SigningConfig{Keyring: "ring.gpg", Key: "ops", Passphrase: "pw"})
	require.NotNil(t, got)
	require.True(t, got.Complete())
}

func TestNewPipelineWithoutHeadless(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig(t)
	cfg.Images.RatePerSecond = 5
	cfg.Images.Burst = 2
	p, err := NewPipeline(cfg, nil)
	require.NoError(t, err)
	defer p.Close()

	require.NotNil(t, p.Collector)
	require.NotNil(t, p.Packager)
	require.NotNil(t, p.Reachability)
	require.Nil(t, p.headless)
}
