package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artexin/internal/config"
	"github.com/JakeFAU/artexin/internal/jobs"
	"github.com/JakeFAU/artexin/internal/packager"
)

type fakeCollector struct {
	mu    sync.Mutex
	calls []string
	opts  []jobs.FetchableOptions
	fn    func(target string) packager.Result
}

func (f *fakeCollector) Collect(_ context.Context, target string, opts jobs.FetchableOptions, _ map[string]string) packager.Result {
	f.mu.Lock()
	f.calls = append(f.calls, target)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	return f.fn(target)
}

func TestReadURLs(t *testing.T) {
	t.Parallel()

	urls, err := readURLs(strings.NewReader("# seeds\nhttp://a.example\n\n  http://b.example  \n"))
	require.NoError(t, err)
	require.Equal(t, []string{"http://a.example", "http://b.example"}, urls)

	_, err = readURLs(strings.NewReader("# nothing\n\n"))
	require.ErrorContains(t, err, "no urls")
}

func TestFetchListRecordsSuccessesAndFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	done := "http://done.example/"
	require.NoError(t, os.WriteFile(filepath.Join(dir, packager.Checksum(done)+".sig"), []byte("sig"), 0o600))

	c := &fakeCollector{fn: func(target string) packager.Result {
		if strings.Contains(target, "broken") {
			return packager.Result{Metadata: packager.Metadata{URL: target}, Error: "fetch failed: 404"}
		}
		return packager.Result{
			Metadata: packager.Metadata{URL: target, Title: "Hello, World", Images: 2},
			Zipfile:  filepath.Join(dir, packager.Checksum(target)+".sig"),
			Size:     1234,
			Hash:     packager.Checksum(target),
		}
	}}
	urls := []string{"http://ok.example/", done, "http://broken.example/"}
	opts := jobs.FetchableOptions{Javascript: false, Extract: true}

	sum, err := fetchList(context.Background(), c, urls, fetchListConfig{OutDir: dir, Options: opts}, nil)
	require.NoError(t, err)
	require.Equal(t, fetchListSummary{Collected: 1, Skipped: 1, Failed: 1}, sum)
	require.Equal(t, []string{"http://ok.example/", "http://broken.example/"}, c.calls)
	require.Equal(t, opts, c.opts[0])

	report, err := os.ReadFile(filepath.Join(dir, "report.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(report)), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "url,size,elapsed,hash,title,image_count", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "http://ok.example/,1234,"))
	require.True(t, strings.HasSuffix(lines[1], ","+packager.Checksum("http://ok.example/")+`,"Hello, World",2`))

	failed, err := os.ReadFile(filepath.Join(dir, "failed.urls"))
	require.NoError(t, err)
	require.Equal(t, "http://broken.example/\n", string(failed))
}

func TestFetchListAppendsAcrossRuns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	report := filepath.Join(dir, "reports", "run.csv")
	c := &fakeCollector{fn: func(target string) packager.Result {
		return packager.Result{Metadata: packager.Metadata{URL: target}, Size: 1, Hash: "h"}
	}}
	cfg := fetchListConfig{OutDir: dir, ReportPath: report}

	_, err := fetchList(context.Background(), c, []string{"http://a.example/"}, cfg, nil)
	require.NoError(t, err)
	_, err = fetchList(context.Background(), c, []string{"http://b.example/"}, cfg, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3, "header is written once")
}

func TestFetchListStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &fakeCollector{fn: func(string) packager.Result { return packager.Result{} }}

	_, err := fetchList(ctx, c, []string{"http://a.example/"}, fetchListConfig{OutDir: t.TempDir()}, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, c.calls)
}

func TestCollectFlagsApply(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Headless.Enabled = true
	cfg.Output.Dir = "/srv/out"

	f := collectFlags{javascript: false, extract: true, out: "/tmp/out", keepSrc: true}
	got := f.apply(cfg)
	require.Equal(t, "/tmp/out", got.Output.Dir)
	require.True(t, got.Output.KeepSrc)
	require.False(t, got.Headless.Enabled)
	require.Equal(t, jobs.FetchableOptions{Extract: true}, f.options())
}

// The tests below swap loadConfig and therefore do not run in parallel.

func executeRoot(t *testing.T, cfg config.Config, args ...string) (string, error) {
	t.Helper()
	prev := loadConfig
	loadConfig = func(string) (config.Config, error) { return cfg, nil }
	t.Cleanup(func() { loadConfig = prev })

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVerifyRequiresKeyring(t *testing.T) {
	_, err := executeRoot(t, config.Config{}, "verify", "archive.sig")
	require.ErrorContains(t, err, "--keyring is required")
}

func TestMigrateRequiresDSN(t *testing.T) {
	_, err := executeRoot(t, config.Config{}, "migrate")
	require.ErrorContains(t, err, "store.dsn")
}

func TestFetchListRequiresSigning(t *testing.T) {
	list := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(list, []byte("http://a.example/\n"), 0o600))

	_, err := executeRoot(t, config.Config{}, "fetch-list", "--list", list, "--key", "ops@example.com", "--out", t.TempDir())
	require.ErrorContains(t, err, "--keyring")
}

func TestCollectRequiresURL(t *testing.T) {
	_, err := executeRoot(t, config.Config{}, "collect")
	require.Error(t, err)
}
