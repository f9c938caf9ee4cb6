package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artexin/internal/jobs"
	"github.com/JakeFAU/artexin/internal/packager"
)

type fakeCollector struct {
	mu      sync.Mutex
	active  int
	maxSeen int
	calls   atomic.Int32
	fn      func(target string) packager.Result
}

func (f *fakeCollector) Collect(_ context.Context, target string, _ jobs.FetchableOptions, _ map[string]string) packager.Result {
	f.calls.Add(1)
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return f.fn(target)
}

func TestRunCollectsEveryTargetWithinPool(t *testing.T) {
	t.Parallel()

	c := &fakeCollector{fn: func(target string) packager.Result {
		return packager.Result{Metadata: packager.Metadata{URL: target}, Hash: "h-" + target}
	}}
	urls := []string{"http://a", "http://b", "http://c", "http://d", "http://e"}

	results := Run(context.Background(), c, Targets(urls, jobs.FetchableOptions{}), 2, nil)
	require.Len(t, results, len(urls))
	for _, u := range urls {
		require.Equal(t, "h-"+u, results[u].Hash)
	}
	require.EqualValues(t, len(urls), c.calls.Load())
	require.LessOrEqual(t, c.maxSeen, 2)
}

func TestRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	c := &fakeCollector{fn: func(target string) packager.Result {
		switch target {
		case "http://panic.example.com/":
			panic("boom")
		case "http://bad.example.com/":
			return packager.Result{Metadata: packager.Metadata{URL: target}, Error: "fetch failed"}
		default:
			return packager.Result{Metadata: packager.Metadata{URL: target}, Zipfile: "x.zip"}
		}
	}}
	urls := []string{"http://panic.example.com/", "http://bad.example.com/", "http://ok.example.com/"}

	results := Run(context.Background(), c, Targets(urls, jobs.FetchableOptions{}), 0, nil)
	require.Equal(t, "panic: boom", results["http://panic.example.com/"].Error)
	require.Equal(t, "panic.example.com", results["http://panic.example.com/"].Domain)
	require.Equal(t, "fetch failed", results["http://bad.example.com/"].Error)
	require.Equal(t, "x.zip", results["http://ok.example.com/"].Zipfile)
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	c := &fakeCollector{fn: func(string) packager.Result { return packager.Result{} }}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Run(ctx, c, Targets([]string{"http://a"}, jobs.FetchableOptions{}), 1, nil)
	require.Equal(t, context.Canceled.Error(), results["http://a"].Error)
	require.Zero(t, c.calls.Load())
}

func TestRunCollectsRepeatedURLOnce(t *testing.T) {
	t.Parallel()

	c := &fakeCollector{fn: func(target string) packager.Result {
		return packager.Result{Metadata: packager.Metadata{URL: target}, Zipfile: "x.zip"}
	}}
	urls := []string{"http://a", "http://a", "http://b", "http://a"}

	results := Run(context.Background(), c, Targets(urls, jobs.FetchableOptions{}), 4, nil)
	require.Len(t, results, 2)
	require.False(t, results["http://a"].Failed())
	require.False(t, results["http://b"].Failed())
	require.EqualValues(t, 2, c.calls.Load())
}
