package ratelimit

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artexin/internal/fetcher"
)

func TestLimiterWaitDelaysSameHost(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1 leaves 100ms between tokens.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://example.com/foo"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://example.com/bar"))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.com/"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.com/"))
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Len(t, l.limiters, 2)
}

func TestLimiterWaitCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://example.com"))
}

func TestLimiterUnlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background(), "::bad url"))
	}
	require.Contains(t, l.limiters, "unknown")
}

func TestWrapDelegates(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	next := fetcher.Func(func(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
		calls.Add(1)
		return fetcher.Response{URL: req.URL, StatusCode: http.StatusOK}, nil
	})

	_, passthrough := Wrap(nil, next).(fetcher.Func)
	require.True(t, passthrough)

	wrapped := Wrap(New(Config{}), next)
	resp, err := wrapped.Fetch(context.Background(), fetcher.Request{URL: "http://x/y"})
	require.NoError(t, err)
	require.Equal(t, "http://x/y", resp.URL)
	require.EqualValues(t, 1, calls.Load())
}
