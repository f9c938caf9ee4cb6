package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artexin/internal/fetcher"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.ErrorContains(t, err, "max parallel")

	_, err = NewChromedp(Config{SettleDelay: -time.Second})
	require.ErrorContains(t, err, "settle delay")

	f, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	require.NotNil(t, f.tabs)
	require.Equal(t, defaultNavigationTimeout, f.cfg.NavigationTimeout)

	unbounded, err := NewChromedp(Config{})
	require.NoError(t, err)
	t.Cleanup(unbounded.Close)
	require.Nil(t, unbounded.tabs)
}

func TestFetchWaitsForTab(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{MaxParallel: 1})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	require.NoError(t, f.tabs.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, fetcher.Request{URL: "http://example.com"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTimingDefaults(t *testing.T) {
	t.Parallel()

	f := &Fetcher{}
	require.Equal(t, defaultNavigationTimeout, f.navTimeout())
	require.Equal(t, defaultSettleDelay, f.settleDelay())

	f.cfg.NavigationTimeout = time.Second
	f.cfg.SettleDelay = 100 * time.Millisecond
	require.Equal(t, time.Second, f.navTimeout())
	require.Equal(t, 100*time.Millisecond, f.settleDelay())
}

func TestDocumentKeepsTopLevelResponse(t *testing.T) {
	t.Parallel()

	doc := &document{}
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 203, URL: "https://example.com/article", Headers: network.Headers{"X-Cache": "hit"}},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404, URL: "https://example.com/missing.png"},
	})
	doc.observe("not an event")

	resp := doc.response("https://req", "https://location")
	require.Equal(t, 203, resp.StatusCode)
	require.Equal(t, "https://example.com/article", resp.URL)
	require.Equal(t, "hit", resp.Headers.Get("X-Cache"))
}

func TestDocumentFallbacks(t *testing.T) {
	t.Parallel()

	resp := (&document{}).response("https://req", "https://location")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://location", resp.URL)
	require.NotNil(t, resp.Headers)

	resp = (&document{}).response("https://req", "")
	require.Equal(t, "https://req", resp.URL)
}

func TestNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := networkHeaders(http.Header{
		"Accept-Language": {"en", "fr"},
		"Referer":         {"https://example.com"},
		"User-Agent":      {"artexin"},
		"X-Empty":         {},
	})
	require.Equal(t, network.Headers{
		"Accept-Language": []string{"en", "fr"},
		"Referer":         "https://example.com",
	}, got)
	require.Equal(t, "a", httpHeaders(network.Headers{"X": []any{"a"}}).Get("X"))
}

func TestNoopFetcherError(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Fetch(context.Background(), fetcher.Request{})
	require.ErrorIs(t, err, ErrUnavailable)
}
