// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/artexin/internal/fetcher"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultSettleDelay       = 5 * time.Second
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel caps concurrent browser tabs; 0 means unbounded.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is how long to wait after the body is ready so that
	// scripts and AJAX requests can finish populating the page.
	SettleDelay time.Duration
	// ExecPath overrides the Chrome binary; empty uses the chromedp lookup.
	ExecPath string
}

// Fetcher renders pages in a shared headless Chrome, one tab per request.
type Fetcher struct {
	cfg     Config
	tabs    *semaphore.Weighted
	browser context.Context
	stop    context.CancelFunc
}

// NewChromedp prepares the browser allocator. Chrome itself starts on the
// first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	switch {
	case cfg.MaxParallel < 0:
		return nil, errors.New("max parallel must be >= 0")
	case cfg.SettleDelay < 0:
		return nil, errors.New("settle delay must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}

	f := &Fetcher{cfg: cfg}
	if cfg.MaxParallel > 0 {
		f.tabs = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}
	f.browser, f.stop = chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return f, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.stop()
}

// Fetch loads the page, waits for it to settle and returns the serialized
// DOM. Status and headers come from the main document response.
func (f *Fetcher) Fetch(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	if f.tabs != nil {
		if err := f.tabs.Acquire(ctx, 1); err != nil {
			return fetcher.Response{}, fmt.Errorf("wait for browser tab: %w", err)
		}
		defer f.tabs.Release(1)
	}

	tab, closeTab := chromedp.NewContext(f.browser)
	defer closeTab()
	tab, cancel := context.WithTimeout(tab, f.navTimeout())
	defer cancel()
	// The caller's cancellation also closes the tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	doc := &document{}
	chromedp.ListenTarget(tab, doc.observe)

	var (
		html     string
		location string
	)
	start := time.Now()
	err := chromedp.Run(tab,
		f.prepare(req),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.settleDelay()),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("render %s: %w", req.URL, err)
	}

	resp := doc.response(req.URL, location)
	resp.Body = []byte(html)
	resp.Duration = time.Since(start)
	resp.Rendered = true
	return resp, fetcher.CheckStatus(resp)
}

// prepare enables network events and applies per-request headers.
func (f *Fetcher) prepare(req fetcher.Request) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network events: %w", err)
		}
		if ua := req.Headers.Get("User-Agent"); ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("override user agent: %w", err)
			}
		}
		if extra := networkHeaders(req.Headers); len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set request headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (f *Fetcher) settleDelay() time.Duration {
	if f.cfg.SettleDelay > 0 {
		return f.cfg.SettleDelay
	}
	return defaultSettleDelay
}
