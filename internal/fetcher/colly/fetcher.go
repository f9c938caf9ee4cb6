// Package collyfetcher implements fetcher.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/artexin/internal/fetcher"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

// Fetcher performs plain HTTP GETs through a Colly collector. It serves both
// pages and images.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	base      *colly.Collector
}

// New builds a Fetcher with a pooled HTTP transport.
func New(cfg Config) *Fetcher {
	return NewWithTransport(cfg, newHTTPTransport())
}

// NewWithTransport builds a Fetcher that sends requests through transport.
func NewWithTransport(cfg Config, transport http.RoundTripper) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	base := colly.NewCollector(colly.Async(false))
	// The same image or page may be requested by many jobs.
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	base.ParseHTTPErrorResponse = true
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodySize > 0 {
		base.MaxBodySize = cfg.MaxBodySize
	}
	base.SetRequestTimeout(cfg.Timeout)
	base.WithTransport(transport)
	return &Fetcher{cfg: cfg, transport: transport, base: base}
}

// attempt carries the state of one Fetch across Colly callbacks.
type attempt struct {
	req   fetcher.Request
	start time.Time
	resp  fetcher.Response
	err   error
}

func (a *attempt) onRequest(r *colly.Request) {
	for key, values := range a.req.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func (a *attempt) onResponse(r *colly.Response) {
	a.resp = fetcher.Response{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Headers:    r.Headers.Clone(),
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(a.start),
	}
}

func (a *attempt) onError(_ *colly.Response, err error) {
	a.err = err
}

// collector clones the base collector and binds a's callbacks to it.
func (f *Fetcher) collector(a *attempt) *colly.Collector {
	c := f.base.Clone()
	c.SetRequestTimeout(f.cfg.Timeout)
	c.WithTransport(f.transport)
	c.OnRequest(a.onRequest)
	c.OnResponse(a.onResponse)
	c.OnError(a.onError)
	return c
}

// Fetch executes a single HTTP GET. Responses with a 4xx or 5xx status are
// returned together with a *fetcher.StatusError.
func (f *Fetcher) Fetch(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	a := &attempt{req: req, start: time.Now()}
	c := f.collector(a)

	done := make(chan error, 1)
	go func() { done <- c.Visit(req.URL) }()

	select {
	case <-ctx.Done():
		return fetcher.Response{}, fmt.Errorf("fetch %s canceled: %w", req.URL, ctx.Err())
	case err := <-done:
		if err != nil {
			return fetcher.Response{}, fmt.Errorf("visit %s: %w", req.URL, err)
		}
	}
	if a.err != nil {
		return fetcher.Response{}, fmt.Errorf("fetch %s: %w", req.URL, a.err)
	}
	return a.resp, fetcher.CheckStatus(a.resp)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
}
