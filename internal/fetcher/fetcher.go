// Package fetcher defines the request/response types shared by page and image fetchers.
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Request describes a single retrieval.
type Request struct {
	URL     string
	Headers http.Header
}

// Response captures what a fetcher retrieved.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// Fetcher retrieves the content at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// StatusError reports a response whose status code signals failure.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// CheckStatus returns a *StatusError for 4xx and 5xx responses.
func CheckStatus(resp Response) error {
	if resp.StatusCode >= http.StatusBadRequest {
		return &StatusError{URL: resp.URL, StatusCode: resp.StatusCode}
	}
	return nil
}

// Func adapts a function to the Fetcher interface.
type Func func(ctx context.Context, req Request) (Response, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
