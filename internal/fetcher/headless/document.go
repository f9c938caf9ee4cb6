package headless

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/chromedp/cdproto/network"

	"github.com/JakeFAU/artexin/internal/fetcher"
)

// document records the last top-level document response seen by a tab.
// Subresources (images, scripts, XHR) are ignored.
type document struct {
	mu      sync.Mutex
	status  int
	url     string
	headers http.Header
}

func (d *document) observe(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	h := httpHeaders(e.Response.Headers)
	d.mu.Lock()
	d.status = int(e.Response.Status)
	d.url = e.Response.URL
	d.headers = h
	d.mu.Unlock()
}

// response builds the response envelope. Without a captured document the
// status is assumed OK and the URL falls back to the tab location, then to
// the requested URL.
func (d *document) response(requested, location string) fetcher.Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	resp := fetcher.Response{StatusCode: d.status, URL: d.url, Headers: d.headers.Clone()}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	if resp.URL == "" {
		resp.URL = location
	}
	if resp.URL == "" {
		resp.URL = requested
	}
	if resp.Headers == nil {
		resp.Headers = http.Header{}
	}
	return resp
}

func httpHeaders(src network.Headers) http.Header {
	h := make(http.Header, len(src))
	for k, v := range src {
		switch vals := v.(type) {
		case string:
			h.Add(k, vals)
		case []any:
			for _, item := range vals {
				h.Add(k, fmt.Sprint(item))
			}
		default:
			h.Add(k, fmt.Sprint(vals))
		}
	}
	return h
}

// networkHeaders converts request headers for the DevTools protocol. The
// user agent is applied separately through emulation.
func networkHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for k, vals := range h {
		if len(vals) == 0 || http.CanonicalHeaderKey(k) == "User-Agent" {
			continue
		}
		if len(vals) == 1 {
			out[k] = vals[0]
			continue
		}
		out[k] = append([]string(nil), vals...)
	}
	return out
}
