package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/artexin/internal/fetcher"
)

// ErrUnavailable is returned when rendered fetching is disabled.
var ErrUnavailable = errors.New("headless fetcher not configured")

// Noop stands in for the browser when headless fetching is disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always returns ErrUnavailable.
func (Noop) Fetch(_ context.Context, _ fetcher.Request) (fetcher.Response, error) {
	return fetcher.Response{}, ErrUnavailable
}
