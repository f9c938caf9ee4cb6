package jobs

import (
	"fmt"
)

// FetchableOptions configures collection of remote pages.
type FetchableOptions struct {
	Javascript bool `json:"javascript"`
	Extract    bool `json:"extract"`
}

// StandaloneOptions configures packaging of pre-extracted local content.
type StandaloneOptions struct {
	Origin string `json:"origin"`
}

// Options carries exactly one job-type specific variant.
type Options struct {
	Fetchable  *FetchableOptions  `json:"fetchable,omitempty"`
	Standalone *StandaloneOptions `json:"standalone,omitempty"`
}

// DefaultFetchableOptions renders pages in a browser and extracts the article.
func DefaultFetchableOptions() FetchableOptions {
	return FetchableOptions{Javascript: true, Extract: true}
}

// NewFetchableOptions wraps opts as an Options value.
func NewFetchableOptions(opts FetchableOptions) Options {
	return Options{Fetchable: &opts}
}

// NewStandaloneOptions wraps opts as an Options value.
func NewStandaloneOptions(opts StandaloneOptions) Options {
	return Options{Standalone: &opts}
}

// Kind reports which job type the populated variant belongs to.
func (o Options) Kind() (JobType, error) {
	switch {
	case o.Fetchable != nil && o.Standalone != nil:
		return "", fmt.Errorf("%w: both fetchable and standalone options set", ErrInvalidOptions)
	case o.Fetchable != nil:
		return TypeFetchable, nil
	case o.Standalone != nil:
		return TypeStandalone, nil
	default:
		return "", fmt.Errorf("%w: no options set", ErrInvalidOptions)
	}
}

// Matches checks that the populated variant belongs to t.
func (o Options) Matches(t JobType) error {
	kind, err := o.Kind()
	if err != nil {
		return err
	}
	if kind != t {
		return fmt.Errorf("%w: %s options for %s job", ErrInvalidOptions, kind, t)
	}
	if t == TypeStandalone && o.Standalone.Origin == "" {
		return fmt.Errorf("%w: standalone origin is required", ErrInvalidOptions)
	}
	return nil
}

// FetchableOrDefault returns the fetchable variant or the defaults when unset.
func (o Options) FetchableOrDefault() FetchableOptions {
	if o.Fetchable == nil {
		return DefaultFetchableOptions()
	}
	return *o.Fetchable
}

func (o Options) clone() Options {
	var cp Options
	if o.Fetchable != nil {
		v := *o.Fetchable
		cp.Fetchable = &v
	}
	if o.Standalone != nil {
		v := *o.Standalone
		cp.Standalone = &v
	}
	return cp
}
