// Package preprocess applies site-specific HTML cleanups before article extraction.
package preprocess

import (
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/artexin/internal/htmlutil"
)

// Preprocessor is a pure HTML to HTML transform.
type Preprocessor interface {
	Name() string
	Process(html string) (string, error)
}

// DOMFunc adapts a goquery document mutation to the Preprocessor interface.
type DOMFunc struct {
	name string
	fn   func(doc *goquery.Document) error
}

// NewDOMFunc wraps fn under the given name.
func NewDOMFunc(name string, fn func(doc *goquery.Document) error) DOMFunc {
	return DOMFunc{name: name, fn: fn}
}

// Name implements Preprocessor.
func (d DOMFunc) Name() string { return d.name }

// Process implements Preprocessor.
func (d DOMFunc) Process(html string) (string, error) {
	out, err := htmlutil.Transform(html, d.fn)
	if err != nil {
		return "", fmt.Errorf("preprocessor %s: %w", d.name, err)
	}
	return out, nil
}

// Noop returns its input unchanged.
type Noop struct{}

// Name implements Preprocessor.
func (Noop) Name() string { return "noop" }

// Process implements Preprocessor.
func (Noop) Process(html string) (string, error) { return html, nil }

type rule struct {
	pattern *regexp.Regexp
	preps   []Preprocessor
}

// Table maps URL patterns to preprocessors. Every matching rule applies in
// the order it was added; the catch-all list applies only when nothing matched.
type Table struct {
	rules    []rule
	catchAll []Preprocessor
}

// NewTable creates an empty table with the given catch-all preprocessors.
func NewTable(catchAll ...Preprocessor) *Table {
	return &Table{catchAll: catchAll}
}

// Add registers preps for URLs matching pattern.
func (t *Table) Add(pattern string, preps ...Preprocessor) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	t.rules = append(t.rules, rule{pattern: re, preps: preps})
	return nil
}

// For returns the preprocessors to run for rawURL.
func (t *Table) For(rawURL string) []Preprocessor {
	var out []Preprocessor
	for _, r := range t.rules {
		if r.pattern.MatchString(rawURL) {
			out = append(out, r.preps...)
		}
	}
	if len(out) == 0 {
		out = append(out, t.catchAll...)
	}
	return out
}

// Apply runs preps in order over html.
func Apply(html string, preps []Preprocessor) (string, error) {
	var err error
	for _, p := range preps {
		html, err = p.Process(html)
		if err != nil {
			return "", err
		}
	}
	return html, nil
}

// DefaultTable returns the built-in rules: Wikipedia cleanup for
// Wikipedia articles and heading promotion everywhere else.
func DefaultTable() *Table {
	t := NewTable(PromoteHeadings())
	if err := t.Add(`(?i)^https?://..\.wikipedia\.org`, Wikipedia()); err != nil {
		panic(err)
	}
	return t
}
