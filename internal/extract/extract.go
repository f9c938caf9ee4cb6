// Package extract distills raw pages into standalone article documents.
package extract

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// ErrNoArticle is returned when the page yields no readable content.
var ErrNoArticle = errors.New("no article content found")

// Article is an extracted page: its title and a complete HTML document.
type Article struct {
	Title string
	HTML  string
}

// Extractor turns raw page HTML into an Article.
type Extractor interface {
	Extract(ctx context.Context, rawHTML string, pageURL string) (Article, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, rawHTML string, pageURL string) (Article, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, rawHTML string, pageURL string) (Article, error) {
	return f(ctx, rawHTML, pageURL)
}

// Readability extracts the main article using go-readability.
type Readability struct{}

// NewReadability returns a readability-backed Extractor.
func NewReadability() *Readability {
	return &Readability{}
}

// Extract runs readability over rawHTML and wraps the result in a minimal document.
func (r *Readability) Extract(ctx context.Context, rawHTML string, pageURL string) (Article, error) {
	if err := ctx.Err(); err != nil {
		return Article{}, fmt.Errorf("extract canceled: %w", err)
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}
	parsed, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err != nil {
		return Article{}, fmt.Errorf("readability parse: %w", err)
	}
	if strings.TrimSpace(parsed.Content) == "" {
		return Article{}, ErrNoArticle
	}

	original, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return Article{}, fmt.Errorf("parse page: %w", err)
	}
	title := Title(original)
	if title == "" {
		title = strings.TrimSpace(parsed.Title)
	}

	wrapped, err := Wrap(title, parsed.Content)
	if err != nil {
		return Article{}, err
	}
	return Article{Title: title, HTML: wrapped}, nil
}

// Raw returns the page unchanged with an empty title.
func Raw(rawHTML string) Article {
	return Article{HTML: rawHTML}
}

// Title returns the text of the first non-empty title, h1, h2 or h3 element.
func Title(doc *goquery.Document) string {
	for _, sel := range []string{"title", "h1", "h2", "h3"} {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// Wrap reparses fragment into a full document with charset and content-type
// declarations, a title and a doctype.
func Wrap(title, fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse fragment: %w", err)
	}
	head := doc.Find("head").First()
	head.Empty()
	head.AppendHtml(`<meta charset="utf-8"/>`)
	head.AppendHtml(`<meta http-equiv="Content-Type" content="text/html; charset=utf-8"/>`)
	head.AppendHtml("<title>" + html.EscapeString(title) + "</title>")

	out, err := goquery.OuterHtml(doc.Find("html").First())
	if err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}
	return "<!DOCTYPE html>\n" + out, nil
}
