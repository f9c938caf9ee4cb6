// Package htmlutil holds small DOM manipulation helpers shared by the
// preprocessors and the collection pipeline.
package htmlutil

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/atom"
)

// Parse builds a goquery document from raw HTML.
func Parse(raw string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Render serializes the whole document.
func Render(doc *goquery.Document) (string, error) {
	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return out, nil
}

// Transform parses raw, applies fn and serializes the result.
func Transform(raw string, fn func(doc *goquery.Document) error) (string, error) {
	doc, err := Parse(raw)
	if err != nil {
		return "", err
	}
	if err := fn(doc); err != nil {
		return "", err
	}
	return Render(doc)
}

// Unwrap replaces each matched element with its children.
func Unwrap(sel *goquery.Selection) {
	sel.Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithSelection(s.Contents())
	})
}

// Rename changes the tag of each matched element, keeping attributes and children.
func Rename(sel *goquery.Selection, tag string) {
	a := atom.Lookup([]byte(tag))
	for _, n := range sel.Nodes {
		n.Data = tag
		n.DataAtom = a
	}
}

// StripLinks unwraps every anchor that does not point at a fragment within
// the document, keeping the link text.
func StripLinks(raw string) (string, error) {
	return Transform(raw, func(doc *goquery.Document) error {
		Unwrap(doc.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
			href, ok := s.Attr("href")
			return !ok || !strings.HasPrefix(href, "#")
		}))
		return nil
	})
}
