package preprocess

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/artexin/internal/htmlutil"
)

// Wikipedia cleans up Wikipedia article markup: the page heading is moved
// into the content area, which then replaces the whole body, and edit links,
// navigation boxes and internal wiki links are dropped.
func Wikipedia() Preprocessor {
	return NewDOMFunc("wikipedia", wikipedia)
}

func wikipedia(doc *goquery.Document) error {
	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if content := doc.Find("div#mw-content-text").First(); content.Length() > 0 {
		content.PrependHtml("<h1>" + html.EscapeString(title) + "</h1>")
		inner, err := goquery.OuterHtml(content)
		if err != nil {
			return fmt.Errorf("render content: %w", err)
		}
		body := doc.Find("body")
		body.Empty()
		body.AppendHtml(inner)
	}

	doc.Find("span.mw-editsection").Remove()
	htmlutil.Unwrap(doc.Find("a.image"))
	doc.Find("div.magnify").Remove()
	htmlutil.Rename(doc.Find("div.thumbcaption"), "p")
	htmlutil.Unwrap(doc.Find(`a[href^="/wiki/"]`))
	htmlutil.Unwrap(doc.Find(`a.new[href^="/w/index.php"]`))
	doc.Find("table.navbox, table.metadata, table.plainlinks, div.hatnote").Remove()
	return nil
}
