package preprocess

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, s string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	require.NoError(t, err)
	return doc
}

func names(preps []Preprocessor) []string {
	out := make([]string, 0, len(preps))
	for _, p := range preps {
		out = append(out, p.Name())
	}
	return out
}

func TestDefaultTableSelection(t *testing.T) {
	t.Parallel()

	table := DefaultTable()
	require.Equal(t, []string{"promote-headings"}, names(table.For("http://www.example.com")))
	require.Equal(t, []string{"wikipedia"}, names(table.For("http://en.wikipedia.org/")))
	require.Equal(t, []string{"wikipedia"}, names(table.For("HTTPS://DE.WIKIPEDIA.ORG/wiki/X")))
	require.Equal(t, []string{"promote-headings"}, names(table.For("http://simple.wikipedia.org/")))
}

func TestTableAppliesEveryMatchingRuleInOrder(t *testing.T) {
	t.Parallel()

	table := NewTable(Noop{})
	require.NoError(t, table.Add(`^https://example\.com`, NewDOMFunc("first", nil)))
	require.NoError(t, table.Add(`/news/`, NewDOMFunc("second", nil)))
	require.Error(t, table.Add(`(`, Noop{}))

	require.Equal(t, []string{"first", "second"}, names(table.For("https://example.com/news/1")))
	require.Equal(t, []string{"second"}, names(table.For("https://other.org/news/1")))
	require.Equal(t, []string{"noop"}, names(table.For("https://other.org/")))
}

func TestApplyStopsOnError(t *testing.T) {
	t.Parallel()

	boom := NewDOMFunc("boom", func(*goquery.Document) error { return errors.New("boom") })
	_, err := Apply("<p>x</p>", []Preprocessor{Noop{}, boom})
	require.ErrorContains(t, err, "preprocessor boom")

	out, err := Apply("<p>x</p>", nil)
	require.NoError(t, err)
	require.Equal(t, "<p>x</p>", out)
}

func TestPromoteHeadings(t *testing.T) {
	t.Parallel()

	out, err := PromoteHeadings().Process(`<body><h3>Top</h3><h4>Sub</h4><h6>Deep</h6><h3>Again</h3></body>`)
	require.NoError(t, err)

	doc := parse(t, out)
	require.Equal(t, 2, doc.Find("h1").Length())
	require.Equal(t, "Sub", doc.Find("h2").Text())
	require.Equal(t, "Deep", doc.Find("h4").Text())
	require.Zero(t, doc.Find("h3, h5, h6").Length())
}

func TestPromoteHeadingsLeavesH1Documents(t *testing.T) {
	t.Parallel()

	out, err := PromoteHeadings().Process(`<body><h1>A</h1><h3>B</h3></body>`)
	require.NoError(t, err)
	doc := parse(t, out)
	require.Equal(t, "B", doc.Find("h3").Text())
}

const wikiPage = `<html><head><title>Sunflower - Wikipedia</title></head><body>
<div id="mw-navigation"><a href="/wiki/Main_Page">Main page</a></div>
<h1 id="firstHeading" class="firstHeading" lang="en">Sunflower</h1>
<div id="mw-content-text">
<div class="hatnote">For other uses, see Sunflower (disambiguation).</div>
<h2>Description<span class="mw-editsection"><a href="/w/index.php?title=Sunflower&amp;action=edit">edit</a></span></h2>
<div class="thumb"><a class="image" href="/wiki/File:Sun.jpg"><img src="//upload.wikimedia.org/sun.jpg"></a>
<div class="thumbcaption"><div class="magnify"><a href="/wiki/File:Sun.jpg" title="Enlarge"></a></div>A field</div></div>
<p>The <a href="/wiki/Plant">plant</a> has a <a class="new" href="/w/index.php?title=Stalk&amp;action=edit&amp;redlink=1">stalk</a>
and <a href="http://example.com/ref">a reference</a>.</p>
<table class="navbox"><tr><td>nav</td></tr></table>
<table class="metadata"><tr><td>meta</td></tr></table>
<table class="plainlinks"><tr><td>plain</td></tr></table>
</div>
<div id="footer">footer</div>
</body></html>`

func TestWikipedia(t *testing.T) {
	t.Parallel()

	out, err := Wikipedia().Process(wikiPage)
	require.NoError(t, err)
	require.NotContains(t, out, `<h1 id="firstHeading"`)
	require.Contains(t, out, "<h1>Sunflower</h1>")
	require.NotContains(t, out, "title=Sunflower&amp;action=edit")
	require.NotContains(t, out, `title="Enlarge"`)

	doc := parse(t, out)
	require.Equal(t, "mw-content-text", doc.Find("h1").Parent().AttrOr("id", ""))
	require.Zero(t, doc.Find("#mw-navigation, #footer").Length())
	require.Zero(t, doc.Find("table, div.hatnote, span.mw-editsection, div.magnify, a.image").Length())
	require.Equal(t, 1, doc.Find("img").Length())
	require.Equal(t, "A field", strings.TrimSpace(doc.Find("p.thumbcaption").Text()))

	links := doc.Find("a")
	require.Equal(t, 1, links.Length())
	require.Equal(t, "http://example.com/ref", links.AttrOr("href", ""))
	require.Contains(t, doc.Find("p").Text(), "plant")
	require.Contains(t, doc.Find("p").Text(), "stalk")
}

func TestWikipediaWithoutContentArea(t *testing.T) {
	t.Parallel()

	out, err := Wikipedia().Process(`<html><body><h1>T</h1><div class="hatnote">x</div><p>keep</p></body></html>`)
	require.NoError(t, err)
	doc := parse(t, out)
	require.Equal(t, "T", doc.Find("h1").Text())
	require.Equal(t, "keep", doc.Find("p").Text())
	require.Zero(t, doc.Find("div.hatnote").Length())
}
