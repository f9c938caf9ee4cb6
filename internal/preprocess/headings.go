package preprocess

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/artexin/internal/htmlutil"
)

// PromoteHeadings shifts heading levels so the topmost heading used in the
// document becomes h1.
func PromoteHeadings() Preprocessor {
	return NewDOMFunc("promote-headings", func(doc *goquery.Document) error {
		top := 0
		for level := 1; level <= 6; level++ {
			if doc.Find(heading(level)).Length() > 0 {
				top = level
				break
			}
		}
		if top <= 1 {
			return nil
		}
		shift := top - 1
		for level := top; level <= 6; level++ {
			htmlutil.Rename(doc.Find(heading(level)), heading(level-shift))
		}
		return nil
	})
}

func heading(level int) string {
	return fmt.Sprintf("h%d", level)
}
