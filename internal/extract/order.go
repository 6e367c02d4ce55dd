package extract

import (
	"github.com/PuerkitoBio/goquery"
)

// NextInDocument returns the first element matching selector that appears after
// the start of sel in document order, descendants of sel included.
func NextInDocument(doc *goquery.Document, sel *goquery.Selection, selector string) *goquery.Selection {
	all := doc.Find("*")
	start := all.IndexOfSelection(sel.First())
	if start < 0 {
		return doc.Find(selector).Slice(0, 0)
	}
	var found *goquery.Selection
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if all.IndexOfSelection(s) > start {
			found = s
			return false
		}
		return true
	})
	if found == nil {
		return doc.Find(selector).Slice(0, 0)
	}
	return found
}

// Links collects the resolved href of every anchor in sel together with its text.
// Anchors with unusable targets are skipped.
func Links(base string, sel *goquery.Selection) []Anchor {
	var out []Anchor
	sel.Each(func(_ int, a *goquery.Selection) {
		if goquery.NodeName(a) != "a" {
			a = a.Find("a[href]").First()
		}
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		if u := ResolveURL(base, href); u != "" {
			out = append(out, Anchor{URL: u, Text: CleanText(a.Text())})
		}
	})
	return out
}

// Anchor is a resolved link target with its visible text.
type Anchor struct {
	URL  string
	Text string
}

// AnchorProbe builds a directory probe that matches selector and resolves the
// anchors it finds against base.
func AnchorProbe(name, base, selector string) Probe[[]Anchor] {
	return Probe[[]Anchor]{
		Name: name,
		Try: func(doc *goquery.Document) ([]Anchor, bool) {
			anchors := Links(base, doc.Find(selector))
			return anchors, len(anchors) > 0
		},
	}
}
