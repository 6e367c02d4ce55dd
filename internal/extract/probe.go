// Package extract holds the structural-extraction toolkit shared by the per-institution extractors.
package extract

import (
	"github.com/PuerkitoBio/goquery"
)

// Probe is one markup pattern in an ordered ladder. Try reports ok when the
// pattern matched and produced a usable value.
type Probe[T any] struct {
	Name string
	Try  func(doc *goquery.Document) (T, bool)
}

// FirstMatch evaluates probes in order and returns the first usable result along
// with the name of the probe that produced it. Later probes are never evaluated
// once one matches.
func FirstMatch[T any](doc *goquery.Document, probes []Probe[T]) (T, string, bool) {
	var zero T
	if doc == nil {
		return zero, "", false
	}
	for _, p := range probes {
		if v, ok := p.Try(doc); ok {
			return v, p.Name, true
		}
	}
	return zero, "", false
}

// FirstText returns the trimmed, whitespace-collapsed text of the first match of
// selector, and whether it was non-empty.
func FirstText(doc *goquery.Document, selector string) (string, bool) {
	text := CleanText(doc.Find(selector).First().Text())
	return text, text != ""
}
