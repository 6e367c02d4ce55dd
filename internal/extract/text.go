package extract

import (
	"html"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CleanText decodes entities, collapses runs of whitespace and trims.
func CleanText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

// PageText returns the readable text of a page with scripts, styles and
// navigation chrome removed. Text is grouped by its nearest block ancestor,
// one block per line, so a list item keeps its own text even when it holds
// a nested list.
func PageText(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body = body.Clone()
	body.Find("script, style, noscript, nav, header, footer, iframe, svg, form, template").Remove()

	var w blockWriter
	w.walk(body)
	w.flush()
	return strings.Join(w.lines, "\n")
}

// blockElements start a new line before and after their content.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"caption": true, "dd": true, "details": true, "dialog": true, "div": true,
	"dl": true, "dt": true, "fieldset": true, "figcaption": true, "figure": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"hr": true, "li": true, "main": true, "ol": true, "p": true, "pre": true,
	"section": true, "summary": true, "table": true, "tbody": true, "td": true,
	"tfoot": true, "th": true, "thead": true, "tr": true, "ul": true,
}

type blockWriter struct {
	lines []string
	buf   strings.Builder
}

func (w *blockWriter) walk(sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		switch name := goquery.NodeName(node); {
		case name == "#text":
			w.buf.WriteString(node.Text())
		case name == "br":
			w.flush()
		case blockElements[name]:
			w.flush()
			w.walk(node)
			w.flush()
		case strings.HasPrefix(name, "#"):
			// comments and doctypes
		default:
			w.walk(node)
		}
	})
}

func (w *blockWriter) flush() {
	if text := CleanText(w.buf.String()); text != "" {
		w.lines = append(w.lines, text)
	}
	w.buf.Reset()
}

// ResolveURL resolves href against base and strips the fragment. It returns ""
// for empty, javascript: and mailto: targets.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != "" {
		if b, err := url.Parse(base); err == nil {
			ref = b.ResolveReference(ref)
		}
	}
	ref.Fragment = ""
	return strings.TrimSpace(ref.String())
}

// ListItems returns the cleaned, non-empty text of every li under sel.
func ListItems(sel *goquery.Selection) []string {
	var items []string
	sel.Find("li").Each(func(_ int, li *goquery.Selection) {
		if text := CleanText(li.Text()); text != "" {
			items = append(items, text)
		}
	})
	return items
}
