package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ResearchKeywords are the case-insensitive heading fragments that introduce a
// list of research interests.
var ResearchKeywords = []string{
	"research interests",
	"research areas",
	"areas of supervision",
	"areas of graduate supervision",
	"areas of expertise",
	"research focus",
}

// IsResearchHeading reports whether text names a research-interest section.
func IsResearchHeading(text string) bool {
	lower := strings.ToLower(CleanText(text))
	for _, kw := range ResearchKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FindHeadings returns the elements matching selector whose text satisfies match.
func FindHeadings(doc *goquery.Document, selector string, match func(string) bool) *goquery.Selection {
	return doc.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return match(s.Text())
	})
}

// headingLevel returns 1-6 for h1-h6 and 0 otherwise.
func headingLevel(node string) int {
	if len(node) == 2 && node[0] == 'h' && node[1] >= '1' && node[1] <= '6' {
		return int(node[1] - '0')
	}
	return 0
}

// InterestsAfterHeading walks the siblings that follow heading and collects the
// list items it meets. The walk ends at a heading of the same or a higher level,
// or at a strong/b label that opens a different block. Containers such as section
// or div contribute the items of their lists. Short paragraphs are used only
// when no list was found before the boundary.
func InterestsAfterHeading(heading *goquery.Selection) []string {
	level := headingLevel(goquery.NodeName(heading))
	if level == 0 {
		level = 6
	}
	var (
		items      []string
		paragraphs []string
	)
	for sib := heading.Next(); sib.Length() > 0; sib = sib.Next() {
		name := goquery.NodeName(sib)
		if l := headingLevel(name); l > 0 && l <= level {
			break
		}
		if name == "strong" || name == "b" {
			break
		}
		switch name {
		case "ul", "ol":
			items = append(items, ListItems(sib)...)
		case "p":
			if text := CleanText(sib.Text()); text != "" && len(text) <= 300 {
				paragraphs = append(paragraphs, text)
			}
		default:
			if lists := sib.Find("ul, ol"); lists.Length() > 0 {
				items = append(items, ListItems(lists.First())...)
			}
		}
	}
	if len(items) == 0 {
		return paragraphs
	}
	return items
}

// InterestsInNextList returns the items of the first ul that is a following
// sibling of sel.
func InterestsInNextList(sel *goquery.Selection) []string {
	ul := sel.NextAllFiltered("ul").First()
	if ul.Length() == 0 {
		return nil
	}
	return ListItems(ul)
}
