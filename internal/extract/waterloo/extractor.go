// Package waterloo extracts professor profiles from University of Waterloo department sites.
package waterloo

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/extract"
	"github.com/JakeFAU/professor-crawler/internal/professor"
)

// Name is the institution label routed to this extractor.
const Name = "University of Waterloo"

// Extractor implements professor.Extractor for uwaterloo.ca.
type Extractor struct {
	deps   extract.Deps
	logger *zap.Logger
}

var _ professor.Extractor = (*Extractor)(nil)

// New builds the extractor.
func New(deps extract.Deps) *Extractor {
	return &Extractor{deps: deps, logger: deps.Log().Named("waterloo")}
}

// University implements professor.Extractor.
func (e *Extractor) University() string { return Name }

// ListProfiles returns the profile links on one directory page.
func (e *Extractor) ListProfiles(ctx context.Context, req professor.DirectoryRequest) ([]professor.Link, error) {
	doc, err := e.deps.Loader.Document(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	anchors, probe, ok := extract.FirstMatch(doc, directoryProbes(req.URL))
	if !ok {
		e.logger.Debug("no directory layout matched", zap.String("url", req.URL))
		return nil, nil
	}
	e.logger.Debug("directory layout matched", zap.String("url", req.URL), zap.String("probe", probe))
	links := make([]professor.Link, 0, len(anchors))
	for _, a := range anchors {
		links = append(links, professor.Link{
			URL:        a.URL,
			Faculty:    req.Faculty,
			Department: req.Department,
			NameHint:   a.Text,
		})
	}
	return links, nil
}

// contactCards prefers the profile link of each card and falls back to its website link.
func contactCards(pageURL, cardSelector string) extract.Probe[[]extract.Anchor] {
	return extract.Probe[[]extract.Anchor]{
		Name: cardSelector,
		Try: func(doc *goquery.Document) ([]extract.Anchor, bool) {
			var out []extract.Anchor
			doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
				a := card.Find("div.uw-contact__profile a[href]").First()
				if a.Length() == 0 {
					a = card.Find("div.uw-contact__website a[href]").First()
				}
				out = append(out, extract.Links(pageURL, a)...)
			})
			return out, len(out) > 0
		},
	}
}

func directoryProbes(pageURL string) []extract.Probe[[]extract.Anchor] {
	return []extract.Probe[[]extract.Anchor]{
		contactCards(pageURL, "div.views-row"),
		contactCards(pageURL, "div.uw-contact"),
		extract.AnchorProbe("card-titles", pageURL, "h2.card__title a[href]"),
		{
			Name: "faculty-article",
			Try: func(doc *goquery.Document) ([]extract.Anchor, bool) {
				header := extract.FindHeadings(doc, "h3", func(text string) bool {
					return extract.CleanText(text) == "Faculty"
				}).First()
				if header.Length() == 0 {
					return nil, false
				}
				article := extract.NextInDocument(doc, header, "article")
				anchors := extract.Links(pageURL, article.Find("ul").First().Find("li a[href]"))
				return anchors, len(anchors) > 0
			},
		},
		{
			Name: "table",
			Try: func(doc *goquery.Document) ([]extract.Anchor, bool) {
				anchors := extract.Links(pageURL, doc.Find("table").First().Find("a[href]"))
				return anchors, len(anchors) > 0
			},
		},
	}
}

// ExtractProfile reads name, email and interests from one profile page.
func (e *Extractor) ExtractProfile(ctx context.Context, link professor.Link) (professor.Profile, error) {
	doc, err := e.deps.Loader.Document(ctx, link.URL)
	if err != nil {
		return professor.Profile{}, err
	}
	return parseProfile(doc, link), nil
}

func parseProfile(doc *goquery.Document, link professor.Link) professor.Profile {
	name, ok := extract.FirstText(doc, "span.field--name-title")
	if !ok {
		name, ok = extract.FirstText(doc, "h1")
	}
	if !ok {
		name = link.NameHint
	}
	interests, _, _ := extract.FirstMatch(doc, interestProbes)
	return professor.Profile{
		Name:      name,
		Email:     extract.FirstMailto(doc.Selection),
		Interests: interests,
	}
}

func headingWalk(selector string) func(doc *goquery.Document) ([]string, bool) {
	return func(doc *goquery.Document) ([]string, bool) {
		var items []string
		extract.FindHeadings(doc, selector, extract.IsResearchHeading).Each(func(_ int, h *goquery.Selection) {
			items = append(items, extract.InterestsAfterHeading(h)...)
		})
		return items, len(items) > 0
	}
}

var interestProbes = []extract.Probe[[]string]{
	{Name: "h2-sections", Try: headingWalk("h2")},
	{Name: "minor-headings", Try: headingWalk("h3, h4")},
}
