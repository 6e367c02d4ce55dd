// Package uottawa extracts professor profiles from the University of Ottawa directory.
package uottawa

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/extract"
	"github.com/JakeFAU/professor-crawler/internal/professor"
)

// Name is the institution label routed to this extractor.
const Name = "University of Ottawa"

const baseURL = "https://www.uottawa.ca"

// Extractor implements professor.Extractor for uottawa.ca.
type Extractor struct {
	deps   extract.Deps
	logger *zap.Logger
}

var _ professor.Extractor = (*Extractor)(nil)

// New builds the extractor.
func New(deps extract.Deps) *Extractor {
	return &Extractor{deps: deps, logger: deps.Log().Named("uottawa")}
}

// University implements professor.Extractor.
func (e *Extractor) University() string { return Name }

// ListProfiles returns the profile links on one directory page.
func (e *Extractor) ListProfiles(ctx context.Context, req professor.DirectoryRequest) ([]professor.Link, error) {
	doc, err := e.deps.Loader.Static(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	anchors, probe, ok := extract.FirstMatch(doc, directoryProbes(req.URL))
	if !ok {
		e.logger.Debug("no directory layout matched", zap.String("url", req.URL))
		return nil, nil
	}
	e.logger.Debug("directory layout matched",
		zap.String("url", req.URL),
		zap.String("probe", probe),
		zap.Int("links", len(anchors)),
	)
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

func directoryProbes(pageURL string) []extract.Probe[[]extract.Anchor] {
	return []extract.Probe[[]extract.Anchor]{
		{
			Name: "paragraph-links",
			Try: func(doc *goquery.Document) ([]extract.Anchor, bool) {
				var out []extract.Anchor
				for _, a := range extract.Links(pageURL, doc.Find("p a.link[href]")) {
					if strings.HasPrefix(a.URL, baseURL) {
						out = append(out, a)
					}
				}
				return out, len(out) > 0
			},
		},
		extract.AnchorProbe("uniweb-members", pageURL, `a[href*="uniweb.uottawa.ca/members"]`),
	}
}

// ExtractProfile reads name, email and interests from one profile page. The
// fallback is only allowed when the page carries a biography block.
func (e *Extractor) ExtractProfile(ctx context.Context, link professor.Link) (professor.Profile, error) {
	doc, err := e.deps.Loader.Static(ctx, link.URL)
	if err != nil {
		return professor.Profile{}, err
	}
	return parseProfile(doc), nil
}

func parseProfile(doc *goquery.Document) professor.Profile {
	name, _ := extract.FirstText(doc, "strong")
	_, hasBio := extract.FirstText(doc, "div.uottawa-default--title")
	interests, _, _ := extract.FirstMatch(doc, interestProbes)
	return professor.Profile{
		Name:         name,
		Email:        email(doc),
		Interests:    interests,
		SkipFallback: !hasBio,
	}
}

func email(doc *goquery.Document) string {
	card := doc.Find("div.field--name-field-business-card__email")
	if href, ok := card.Find("a[href]").First().Attr("href"); ok {
		if addr := extract.ContactFromHref(href); addr != "" {
			return addr
		}
	}
	return extract.ProtectedEmail(card)
}

var interestProbes = []extract.Probe[[]string]{
	{
		// <section><h2>Research interests</h2></section><section><ul>...</ul></section>
		Name: "next-section",
		Try: func(doc *goquery.Document) ([]string, bool) {
			heading := extract.FindHeadings(doc, "h2", isInterestsHeading).First()
			if heading.Length() == 0 {
				return nil, false
			}
			container := heading.Closest("section").NextAllFiltered("section").First()
			items := extract.ListItems(container.Find("ul").First())
			return items, len(items) > 0
		},
	},
	{
		Name: "heading-walk",
		Try: func(doc *goquery.Document) ([]string, bool) {
			heading := extract.FindHeadings(doc, "h2", isInterestsHeading).First()
			if heading.Length() == 0 {
				return nil, false
			}
			items := extract.InterestsAfterHeading(heading)
			return items, len(items) > 0
		},
	},
}

func isInterestsHeading(text string) bool {
	return strings.EqualFold(extract.CleanText(text), "Research interests")
}
