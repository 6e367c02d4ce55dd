// Package carleton extracts professor profiles from Carleton University department sites.
package carleton

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/extract"
	"github.com/JakeFAU/professor-crawler/internal/professor"
)

// Name is the institution label routed to this extractor.
const Name = "Carleton University"

const (
	// renderedDepartment publishes contact details client-side only.
	renderedDepartment = "School of Information Technology"
	loadMoreControl    = "button.loadMore"
	viewProfileText    = "View Profile"
)

// Extractor implements professor.Extractor for carleton.ca.
type Extractor struct {
	deps   extract.Deps
	logger *zap.Logger
}

var _ professor.Extractor = (*Extractor)(nil)

// New builds the extractor.
func New(deps extract.Deps) *Extractor {
	return &Extractor{deps: deps, logger: deps.Log().Named("carleton")}
}

// University implements professor.Extractor.
func (e *Extractor) University() string { return Name }

// ListProfiles returns the profile links on one directory page. Pages with a
// "load more" button are expanded in the browser before links are collected.
func (e *Extractor) ListProfiles(ctx context.Context, req professor.DirectoryRequest) ([]professor.Link, error) {
	doc, err := e.deps.Loader.Static(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	var anchors []extract.Anchor
	if doc.Find(loadMoreControl).Length() > 0 {
		anchors, err = e.expandLoadMore(ctx, req.URL)
		if err != nil {
			e.logger.Warn("load more expansion failed, using static page",
				zap.String("url", req.URL), zap.Error(err))
			anchors = viewProfileAnchors(req.URL, doc)
		}
	} else {
		var probe string
		anchors, probe, _ = extract.FirstMatch(doc, directoryProbes(req.URL))
		if probe != "" {
			e.logger.Debug("directory layout matched", zap.String("url", req.URL), zap.String("probe", probe))
		}
	}

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

// expandLoadMore clicks through every page and reads links from the final snapshot.
func (e *Extractor) expandLoadMore(ctx context.Context, url string) ([]extract.Anchor, error) {
	var (
		last  *goquery.Document
		steps int
	)
	for doc, err := range e.deps.Loader.Paginate(ctx, url, loadMoreControl) {
		if err != nil {
			return nil, err
		}
		last = doc
		steps++
	}
	if last == nil {
		return nil, errors.New("no snapshots rendered")
	}
	e.logger.Debug("expanded directory", zap.String("url", url), zap.Int("steps", steps))
	return viewProfileAnchors(url, last), nil
}

func viewProfileAnchors(base string, doc *goquery.Document) []extract.Anchor {
	return extract.Links(base, doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), viewProfileText)
	}))
}

func directoryProbes(pageURL string) []extract.Probe[[]extract.Anchor] {
	return []extract.Probe[[]extract.Anchor]{
		extract.AnchorProbe("card-links", pageURL, "a.card__link[href]"),
		extract.AnchorProbe("people-list", pageURL, "a.c-list-item--people[href]"),
		{
			Name: "view-profile",
			Try: func(doc *goquery.Document) ([]extract.Anchor, bool) {
				anchors := viewProfileAnchors(pageURL, doc)
				return anchors, len(anchors) > 0
			},
		},
		extract.AnchorProbe("person-name", pageURL, "span.person-name a[href]"),
		{
			Name: "cu-card-buttons",
			Try: func(doc *goquery.Document) ([]extract.Anchor, bool) {
				var out []extract.Anchor
				doc.Find("div.cu-card").Each(func(_ int, card *goquery.Selection) {
					button := card.Find("a.cu-button[href]").First()
					if button.Length() == 0 {
						button = card.Find("footer a.cu-button[href]").First()
					}
					out = append(out, extract.Links(pageURL, button)...)
				})
				return out, len(out) > 0
			},
		},
		{
			Name: "person-blocks",
			Try: func(doc *goquery.Document) ([]extract.Anchor, bool) {
				var out []extract.Anchor
				doc.Find("div.person").Each(func(_ int, card *goquery.Selection) {
					out = append(out, extract.Links(pageURL, card.Find("a[href]").First())...)
				})
				return out, len(out) > 0
			},
		},
	}
}

// ExtractProfile reads name, email and interests from one profile page.
func (e *Extractor) ExtractProfile(ctx context.Context, link professor.Link) (professor.Profile, error) {
	if link.Department == renderedDepartment {
		doc, err := e.deps.Loader.Rendered(ctx, link.URL)
		if err == nil {
			return parseRenderedProfile(doc), nil
		}
		if !errors.Is(err, extract.ErrNoRenderer) {
			return professor.Profile{}, err
		}
		e.logger.Debug("no renderer, reading profile statically", zap.String("url", link.URL))
	}
	doc, err := e.deps.Loader.Static(ctx, link.URL)
	if err != nil {
		return professor.Profile{}, err
	}
	return parseProfile(doc), nil
}

type contact struct {
	name  string
	email string
}

func parseProfile(doc *goquery.Document) professor.Profile {
	interests, _, _ := extract.FirstMatch(doc, interestProbes)
	c, _, _ := extract.FirstMatch(doc, contactProbes)
	if c.email == "" {
		c.email = extract.ProtectedEmail(doc.Selection)
	}
	return professor.Profile{
		Name:      c.name,
		Email:     c.email,
		Interests: interests,
	}
}

func parseRenderedProfile(doc *goquery.Document) professor.Profile {
	var p professor.Profile
	header := doc.Find("div.profile-name-desktop")
	if header.Length() == 0 {
		return p
	}
	p.Name = extract.CleanText(header.Find("h1").First().Text())
	p.Email = extract.CleanText(doc.Find("li.email span").First().Text())
	p.Interests, _, _ = extract.FirstMatch(doc, interestProbes[:1])
	return p
}

func researchHeading(text string) bool {
	return strings.Contains(strings.ToLower(text), "research")
}

func labelledList(tag string) func(doc *goquery.Document) ([]string, bool) {
	return func(doc *goquery.Document) ([]string, bool) {
		label := extract.FindHeadings(doc, tag, extract.IsResearchHeading).First()
		if label.Length() == 0 {
			return nil, false
		}
		items := extract.InterestsInNextList(label.Closest("p"))
		return items, len(items) > 0
	}
}

var interestProbes = []extract.Probe[[]string]{
	{
		Name: "heading-list",
		Try: func(doc *goquery.Document) ([]string, bool) {
			var items []string
			extract.FindHeadings(doc, "h1, h2, h3, h4, h5, h6", researchHeading).EachWithBreak(func(_ int, h *goquery.Selection) bool {
				items = extract.InterestsInNextList(h)
				return len(items) == 0
			})
			return items, len(items) > 0
		},
	},
	{Name: "strong-label", Try: labelledList("strong")},
	{Name: "bold-label", Try: labelledList("b")},
}

func hrefAddress(a *goquery.Selection) string {
	href, ok := a.Attr("href")
	if !ok {
		return ""
	}
	if addr := extract.ContactFromHref(href); addr != "" {
		return addr
	}
	// Some layouts print the bare address after a label, e.g. "email:ada@carleton.ca".
	addr := strings.TrimSpace(href[strings.LastIndexByte(href, ':')+1:])
	if !strings.Contains(addr, "@") {
		return ""
	}
	return addr
}

var contactProbes = []extract.Probe[contact]{
	{
		Name: "people-details",
		Try: func(doc *goquery.Document) (contact, bool) {
			details := doc.Find("div.people__details").First()
			if details.Length() == 0 {
				return contact{}, false
			}
			return contact{
				name:  extract.CleanText(details.Find("h2.people__heading").First().Text()),
				email: extract.FirstMailto(details),
			}, true
		},
	},
	{
		Name: "prose-name",
		Try: func(doc *goquery.Document) (contact, bool) {
			name, ok := extract.FirstText(doc, "h1.cu-prose-first-last")
			if !ok {
				return contact{}, false
			}
			return contact{
				name:  name,
				email: hrefAddress(doc.Find("ul.cu-details a[href]").First()),
			}, true
		},
	},
	{
		Name: "post-title",
		Try: func(doc *goquery.Document) (contact, bool) {
			title := doc.Find("h1.l-post--people-title").First()
			if title.Length() == 0 {
				return contact{}, false
			}
			return contact{
				name:  extract.CleanText(title.Text()),
				email: hrefAddress(extract.NextInDocument(doc, title, "a[href]")),
			}, true
		},
	},
}
