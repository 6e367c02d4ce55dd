package waterloo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/professor-crawler/internal/extract/extracttest"
	"github.com/JakeFAU/professor-crawler/internal/professor"
)

const dirURL = "https://uwaterloo.ca/computer-science/contacts"

func urls(links []professor.Link) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.URL)
	}
	return out
}

func TestListProfilesContactCards(t *testing.T) {
	t.Parallel()

	pages := &extracttest.Pages{Static: map[string]string{dirURL: `<html><body>
		<div class="views-row">
			<div class="uw-contact__profile"><a href="/computer-science/contacts/ada">Profile</a></div>
			<div class="uw-contact__website"><a href="https://ada.example.com">Website</a></div>
		</div>
		<div class="views-row">
			<div class="uw-contact__website"><a href="https://alan.example.com">Website</a></div>
		</div>
		<div class="views-row"><p>Staff</p></div>
		<h2 class="card__title"><a href="/ignored">Ignored</a></h2>
	</body></html>`}}

	links, err := New(pages.Deps()).ListProfiles(context.Background(), professor.DirectoryRequest{
		URL: dirURL, Faculty: "Faculty of Mathematics", Department: "David R. Cheriton School of Computer Science",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"https://uwaterloo.ca/computer-science/contacts/ada", "https://alan.example.com"}, urls(links))
	require.Equal(t, "Faculty of Mathematics", links[1].Faculty)
}

func TestListProfilesFacultyArticle(t *testing.T) {
	t.Parallel()

	pages := &extracttest.Pages{Static: map[string]string{dirURL: `<html><body>
		<h3>Faculty</h3>
		<div><article><ul>
			<li><a href="/math/people/a">A</a></li>
			<li><a href="/math/people/b">B</a></li>
		</ul></article></div>
	</body></html>`}}

	links, err := New(pages.Deps()).ListProfiles(context.Background(), professor.DirectoryRequest{URL: dirURL})
	require.NoError(t, err)
	require.Equal(t, []string{"https://uwaterloo.ca/math/people/a", "https://uwaterloo.ca/math/people/b"}, urls(links))
}

func TestListProfilesTable(t *testing.T) {
	t.Parallel()

	pages := &extracttest.Pages{Static: map[string]string{dirURL: `<table><tr><td><a href="/p/1">One</a></td></tr></table>`}}
	links, err := New(pages.Deps()).ListProfiles(context.Background(), professor.DirectoryRequest{URL: dirURL})
	require.NoError(t, err)
	require.Equal(t, []string{"https://uwaterloo.ca/p/1"}, urls(links))
	require.Equal(t, "One", links[0].NameHint)
}

func TestExtractProfile(t *testing.T) {
	t.Parallel()

	url := "https://uwaterloo.ca/computer-science/contacts/ada"
	pages := &extracttest.Pages{Static: map[string]string{url: `<html><body>
		<h1><span class="field--name-title"> Ada Lovelace </span></h1>
		<a href="/contact">Contact</a>
		<a href="mailto:ada@uwaterloo.ca">ada@uwaterloo.ca</a>
		<h2>Research interests</h2>
		<ul><li>Symbolic computation</li></ul>
		<strong>Education</strong>
		<ul><li>PhD</li></ul>
		<h2>Areas of graduate supervision</h2>
		<ul><li>Algorithms</li></ul>
	</body></html>`}}

	profile, err := New(pages.Deps()).ExtractProfile(context.Background(), professor.Link{URL: url})
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", profile.Name)
	require.Equal(t, "ada@uwaterloo.ca", profile.Email)
	require.Equal(t, []string{"Symbolic computation", "Algorithms"}, profile.Interests)
}

func TestExtractProfileUsesNameHint(t *testing.T) {
	t.Parallel()

	url := "https://uwaterloo.ca/p/2"
	pages := &extracttest.Pages{Static: map[string]string{url: `<html><body><p>Bio only.</p></body></html>`}}
	profile, err := New(pages.Deps()).ExtractProfile(context.Background(), professor.Link{URL: url, NameHint: "Alan Turing"})
	require.NoError(t, err)
	require.Equal(t, "Alan Turing", profile.Name)
	require.Empty(t, profile.Interests)
}
