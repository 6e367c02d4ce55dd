package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/professor"
	"github.com/JakeFAU/professor-crawler/internal/progress"
)

type fakeExtractor struct {
	links    map[string][]professor.Link
	listErr  map[string]error
	profiles map[string]professor.Profile
	fetchErr map[string]error

	requests  []professor.DirectoryRequest
	extracted []string
}

func (f *fakeExtractor) University() string { return "Test University" }

func (f *fakeExtractor) ListProfiles(_ context.Context, req professor.DirectoryRequest) ([]professor.Link, error) {
	f.requests = append(f.requests, req)
	if err := f.listErr[req.URL]; err != nil {
		return nil, err
	}
	var out []professor.Link
	for _, l := range f.links[req.URL] {
		l.Faculty = req.Faculty
		l.Department = req.Department
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeExtractor) ExtractProfile(_ context.Context, link professor.Link) (professor.Profile, error) {
	f.extracted = append(f.extracted, link.URL)
	if err := f.fetchErr[link.URL]; err != nil {
		return professor.Profile{}, err
	}
	return f.profiles[link.URL], nil
}

type fakeFallback struct {
	interests map[string][]string
	links     map[string][]string
	calls     []string
}

func (f *fakeFallback) Interests(_ context.Context, src professor.Source, _ string) []string {
	f.calls = append(f.calls, src.URL)
	return f.interests[src.URL]
}

func (f *fakeFallback) ProfileLinks(_ context.Context, dirURL string) []string {
	return f.links[dirURL]
}

func TestRunVisitsDepartmentsInOrder(t *testing.T) {
	t.Parallel()

	dir, err := ParseDirectory([]byte(`{"Faculty of Science": {"Dept A": "http://x", "Dept B": "http://y"}}`))
	require.NoError(t, err)

	ex := &fakeExtractor{}
	_, stats := New(nil, Config{}, zap.NewNop()).Run(context.Background(), ex, dir)

	require.Equal(t, []professor.DirectoryRequest{
		{URL: "http://x", Faculty: "Faculty of Science", Department: "Dept A"},
		{URL: "http://y", Faculty: "Faculty of Science", Department: "Dept B"},
	}, ex.requests)
	require.Equal(t, 1, stats.Faculties)
	require.Equal(t, 2, stats.Departments)
	require.Equal(t, 2, stats.Directories)
}

func TestRunNeverEmitsEmptyInterests(t *testing.T) {
	t.Parallel()

	dir := Directory{{Faculty: "Engineering", URL: "http://dir"}}
	ex := &fakeExtractor{
		links: map[string][]professor.Link{"http://dir": {
			{URL: "http://p/1"}, {URL: "http://p/2"}, {URL: "http://p/3"},
		}},
		profiles: map[string]professor.Profile{
			"http://p/1": {Name: "Ada", Email: "ada@example.com", Interests: []string{"Algorithms", " ", "Algorithms"}},
			"http://p/2": {Name: "Bob", Email: "bob@example.com"},
			"http://p/3": {Name: "Cy", Interests: []string{"   "}},
		},
	}

	records, stats := New(nil, Config{}, nil).Run(context.Background(), ex, dir)

	require.Len(t, records, 1)
	for _, r := range records {
		require.True(t, r.Emittable())
	}
	require.Equal(t, professor.Record{
		Name:              "Ada",
		University:        "Test University",
		Faculty:           "Engineering",
		Website:           "http://p/1",
		Email:             "ada@example.com",
		ResearchInterests: []string{"Algorithms"},
	}, records[0])
	require.Equal(t, 3, stats.Profiles)
	require.Equal(t, 2, stats.Skipped)
	require.Equal(t, 1, stats.Emitted)
}

func TestRunFallbackOnlyWhenInterestsMissing(t *testing.T) {
	t.Parallel()

	dir := Directory{{Faculty: "Science", URL: "http://dir"}}
	ex := &fakeExtractor{
		links: map[string][]professor.Link{"http://dir": {
			{URL: "http://p/structured"}, {URL: "http://p/bare"}, {URL: "http://p/nobio"},
		}},
		profiles: map[string]professor.Profile{
			"http://p/structured": {Name: "A", Email: "a@x.ca", Interests: []string{"Robotics"}},
			"http://p/bare":       {Name: "B", Email: "b@x.ca"},
			"http://p/nobio":      {Name: "C", Email: "c@x.ca", SkipFallback: true},
		},
	}
	fb := &fakeFallback{interests: map[string][]string{
		"http://p/bare":  {"machine learning", "robotics"},
		"http://p/nobio": {"should not be used"},
	}}

	records, stats := New(fb, Config{}, nil).Run(context.Background(), ex, dir)

	require.Equal(t, []string{"http://p/bare"}, fb.calls)
	require.Len(t, records, 2)
	require.Equal(t, []string{"machine learning", "robotics"}, records[1].ResearchInterests)
	require.Equal(t, 1, stats.Fallbacks)
	require.Equal(t, 1, stats.Skipped)
}

func TestRunDeduplicatesWithinDirectory(t *testing.T) {
	t.Parallel()

	dir := Directory{
		{Faculty: "Science", Department: "Math", URL: "http://math"},
		{Faculty: "Science", Department: "Stats", URL: "http://stats"},
	}
	shared := professor.Link{URL: "http://p/shared"}
	ex := &fakeExtractor{
		links: map[string][]professor.Link{
			"http://math":  {shared, shared},
			"http://stats": {shared},
		},
		profiles: map[string]professor.Profile{
			"http://p/shared": {Name: "Ada", Email: "ada@x.ca", Interests: []string{"Topology"}},
		},
	}

	records, stats := New(nil, Config{}, nil).Run(context.Background(), ex, dir)

	// Cross-listed professors appear once per department.
	require.Len(t, records, 2)
	require.Equal(t, "Math", records[0].Department)
	require.Equal(t, "Stats", records[1].Department)
	require.Equal(t, 1, stats.Duplicates)
	require.Equal(t, []string{"http://p/shared", "http://p/shared"}, ex.extracted)
}

func TestRunContinuesPastFailures(t *testing.T) {
	t.Parallel()

	dir := Directory{
		{Faculty: "Arts", URL: "http://broken"},
		{Faculty: "Science", URL: "http://dir"},
	}
	ex := &fakeExtractor{
		listErr:  map[string]error{"http://broken": errors.New("status 503")},
		links:    map[string][]professor.Link{"http://dir": {{URL: "http://p/gone"}, {URL: "http://p/ok"}}},
		fetchErr: map[string]error{"http://p/gone": errors.New("status 404")},
		profiles: map[string]professor.Profile{
			"http://p/ok": {Name: "Ok", Email: "ok@x.ca", Interests: []string{"Ecology"}},
		},
	}
	fb := &fakeFallback{}

	records, stats := New(fb, Config{}, nil).Run(context.Background(), ex, dir)

	require.Len(t, records, 1)
	require.Equal(t, 1, stats.DirectoryErrors)
	require.Equal(t, 1, stats.Failed)
	require.Empty(t, fb.calls, "fetch failures must not reach the fallback")
}

func TestRunPartialAndRequireName(t *testing.T) {
	t.Parallel()

	dir := Directory{{Faculty: "Science", URL: "http://dir"}}
	newExtractor := func() *fakeExtractor {
		return &fakeExtractor{
			links: map[string][]professor.Link{"http://dir": {{URL: "http://p/anon"}, {URL: "http://p/noemail"}}},
			profiles: map[string]professor.Profile{
				"http://p/anon":    {Email: "anon@x.ca", Interests: []string{"Optics"}},
				"http://p/noemail": {Name: "Nora", Interests: []string{"Lasers"}},
			},
		}
	}

	records, stats := New(nil, Config{}, nil).Run(context.Background(), newExtractor(), dir)
	require.Len(t, records, 2)
	require.Equal(t, 2, stats.Partial)

	records, stats = New(nil, Config{RequireName: true}, nil).Run(context.Background(), newExtractor(), dir)
	require.Len(t, records, 1)
	require.Equal(t, "Nora", records[0].Name)
	require.Equal(t, 1, stats.Skipped)
}

func TestRunLinkFallback(t *testing.T) {
	t.Parallel()

	dir := Directory{{Faculty: "Law", URL: "http://law"}}
	ex := &fakeExtractor{
		profiles: map[string]professor.Profile{
			"http://law/p/1": {Name: "Lex", Email: "lex@x.ca", Interests: []string{"Contracts"}},
		},
	}
	fb := &fakeFallback{links: map[string][]string{"http://law": {"http://law/p/1"}}}

	records, _ := New(fb, Config{}, nil).Run(context.Background(), ex, dir)
	require.Empty(t, records)

	records, stats := New(fb, Config{LinkFallback: true}, nil).Run(context.Background(), ex, dir)
	require.Len(t, records, 1)
	require.Equal(t, "Law", records[0].Faculty)
	require.Equal(t, 1, stats.Links)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := &fakeExtractor{}
	records, stats := New(nil, Config{}, nil).Run(ctx, ex, Directory{{Faculty: "A", URL: "http://a"}})
	require.Empty(t, records)
	require.Empty(t, ex.requests)
	require.Zero(t, stats.Directories)
}

type recordingEmitter struct {
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.events = append(r.events, evt)
}

func TestRunEmitsProgressForTaggedRuns(t *testing.T) {
	t.Parallel()

	dir := Directory{
		{Faculty: "Science", URL: "http://dir"},
		{Faculty: "Arts", URL: "http://broken"},
	}
	ex := &fakeExtractor{
		links:    map[string][]professor.Link{"http://dir": {{URL: "http://p/1"}, {URL: "http://p/2"}}},
		listErr:  map[string]error{"http://broken": errors.New("timeout")},
		profiles: map[string]professor.Profile{"http://p/1": {Name: "Ada", Email: "a@x", Interests: []string{"Logic"}}},
		fetchErr: map[string]error{"http://p/2": errors.New("404")},
	}
	em := &recordingEmitter{}
	p := New(nil, Config{Progress: em}, nil)

	_, _ = p.Run(context.Background(), ex, dir)
	require.Empty(t, em.events, "untagged runs emit nothing")

	_, _ = p.Run(progress.WithRunID(context.Background(), "run-7"), ex, dir)
	require.Len(t, em.events, 4)

	type seen struct {
		stage   progress.Stage
		url     string
		outcome string
	}
	var got []seen
	for _, evt := range em.events {
		require.Equal(t, "run-7", evt.RunID)
		require.NoError(t, evt.Validate())
		got = append(got, seen{evt.Stage, evt.URL, evt.Outcome})
	}
	require.Equal(t, []seen{
		{progress.StageDirectory, "http://dir", ""},
		{progress.StageProfile, "http://p/1", "emitted"},
		{progress.StageProfile, "http://p/2", "failed"},
		{progress.StageDirectory, "http://broken", ""},
	}, got)
	require.Equal(t, 2, em.events[0].Links)
	require.Equal(t, "timeout", em.events[3].Note)
}
