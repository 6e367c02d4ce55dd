package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleCatalog = `{
  "University of Ottawa": {
    "Faculty of Engineering": "https://www.uottawa.ca/faculty-engineering/professors",
    "Faculty of Science": {
      "Mathematics": "https://www.uottawa.ca/faculty-science/math",
      "Biology": "https://www.uottawa.ca/faculty-science/bio"
    }
  },
  "Carleton University": {
    "Faculty of Engineering and Design": "https://carleton.ca/fed/people"
  }
}`

func TestParseCatalogPreservesOrder(t *testing.T) {
	t.Parallel()

	c, err := ParseCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	require.Equal(t, []string{"University of Ottawa", "Carleton University"}, c.Names())

	dir, ok := c.Directory("University of Ottawa")
	require.True(t, ok)
	require.Equal(t, Directory{
		{Faculty: "Faculty of Engineering", URL: "https://www.uottawa.ca/faculty-engineering/professors"},
		{Faculty: "Faculty of Science", Department: "Mathematics", URL: "https://www.uottawa.ca/faculty-science/math"},
		{Faculty: "Faculty of Science", Department: "Biology", URL: "https://www.uottawa.ca/faculty-science/bio"},
	}, dir)
	require.Equal(t, 2, dir.Faculties())

	_, ok = c.Directory("Unknown College")
	require.False(t, ok)
}

func TestCatalogRawRoundTrips(t *testing.T) {
	t.Parallel()

	c, err := ParseCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	raw := c.Raw("Carleton University")
	require.JSONEq(t, `{"Faculty of Engineering and Design": "https://carleton.ca/fed/people"}`, string(raw))

	dir, err := ParseDirectory(raw)
	require.NoError(t, err)
	require.Len(t, dir, 1)
}

func TestParseDirectoryRejectsBadShapes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
	}{
		{"not an object", `["https://example.com"]`},
		{"number leaf", `{"Faculty": 3}`},
		{"nested too deep", `{"Faculty": {"Dept": {"Lab": "https://example.com"}}}`},
		{"array leaf", `{"Faculty": ["https://example.com"]}`},
		{"truncated", `{"Faculty": "https://example.com"`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseDirectory([]byte(tc.input))
			require.Error(t, err)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "universities.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Names(), 2)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
