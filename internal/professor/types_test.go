package professor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordEmittable(t *testing.T) {
	t.Parallel()

	require.False(t, Record{Name: "Ada"}.Emittable())
	require.False(t, Record{ResearchInterests: []string{" ", ""}}.Emittable())
	require.True(t, Record{ResearchInterests: []string{"Algorithms"}}.Emittable())
}

func TestRecordPartial(t *testing.T) {
	t.Parallel()

	require.True(t, Record{Name: "Ada"}.Partial())
	require.True(t, Record{Email: "ada@example.com"}.Partial())
	require.False(t, Record{Name: "Ada", Email: "ada@example.com"}.Partial())
}

func TestVisitedAdd(t *testing.T) {
	t.Parallel()

	v := NewVisited()
	require.True(t, v.Add("https://example.com/a"))
	require.False(t, v.Add("https://example.com/a"))
	require.True(t, v.Add("https://example.com/b"))
	require.Len(t, v, 2)
}
