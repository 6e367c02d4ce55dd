package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	resp *genai.EmbedContentResponse
	err  error
	seen []genai.Part
}

func (f *fakeModel) EmbedContent(_ context.Context, parts ...genai.Part) (*genai.EmbedContentResponse, error) {
	f.seen = append(f.seen, parts...)
	return f.resp, f.err
}

func TestGeminiEmbed(t *testing.T) {
	t.Parallel()

	m := &fakeModel{resp: &genai.EmbedContentResponse{Embedding: &genai.ContentEmbedding{Values: []float32{0.1, 0.2}}}}
	g := &Gemini{model: m, limiter: newLimiter(0)}

	vec, err := g.Embed(context.Background(), "Cryptography")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2}, vec)
	require.Equal(t, []genai.Part{genai.Text("Cryptography")}, m.seen)
}

func TestGeminiEmbedFailures(t *testing.T) {
	t.Parallel()

	g := &Gemini{model: &fakeModel{err: errors.New("quota")}, limiter: newLimiter(0)}
	_, err := g.Embed(context.Background(), "x")
	require.ErrorContains(t, err, "quota")

	g = &Gemini{model: &fakeModel{resp: &genai.EmbedContentResponse{}}, limiter: newLimiter(0)}
	_, err = g.Embed(context.Background(), "x")
	require.ErrorIs(t, err, ErrNoEmbedding)
}

func TestNewGeminiRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewGemini(context.Background(), "", "", 0)
	require.Error(t, err)
}

func TestNop(t *testing.T) {
	t.Parallel()

	vec, err := Nop{}.Embed(context.Background(), "x")
	require.NoError(t, err)
	require.Empty(t, vec)
	require.NoError(t, (&Gemini{}).Close())
}
