// Package embedding turns research-interest phrases into vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/JakeFAU/professor-crawler/internal/professor"
)

// ErrNoEmbedding is returned when the service answers without a vector.
var ErrNoEmbedding = errors.New("no embedding returned")

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-004"

type contentEmbedder interface {
	EmbedContent(ctx context.Context, parts ...genai.Part) (*genai.EmbedContentResponse, error)
}

// Gemini embeds documents with a Google embedding model.
type Gemini struct {
	client  *genai.Client
	model   contentEmbedder
	limiter *rate.Limiter
}

var _ professor.Embedder = (*Gemini)(nil)

// NewGemini dials the Generative Language API. requestsPerMinute <= 0 disables throttling.
func NewGemini(ctx context.Context, apiKey, model string, requestsPerMinute int) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("embedding api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	em := client.EmbeddingModel(model)
	em.TaskType = genai.TaskTypeRetrievalDocument
	return &Gemini{client: client, model: em, limiter: newLimiter(requestsPerMinute)}, nil
}

func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), max(1, requestsPerMinute/10))
}

// Embed implements professor.Embedder.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}
	resp, err := g.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp == nil || resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, ErrNoEmbedding
	}
	return resp.Embedding.Values, nil
}

// Close releases the client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("close genai client: %w", err)
	}
	return nil
}

// Nop never produces a vector; rows are stored without embeddings.
type Nop struct{}

// Embed implements professor.Embedder.
func (Nop) Embed(context.Context, string) ([]float32, error) {
	return nil, nil
}
