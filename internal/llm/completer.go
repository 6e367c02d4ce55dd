// Package llm is the language-model fallback used when structural extraction finds no interests.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Schema asks the provider for a JSON object whose single Field is a list of strings.
type Schema struct {
	Field       string
	Description string
}

// Request is one completion call.
type Request struct {
	System      string
	User        string
	Temperature float32
	TopP        float32
	// NumCtx is the context window hint. Providers that size their own window ignore it.
	NumCtx          int
	MaxOutputTokens int32
	Schema          *Schema
}

// Completer returns a single text completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
