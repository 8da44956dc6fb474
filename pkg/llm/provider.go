// Package llm defines the provider contract for the summarization backends.
// Implementations handle protocol-specific details such as request
// formatting, authentication, and response parsing. The backend is selected
// once at startup by available credentials, not dispatched per call.
package llm

import (
	"context"
	"errors"
)

// ErrNoEmbeddings is returned by backends that cannot produce embeddings.
// Callers treat it as "embedding term disabled", not as a failure.
var ErrNoEmbeddings = errors.New("llm: backend does not support embeddings")

// Provider is the capability interface for LLM backends.
type Provider interface {
	// Complete sends a single-shot prompt and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Embed generates an embedding vector for the text, or ErrNoEmbeddings.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float32

	// Command is the executable for the subprocess backend.
	Command string
}
