// Package embeddings provides embedding generation for note content.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingUnavailable indicates the embedding backend failed
	// after retries. Filing treats this as fatal for the item.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
)

// Provider generates vector embeddings from text.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "tei" or "local".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the TEI URL (only used for the TEI provider).
	BaseURL string
	// RequestsPerSecond throttles outbound embed calls (TEI only).
	RequestsPerSecond float64
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "tei", "":
		return NewService(Config{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	case "local":
		return NewLocalProvider(), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// dimensionForModel returns the embedding dimension for a model name,
// falling back to 384.
func dimensionForModel(model string) int {
	switch {
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	default:
		return 384
	}
}
