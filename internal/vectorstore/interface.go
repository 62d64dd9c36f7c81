// Package vectorstore defines the interface for vector storage and its
// embedded chromem-go implementation.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the interface for vector storage operations.
type Store interface {
	// AddDocuments stores documents with their embeddings and returns
	// the stored IDs.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Search performs similarity search and returns up to k results
	// ordered by descending similarity.
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)

	// SearchWithFilters performs similarity search constrained by
	// metadata equality filters.
	SearchWithFilters(ctx context.Context, query string, k int, filters map[string]string) ([]SearchResult, error)

	// DeleteDocuments removes documents by ID. Missing IDs are not an
	// error so compensating deletes stay idempotent.
	DeleteDocuments(ctx context.Context, ids []string) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}
