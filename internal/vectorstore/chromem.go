package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the embedded chromem store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory.
	Path string

	// Collection is the collection name.
	Collection string

	// Compress enables gzip compression of persisted segments.
	Compress bool
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore is a Store backed by the embedded chromem-go database.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemStore creates a chromem-backed store. With a non-empty path
// the database persists across restarts; otherwise it is in-memory.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Collection == "" {
		config.Collection = "notes"
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	logger.Info("vector store initialized",
		zap.String("path", config.Path),
		zap.String("collection", config.Collection),
		zap.Bool("compress", config.Compress),
	)
	return store, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc adapts the Embedder interface to chromem.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", s.config.Collection, err)
	}
	return col, nil
}

// AddDocuments stores documents with their embeddings.
func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	col, err := s.collection()
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("document at index %d has no ID", i)
		}
		texts[i] = doc.Content
	}

	// Embed the batch up front so a backend failure surfaces before
	// anything is written.
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: embeddings[i],
		}
	}

	if err := col.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Debug("added documents to vector store",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(docs)),
	)
	return ids, nil
}

// Search performs similarity search over the collection.
func (s *ChromemStore) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	return s.SearchWithFilters(ctx, query, k, nil)
}

// SearchWithFilters performs similarity search with metadata filters.
func (s *ChromemStore) SearchWithFilters(ctx context.Context, query string, k int, filters map[string]string) ([]SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	col, err := s.collection()
	if err != nil {
		return nil, err
	}

	// chromem requires nResults <= document count.
	docCount := col.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := col.Query(ctx, query, k, filters, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}
	return searchResults, nil
}

// DeleteDocuments removes documents by ID.
func (s *ChromemStore) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.collection()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := col.Delete(ctx, nil, nil, id); err != nil {
			s.logger.Warn("failed to delete vector document",
				zap.String("id", id),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Count returns the number of stored documents.
func (s *ChromemStore) Count(_ context.Context) (int, error) {
	col, err := s.collection()
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Close releases resources held by the store.
func (s *ChromemStore) Close() error {
	return nil
}
