package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// localDimension is the vector size of the local provider.
const localDimension = 384

// LocalProvider is a deterministic, dependency-free embedder used for
// tests and offline operation. Vectors are derived from token hashes so
// similar texts land near each other; semantic quality is intentionally
// not a goal.
type LocalProvider struct{}

// NewLocalProvider creates a local embedding provider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *LocalProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashEmbed(text)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *LocalProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	return hashEmbed(text), nil
}

// Dimension returns the embedding dimension.
func (p *LocalProvider) Dimension() int {
	return localDimension
}

// Close releases resources held by the provider.
func (p *LocalProvider) Close() error {
	return nil
}

// hashEmbed folds token hashes into a normalized bag-of-words vector.
func hashEmbed(text string) []float32 {
	vec := make([]float32, localDimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(token))
		idx := binary.BigEndian.Uint32(sum[:4]) % localDimension
		sign := float32(1)
		if sum[4]%2 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
