package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		config   ProviderConfig
		wantErr  error
		wantDim  int
		wantType string
	}{
		{
			name:    "default is tei",
			config:  ProviderConfig{},
			wantDim: 384,
		},
		{
			name:    "tei with large model",
			config:  ProviderConfig{Provider: "tei", Model: "BAAI/bge-large-en-v1.5"},
			wantDim: 1024,
		},
		{
			name:    "tei with base model",
			config:  ProviderConfig{Provider: "tei", Model: "BAAI/bge-base-en-v1.5"},
			wantDim: 768,
		},
		{
			name:    "local",
			config:  ProviderConfig{Provider: "local"},
			wantDim: 384,
		},
		{
			name:    "unknown provider",
			config:  ProviderConfig{Provider: "openai"},
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.config)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer provider.Close()
			assert.Equal(t, tt.wantDim, provider.Dimension())
		})
	}
}

func TestLocalProvider_Deterministic(t *testing.T) {
	ctx := context.Background()
	provider := NewLocalProvider()

	first, err := provider.EmbedQuery(ctx, "azure dns private endpoint")
	require.NoError(t, err)
	second, err := provider.EmbedQuery(ctx, "azure dns private endpoint")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := provider.EmbedQuery(ctx, "kubernetes ingress controller")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestLocalProvider_Normalized(t *testing.T) {
	ctx := context.Background()
	provider := NewLocalProvider()

	vec, err := provider.EmbedQuery(ctx, "some words to embed here")
	require.NoError(t, err)
	require.Len(t, vec, provider.Dimension())

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 0.001)
}

func TestLocalProvider_SharedTokensAreCloser(t *testing.T) {
	ctx := context.Background()
	provider := NewLocalProvider()

	base, err := provider.EmbedQuery(ctx, "azure dns zone linking")
	require.NoError(t, err)
	near, err := provider.EmbedQuery(ctx, "azure dns record sets")
	require.NoError(t, err)
	far, err := provider.EmbedQuery(ctx, "sourdough starter hydration ratio")
	require.NoError(t, err)

	assert.Greater(t, dot(base, near), dot(base, far))
}

func TestLocalProvider_EmptyInput(t *testing.T) {
	ctx := context.Background()
	provider := NewLocalProvider()

	_, err := provider.EmbedQuery(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = provider.EmbedDocuments(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
