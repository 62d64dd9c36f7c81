package mcp

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/classifier"
	"github.com/fyrsmithlabs/vaultd/internal/embeddings"
	"github.com/fyrsmithlabs/vaultd/internal/filer"
	"github.com/fyrsmithlabs/vaultd/internal/learning"
	"github.com/fyrsmithlabs/vaultd/internal/metadata"
	"github.com/fyrsmithlabs/vaultd/internal/pipeline"
	"github.com/fyrsmithlabs/vaultd/internal/suggest"
	"github.com/fyrsmithlabs/vaultd/internal/taxonomy"
	"github.com/fyrsmithlabs/vaultd/internal/vault"
	"github.com/fyrsmithlabs/vaultd/internal/vectorstore"
)

func newTestService(t *testing.T) *pipeline.Service {
	t.Helper()

	v, err := vault.New(t.TempDir())
	require.NoError(t, err)
	store, err := metadata.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	vectors, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, embeddings.NewLocalProvider(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	tax := taxonomy.NewStore()
	learner, err := learning.New(store, tax)
	require.NoError(t, err)
	fl, err := filer.New(v, store, vectors)
	require.NoError(t, err)
	suggester, err := suggest.New(store, vectors)
	require.NoError(t, err)

	service, err := pipeline.New(pipeline.Deps{
		Classifier: classifier.New(tax),
		Taxonomy:   tax,
		Store:      store,
		Filer:      fl,
		Learner:    learner,
		Suggester:  suggester,
	})
	require.NoError(t, err)
	return service
}

func TestNewServer(t *testing.T) {
	service := newTestService(t)

	server, err := NewServer(nil, service, nil)
	require.NoError(t, err)
	assert.NotNil(t, server.mcp)

	_, err = NewServer(DefaultConfig(), nil, nil)
	assert.Error(t, err)
}

func TestNewServer_ConfigDefaults(t *testing.T) {
	service := newTestService(t)

	server, err := NewServer(&Config{}, service, nil)
	require.NoError(t, err)
	assert.NotNil(t, server.logger)
}
