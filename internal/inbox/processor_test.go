package inbox

import (
	"context"
	"os"
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
	"github.com/fyrsmithlabs/vaultd/internal/router"
	"github.com/fyrsmithlabs/vaultd/internal/suggest"
	"github.com/fyrsmithlabs/vaultd/internal/taxonomy"
	"github.com/fyrsmithlabs/vaultd/internal/vault"
	"github.com/fyrsmithlabs/vaultd/internal/vectorstore"
)

const discoveryCapture = `I discovered that the Azure Private DNS zone wasn't linked to the hub VNet.
Databricks workspaces need a private endpoint, and the private endpoint requires an A record
in the zone. The problem was that name resolution failed from the spoke. I fixed it by linking
the zone to the hub VNet and adding an A record for 10.1.4.10, the workspace endpoint.`

// newTestPipeline wires a full pipeline over temp dirs: local embedder,
// in-memory vector store, sqlite metadata, real vault.
func newTestPipeline(t *testing.T) (*pipeline.Service, string) {
	t.Helper()
	ctx := context.Background()

	vaultDir := t.TempDir()
	v, err := vault.New(vaultDir)
	require.NoError(t, err)

	store, err := metadata.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	vectors, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, embeddings.NewLocalProvider(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	tax := taxonomy.NewStore()
	cls := classifier.New(tax)

	learner, err := learning.New(store, tax)
	require.NoError(t, err)

	fl, err := filer.New(v, store, vectors)
	require.NoError(t, err)

	suggester, err := suggest.New(store, vectors)
	require.NoError(t, err)

	service, err := pipeline.New(pipeline.Deps{
		Classifier: cls,
		Taxonomy:   tax,
		Store:      store,
		Filer:      fl,
		Learner:    learner,
		Suggester:  suggester,
	})
	require.NoError(t, err)

	require.NoError(t, learner.Rehydrate(ctx))
	return service, vaultDir
}

func writeCapture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestProcessAll_FilesAndDrains(t *testing.T) {
	ctx := context.Background()
	service, vaultDir := newTestPipeline(t)
	inboxDir := t.TempDir()

	writeCapture(t, inboxDir, "capture-1.md", discoveryCapture)
	writeCapture(t, inboxDir, "capture-2.txt", "ok")

	processor, err := NewProcessor(inboxDir, service)
	require.NoError(t, err)

	report, err := processor.ProcessAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Filed)
	assert.Equal(t, 1, report.Ignored)
	assert.Zero(t, report.Failed)

	var filed ItemReport
	for _, item := range report.Items {
		if item.File == "capture-1.md" {
			filed = item
		}
	}
	require.Equal(t, router.ActionAutoFile, filed.Action)
	require.NotEmpty(t, filed.Path)

	// The filed note landed in the vault and the inbox file is gone.
	_, err = os.Stat(filepath.Join(vaultDir, filepath.FromSlash(filed.Path)))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(inboxDir, "capture-1.md"))
	assert.True(t, os.IsNotExist(err))

	// Ignored captures stay in the inbox.
	_, err = os.Stat(filepath.Join(inboxDir, "capture-2.txt"))
	assert.NoError(t, err)
}

func TestProcessAll_SkipsNonCaptureFiles(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestPipeline(t)
	inboxDir := t.TempDir()

	writeCapture(t, inboxDir, ".hidden.md", discoveryCapture)
	writeCapture(t, inboxDir, "notes.json", `{"k":"v"}`)
	require.NoError(t, os.Mkdir(filepath.Join(inboxDir, "nested"), 0o755))

	processor, err := NewProcessor(inboxDir, service)
	require.NoError(t, err)

	report, err := processor.ProcessAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
}

func TestProcessAll_FailedItemDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestPipeline(t)
	inboxDir := t.TempDir()

	// An empty capture fails classification; the good one still files.
	writeCapture(t, inboxDir, "bad.md", "")
	writeCapture(t, inboxDir, "good.md", discoveryCapture)

	processor, err := NewProcessor(inboxDir, service)
	require.NoError(t, err)

	report, err := processor.ProcessAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Filed)
	assert.Equal(t, 1, report.Failed)
}

func TestProcessAll_ConcurrentItemsGetDistinctPaths(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestPipeline(t)
	inboxDir := t.TempDir()

	for _, name := range []string{"a.md", "b.md", "c.md"} {
		writeCapture(t, inboxDir, name, discoveryCapture)
	}

	processor, err := NewProcessor(inboxDir, service, WithConcurrency(3))
	require.NoError(t, err)

	report, err := processor.ProcessAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, report.Filed)

	paths := make(map[string]struct{})
	for _, item := range report.Items {
		paths[item.Path] = struct{}{}
	}
	assert.Len(t, paths, 3)
}

func TestNewProcessor_Validation(t *testing.T) {
	service, _ := newTestPipeline(t)

	_, err := NewProcessor("", service)
	assert.Error(t, err)

	_, err = NewProcessor(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestProcessAll_NotADirectory(t *testing.T) {
	service, _ := newTestPipeline(t)
	file := filepath.Join(t.TempDir(), "file.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	processor, err := NewProcessor(file, service)
	require.NoError(t, err)

	_, err = processor.ProcessAll(context.Background())
	assert.ErrorIs(t, err, ErrNotDirectory)
}
