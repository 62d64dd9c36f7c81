package filer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vaultd/internal/classifier"
	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/metadata"
	"github.com/fyrsmithlabs/vaultd/internal/taxonomy"
	"github.com/fyrsmithlabs/vaultd/internal/vault"
	"github.com/fyrsmithlabs/vaultd/internal/vectorstore"
)

// fakeVectorStore records adds and deletes and can be told to fail.
type fakeVectorStore struct {
	failAdd bool
	added   []string
	deleted []string
}

func (f *fakeVectorStore) AddDocuments(_ context.Context, docs []vectorstore.Document) ([]string, error) {
	if f.failAdd {
		return nil, errors.New("embedding backend down")
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		f.added = append(f.added, d.ID)
	}
	return ids, nil
}

func (f *fakeVectorStore) Search(context.Context, string, int) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (f *fakeVectorStore) SearchWithFilters(context.Context, string, int, map[string]string) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (f *fakeVectorStore) DeleteDocuments(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeVectorStore) Count(context.Context) (int, error) { return len(f.added), nil }
func (f *fakeVectorStore) Close() error                       { return nil }

func testResult() *classifier.Result {
	return &classifier.Result{
		ContentType:   knowledge.ContentTypeNote,
		PrimaryDomain: "azure",
		Observations: []classifier.Observation{
			{Category: taxonomy.CategoryInsight, Text: "the zone was unlinked", InferredTags: []string{"azure"}},
		},
		Relations: []knowledge.Relation{
			{TargetLabel: "Azure Hub VNet", Type: knowledge.RelationRelatesTo, Confidence: 0.9, Source: knowledge.RelationSourceAuto},
			{TargetLabel: "Weak Link", Type: knowledge.RelationRelatesTo, Confidence: 0.3, Source: knowledge.RelationSourceAuto},
		},
		Tags: []knowledge.Tag{
			{Value: "azure", TagType: knowledge.TagTypeDomain, Confidence: 1.0, Source: knowledge.TagSourceAuto},
		},
		Title:       "Azure DNS zone linking",
		Confidence:  0.9,
		Destination: "1-notes",
		Fingerprint: "note|azure|insight",
		SourceText:  "I discovered that the Azure Private DNS zone wasn't linked.",
	}
}

func newTestFiler(t *testing.T, vectors vectorstore.Store) (*Filer, *vault.Vault, *metadata.Store) {
	t.Helper()
	v, err := vault.New(t.TempDir())
	require.NoError(t, err)

	store, err := metadata.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f, err := New(v, store, vectors)
	require.NoError(t, err)
	return f, v, store
}

func TestFile_HappyPath(t *testing.T) {
	ctx := context.Background()
	vectors := &fakeVectorStore{}
	f, v, store := newTestFiler(t, vectors)

	note, err := f.File(ctx, testResult(), knowledge.SourceConversation)
	require.NoError(t, err)

	assert.Equal(t, "1-notes/azure-dns-zone-linking.md", note.Path)
	assert.Equal(t, "note|azure|insight", note.Fingerprint)
	assert.True(t, v.Exists(note.Path))
	assert.Equal(t, []string{note.ID}, vectors.added)

	saved, err := store.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, note.Title, saved.Title)
	assert.Equal(t, note.Path, saved.Path)

	tags, err := store.TagsForNote(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "azure", tags[0].Value)

	// The low-confidence relation was filtered out.
	relations, err := store.RelationsForNote(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, "Azure Hub VNet", relations[0].TargetLabel)
}

func TestFile_RendersNoteDocument(t *testing.T) {
	ctx := context.Background()
	f, v, _ := newTestFiler(t, &fakeVectorStore{})

	note, err := f.File(ctx, testResult(), knowledge.SourceConversation)
	require.NoError(t, err)

	content, err := v.Read(note.Path)
	require.NoError(t, err)
	text := string(content)

	assert.True(t, strings.HasPrefix(text, "---\n"), "document starts with frontmatter")
	assert.Contains(t, text, "title: Azure DNS zone linking")
	assert.Contains(t, text, "type: note")
	assert.Contains(t, text, "domain: azure")
	assert.Contains(t, text, "# Azure DNS zone linking")
	assert.Contains(t, text, "## Content")
	assert.Contains(t, text, "## Observations")
	assert.Contains(t, text, "- [insight] the zone was unlinked #azure")
	assert.Contains(t, text, "- relates_to [[Azure Hub VNet]]")
	assert.Contains(t, text, "- [[Azure Hub VNet]]")

	// Sections appear in the fixed order.
	sections := []string{"## Content", "## Observations", "## Relations", "## Related Knowledge", "## Tags"}
	pos := -1
	for _, section := range sections {
		next := strings.Index(text, section)
		require.NotEqual(t, -1, next, section)
		assert.Greater(t, next, pos, "%s out of order", section)
		pos = next
	}

	// The low-confidence relation is not rendered.
	assert.NotContains(t, text, "Weak Link")
}

func TestFile_VectorFailureRollsBackVault(t *testing.T) {
	ctx := context.Background()
	vectors := &fakeVectorStore{failAdd: true}
	f, v, store := newTestFiler(t, vectors)

	_, err := f.File(ctx, testResult(), knowledge.SourceConversation)
	require.ErrorIs(t, err, ErrPersistence)

	// No vault file and no metadata row survive.
	assert.False(t, v.Exists("1-notes/azure-dns-zone-linking.md"))
	notes, err := store.NotesByDomain(ctx, "azure", 10)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestFile_MetadataFailureCompensates(t *testing.T) {
	ctx := context.Background()
	vectors := &fakeVectorStore{}
	f, v, store := newTestFiler(t, vectors)

	// First filing succeeds.
	result := testResult()
	note, err := f.File(ctx, result, knowledge.SourceConversation)
	require.NoError(t, err)

	// Force the metadata insert to fail by reusing the duplicate tag
	// twice in one result.
	dup := testResult()
	dup.Tags = append(dup.Tags, dup.Tags[0])
	_, err = f.File(ctx, dup, knowledge.SourceConversation)
	require.ErrorIs(t, err, ErrPersistence)

	// The second vault file and vector entry were compensated away; the
	// first note is untouched.
	assert.True(t, v.Exists(note.Path))
	assert.False(t, v.Exists("1-notes/azure-dns-zone-linking-2.md"))
	require.Len(t, vectors.deleted, 1)
	assert.NotEqual(t, note.ID, vectors.deleted[0])

	_, err = store.GetNote(ctx, note.ID)
	assert.NoError(t, err)
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Azure DNS zone linking", "azure-dns-zone-linking"},
		{"What's up? (A test!)", "what-s-up-a-test"},
		{"  spaces   everywhere  ", "spaces-everywhere"},
		{"CAPS and 123 digits", "caps-and-123-digits"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.in), tt.in)
	}
}

func TestStageFor(t *testing.T) {
	assert.Equal(t, "active", stageFor(knowledge.ContentTypeProject))
	assert.Equal(t, "index", stageFor(knowledge.ContentTypeMOC))
	assert.Equal(t, "evergreen", stageFor(knowledge.ContentTypeNote))
}

func TestFile_DestinationDirectoryCreated(t *testing.T) {
	ctx := context.Background()
	f, v, _ := newTestFiler(t, &fakeVectorStore{})

	result := testResult()
	result.ContentType = knowledge.ContentTypeResource
	result.Destination = "5-resources"

	note, err := f.File(ctx, result, knowledge.SourceInbox)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(note.Path, "5-resources/"))

	info, err := os.Stat(filepath.Join(v.Root(), "5-resources"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
