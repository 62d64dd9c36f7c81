package metadata

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func makeNote(t *testing.T, domain string) *knowledge.Note {
	t.Helper()
	note, err := knowledge.NewNote("Test note", "body text",
		knowledge.ContentTypeNote, domain, knowledge.SourceConversation, 0.9)
	require.NoError(t, err)
	note.Path = "1-notes/test-note.md"
	note.Fingerprint = "note|" + domain + "|insight"
	return note
}

func TestSaveNote_Roundtrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	note := makeNote(t, "azure")

	tags := []knowledge.Tag{
		{NoteID: note.ID, Value: "azure", TagType: knowledge.TagTypeDomain, Confidence: 1.0, Source: knowledge.TagSourceAuto},
		{NoteID: note.ID, Value: "dns", TagType: knowledge.TagTypeTechnology, Confidence: 0.8, Source: knowledge.TagSourceAuto},
	}
	relations := []knowledge.Relation{
		{SourceNoteID: note.ID, TargetLabel: "Hub VNet", Type: knowledge.RelationRelatesTo, Confidence: 0.9, Source: knowledge.RelationSourceAuto},
	}
	require.NoError(t, store.SaveNote(ctx, note, tags, relations))

	got, err := store.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, note.Title, got.Title)
	assert.Equal(t, note.Fingerprint, got.Fingerprint)
	assert.Equal(t, note.ContentHash, got.ContentHash)

	gotTags, err := store.TagsForNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Len(t, gotTags, 2)

	gotRels, err := store.RelationsForNote(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, gotRels, 1)
	assert.Equal(t, "Hub VNet", gotRels[0].TargetLabel)
}

func TestSaveNote_DuplicateTagFailsAtomically(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	note := makeNote(t, "azure")

	tags := []knowledge.Tag{
		{NoteID: note.ID, Value: "azure", TagType: knowledge.TagTypeDomain, Confidence: 1.0, Source: knowledge.TagSourceAuto},
		{NoteID: note.ID, Value: "azure", TagType: knowledge.TagTypeDomain, Confidence: 1.0, Source: knowledge.TagSourceAuto},
	}
	err := store.SaveNote(ctx, note, tags, nil)
	require.ErrorIs(t, err, ErrDuplicateTag)

	// The whole transaction rolled back: no note row either.
	_, err = store.GetNote(ctx, note.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetNote_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetNote(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteNote(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	note := makeNote(t, "azure")
	require.NoError(t, store.SaveNote(ctx, note, nil, nil))

	require.NoError(t, store.DeleteNote(ctx, note.ID))
	_, err := store.GetNote(ctx, note.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotesByDomain(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	azure := makeNote(t, "azure")
	dns := makeNote(t, "dns")
	require.NoError(t, store.SaveNote(ctx, azure, nil, nil))
	require.NoError(t, store.SaveNote(ctx, dns, nil, nil))

	notes, err := store.NotesByDomain(ctx, "azure", 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, azure.ID, notes[0].ID)
}

func TestUpdateNotePath(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	note := makeNote(t, "azure")
	require.NoError(t, store.SaveNote(ctx, note, nil, nil))

	require.NoError(t, store.UpdateNotePath(ctx, note.ID, "5-resources/test-note.md"))
	got, err := store.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "5-resources/test-note.md", got.Path)
}

func TestReplaceTag(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	note := makeNote(t, "azure")
	tags := []knowledge.Tag{
		{NoteID: note.ID, Value: "azure-networking", TagType: knowledge.TagTypeSemantic, Confidence: 0.7, Source: knowledge.TagSourceAuto},
	}
	require.NoError(t, store.SaveNote(ctx, note, tags, nil))

	require.NoError(t, store.ReplaceTag(ctx, note.ID, "azure-networking", "azure-dns"))
	got, err := store.TagsForNote(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "azure-dns", got[0].Value)
	assert.Equal(t, knowledge.TagSourceManual, got[0].Source)
}

func TestPattern_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	pattern := &knowledge.LearningPattern{
		ID:          "p1",
		PatternType: knowledge.PatternFiling,
		Fingerprint: "note|azure|insight",
		Data:        map[string]string{"corrected": "1-notes/x.md"},
		Confidence:  0.5,
		UsageCount:  1,
		SuccessRate: 1.0,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, store.UpsertPattern(ctx, pattern))

	got, err := store.GetPattern(ctx, knowledge.PatternFiling, "note|azure|insight")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)
	assert.Equal(t, "1-notes/x.md", got.Data["corrected"])

	// Upsert on the same (type, fingerprint) updates in place.
	pattern.UsageCount = 2
	pattern.SuccessRate = 0.9
	require.NoError(t, store.UpsertPattern(ctx, pattern))

	got, err = store.GetPattern(ctx, knowledge.PatternFiling, "note|azure|insight")
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsageCount)
	assert.InDelta(t, 0.9, got.SuccessRate, 0.0001)

	patterns, err := store.ListPatterns(ctx)
	require.NoError(t, err)
	assert.Len(t, patterns, 1)
}

func TestFeedback_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	note := makeNote(t, "azure")
	require.NoError(t, store.SaveNote(ctx, note, nil, nil))

	event, err := knowledge.NewFeedbackEvent(note.ID, knowledge.ActionFileMoved, "a", "b")
	require.NoError(t, err)
	require.NoError(t, store.InsertFeedback(ctx, event))

	pending, err := store.UnprocessedFeedback(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, event.ID, pending[0].ID)

	require.NoError(t, store.MarkFeedbackProcessed(ctx, event.ID))
	pending, err = store.UnprocessedFeedback(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTagIndexEntries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	note := makeNote(t, "azure")
	tags := []knowledge.Tag{
		{NoteID: note.ID, Value: "azure", TagType: knowledge.TagTypeDomain, Confidence: 1.0, Source: knowledge.TagSourceAuto},
	}
	require.NoError(t, store.SaveNote(ctx, note, tags, nil))

	entries, err := store.TagIndexEntries(ctx, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "azure", entries[0].Value)
	assert.Equal(t, note.ID, entries[0].NoteID)
	assert.Equal(t, "Test note", entries[0].NoteTitle)
}

func TestAutoFileStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	filed := makeNote(t, "azure")
	corrected := makeNote(t, "dns")
	require.NoError(t, store.SaveNote(ctx, filed, nil, nil))
	require.NoError(t, store.SaveNote(ctx, corrected, nil, nil))

	for _, n := range []*knowledge.Note{filed, corrected} {
		require.NoError(t, store.AppendLog(ctx, LogEntry{
			NoteID:     n.ID,
			SourceType: knowledge.SourceConversation,
			Decision:   "auto_file",
			Confidence: 0.9,
			Reason:     "test",
		}))
	}
	event, err := knowledge.NewFeedbackEvent(corrected.ID, knowledge.ActionFileMoved, "a", "b")
	require.NoError(t, err)
	require.NoError(t, store.InsertFeedback(ctx, event))

	autoFiled, got, err := store.AutoFileStats(ctx, knowledge.SourceConversation, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, autoFiled)
	assert.Equal(t, 1, got)
}
