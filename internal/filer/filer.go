// Package filer persists accepted classification results: it writes the
// markdown note into the vault, indexes it in the vector store, and
// commits the metadata row set, compensating earlier steps when a later
// one fails so no partial note ever survives.
package filer

import (
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/classifier"
	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/metadata"
	"github.com/fyrsmithlabs/vaultd/internal/vault"
	"github.com/fyrsmithlabs/vaultd/internal/vectorstore"
)

// Filer errors.
var (
	// ErrPersistence wraps storage failures after which the filing was
	// rolled back.
	ErrPersistence = errors.New("persistence failure")
)

// minRelationConfidence filters low-confidence inferred relations out of
// the persisted note.
const minRelationConfidence = 0.5

// Filer writes accepted notes across the three stores.
type Filer struct {
	vault   *vault.Vault
	store   *metadata.Store
	vectors vectorstore.Store
	logger  *zap.Logger
}

// Option configures a Filer.
type Option func(*Filer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Filer) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a Filer over the vault, metadata store, and vector store.
func New(v *vault.Vault, store *metadata.Store, vectors vectorstore.Store, opts ...Option) (*Filer, error) {
	if v == nil {
		return nil, fmt.Errorf("vault is required")
	}
	if store == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	f := &Filer{
		vault:   v,
		store:   store,
		vectors: vectors,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// File persists one accepted classification result. The vault write
// happens first, then vector indexing, then the metadata transaction;
// a failure at any later step deletes what the earlier steps wrote.
func (f *Filer) File(ctx context.Context, result *classifier.Result, source knowledge.SourceType) (*knowledge.Note, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: nil result", ErrPersistence)
	}

	note, err := knowledge.NewNote(result.Title, result.SourceText, result.ContentType, result.PrimaryDomain, source, result.Confidence)
	if err != nil {
		return nil, err
	}
	note.Fingerprint = result.Fingerprint
	note.ContentHash = knowledge.HashContent(result.SourceText)

	content, err := renderNote(note, result)
	if err != nil {
		return nil, err
	}

	requested := path.Join(result.Destination, Slug(note.Title)+".md")
	written, err := f.vault.WriteNew(requested, content)
	if err != nil {
		return nil, fmt.Errorf("%w: vault write: %v", ErrPersistence, err)
	}
	note.Path = written

	if err := f.indexNote(ctx, note); err != nil {
		f.compensateVault(written)
		return nil, err
	}

	tags := noteTags(note.ID, result.Tags)
	relations := noteRelations(note.ID, result.Relations)
	if err := f.store.SaveNote(ctx, note, tags, relations); err != nil {
		f.compensateVector(ctx, note.ID)
		f.compensateVault(written)
		return nil, fmt.Errorf("%w: metadata commit: %v", ErrPersistence, err)
	}

	f.logger.Info("note filed",
		zap.String("note_id", note.ID),
		zap.String("path", note.Path),
		zap.String("content_type", string(note.ContentType)),
		zap.String("domain", note.PrimaryDomain),
		zap.Float64("confidence", note.ConfidenceScore),
	)
	return note, nil
}

// indexNote embeds the note body and stores it in the vector store.
// The embeddings provider retries transient failures internally.
func (f *Filer) indexNote(ctx context.Context, note *knowledge.Note) error {
	_, err := f.vectors.AddDocuments(ctx, []vectorstore.Document{{
		ID:      note.ID,
		Content: note.Body,
		Metadata: map[string]string{
			"title":        note.Title,
			"content_type": string(note.ContentType),
			"domain":       note.PrimaryDomain,
			"path":         note.Path,
		},
	}})
	if err != nil {
		return fmt.Errorf("%w: vector index: %v", ErrPersistence, err)
	}
	return nil
}

func (f *Filer) compensateVault(rel string) {
	if err := f.vault.Delete(rel); err != nil {
		f.logger.Error("compensating vault delete failed",
			zap.String("path", rel),
			zap.Error(err),
		)
	}
}

func (f *Filer) compensateVector(ctx context.Context, noteID string) {
	if err := f.vectors.DeleteDocuments(ctx, []string{noteID}); err != nil {
		f.logger.Error("compensating vector delete failed",
			zap.String("note_id", noteID),
			zap.Error(err),
		)
	}
}

// noteTags binds classified tags to the new note's ID.
func noteTags(noteID string, tags []knowledge.Tag) []knowledge.Tag {
	out := make([]knowledge.Tag, 0, len(tags))
	for _, tag := range tags {
		tag.NoteID = noteID
		out = append(out, tag)
	}
	return out
}

// noteRelations binds inferred relations to the new note's ID, dropping
// low-confidence edges.
func noteRelations(noteID string, relations []knowledge.Relation) []knowledge.Relation {
	out := make([]knowledge.Relation, 0, len(relations))
	for _, rel := range relations {
		if rel.Confidence < minRelationConfidence {
			continue
		}
		rel.SourceNoteID = noteID
		out = append(out, rel)
	}
	return out
}
