package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for knowledge records.
var (
	ErrNoteNotFound       = errors.New("note not found")
	ErrEmptyTitle         = errors.New("note title cannot be empty")
	ErrEmptyBody          = errors.New("note body cannot be empty")
	ErrInvalidConfidence  = errors.New("confidence must be between 0.0 and 1.0")
	ErrInvalidContentType = errors.New("invalid content type")
	ErrInvalidSourceType  = errors.New("invalid source type")
)

// ContentType categorizes what kind of knowledge artifact a note is.
type ContentType string

const (
	ContentTypeNote     ContentType = "note"
	ContentTypeMOC      ContentType = "moc"
	ContentTypeProject  ContentType = "project"
	ContentTypeArea     ContentType = "area"
	ContentTypeResource ContentType = "resource"
)

// Valid reports whether the content type is one of the known values.
func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeNote, ContentTypeMOC, ContentTypeProject, ContentTypeArea, ContentTypeResource:
		return true
	}
	return false
}

// SourceType identifies where a note's text came from.
type SourceType string

const (
	// SourceConversation is a live-conversation insight.
	SourceConversation SourceType = "conversation"

	// SourceInbox is a batch item from the inbox directory.
	SourceInbox SourceType = "inbox"

	// SourceManual is a note created directly by the caller.
	SourceManual SourceType = "manual"
)

// Valid reports whether the source type is one of the known values.
func (s SourceType) Valid() bool {
	switch s {
	case SourceConversation, SourceInbox, SourceManual:
		return true
	}
	return false
}

// Note is a discrete knowledge artifact persisted in the vault and the
// metadata store.
//
// Notes are created by the Filer when a classification is accepted and
// mutated when feedback edits content or tags. The core never hard-deletes
// a note; archival is a caller concern.
type Note struct {
	// ID is the unique note identifier (UUID).
	ID string `json:"id"`

	// Title is the derived note title.
	Title string `json:"title"`

	// ContentType is the note's artifact kind.
	ContentType ContentType `json:"content_type"`

	// PrimaryDomain is the single highest-scoring domain.
	PrimaryDomain string `json:"primary_domain"`

	// Body is the rendered note body (without frontmatter).
	Body string `json:"body"`

	// Path is the vault-relative path the note was written to.
	Path string `json:"path"`

	// ConfidenceScore is the aggregate classification confidence (0.0-1.0).
	ConfidenceScore float64 `json:"confidence_score"`

	// SourceType identifies where the note's text came from.
	SourceType SourceType `json:"source_type"`

	// ContentHash identifies the body text at last processing time.
	ContentHash string `json:"content_hash"`

	// Fingerprint is the canonical feature key of the classification the
	// note was filed under. The Pattern Learner matches corrections
	// against it.
	Fingerprint string `json:"fingerprint,omitempty"`

	// CreatedAt is when the note was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the note was last modified. Always >= CreatedAt.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewNote creates a note with a generated UUID, content hash, and timestamps.
func NewNote(title, body string, contentType ContentType, domain string, source SourceType, confidence float64) (*Note, error) {
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if body == "" {
		return nil, ErrEmptyBody
	}
	if !contentType.Valid() {
		return nil, ErrInvalidContentType
	}
	if !source.Valid() {
		return nil, ErrInvalidSourceType
	}
	if confidence < 0.0 || confidence > 1.0 {
		return nil, ErrInvalidConfidence
	}

	now := time.Now()
	return &Note{
		ID:              uuid.New().String(),
		Title:           title,
		ContentType:     contentType,
		PrimaryDomain:   domain,
		Body:            body,
		ConfidenceScore: confidence,
		SourceType:      source,
		ContentHash:     HashContent(body),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Validate checks the note's invariants.
func (n *Note) Validate() error {
	if n.ID == "" {
		return errors.New("note ID cannot be empty")
	}
	if _, err := uuid.Parse(n.ID); err != nil {
		return errors.New("invalid note ID format")
	}
	if n.Title == "" {
		return ErrEmptyTitle
	}
	if n.Body == "" {
		return ErrEmptyBody
	}
	if !n.ContentType.Valid() {
		return ErrInvalidContentType
	}
	if !n.SourceType.Valid() {
		return ErrInvalidSourceType
	}
	if n.ConfidenceScore < 0.0 || n.ConfidenceScore > 1.0 {
		return ErrInvalidConfidence
	}
	if n.UpdatedAt.Before(n.CreatedAt) {
		return errors.New("updated_at cannot precede created_at")
	}
	return nil
}

// Touch updates the content hash and timestamp after a body mutation.
func (n *Note) Touch() {
	n.ContentHash = HashContent(n.Body)
	n.UpdatedAt = time.Now()
}

// HashContent returns the sha256 hex digest used for change detection.
func HashContent(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// TagType namespaces tag values.
type TagType string

const (
	TagTypeDomain      TagType = "domain"
	TagTypeContentType TagType = "content_type"
	TagTypeTechnology  TagType = "technology"
	TagTypeSemantic    TagType = "semantic"
)

// TagSource records how a tag was produced.
type TagSource string

const (
	TagSourceAuto    TagSource = "auto"
	TagSourceManual  TagSource = "manual"
	TagSourceLearned TagSource = "learned"
)

// Tag is a many-to-one annotation on a note.
//
// Exact duplicates (same note, value, and type) are disallowed; the same
// value may appear under different tag types.
type Tag struct {
	NoteID     string    `json:"note_id"`
	Value      string    `json:"value"`
	TagType    TagType   `json:"tag_type"`
	Confidence float64   `json:"confidence"`
	Source     TagSource `json:"source"`
}

// RelationType names the directed edge kinds between notes.
type RelationType string

const (
	RelationRelatesTo RelationType = "relates_to"
	RelationPartOf    RelationType = "part_of"
	RelationSolves    RelationType = "solves"
	RelationEnables   RelationType = "enables"
	RelationBlocks    RelationType = "blocks"
)

// RelationSource records how a relation was produced.
type RelationSource string

const (
	RelationSourceAuto      RelationSource = "auto"
	RelationSourceManual    RelationSource = "manual"
	RelationSourceSuggested RelationSource = "suggested"
)

// Relation is a directed edge between two notes.
//
// TargetNoteID may be empty when the target does not exist yet; in that
// case TargetLabel carries the forward reference.
type Relation struct {
	SourceNoteID string         `json:"source_note_id"`
	TargetNoteID string         `json:"target_note_id,omitempty"`
	TargetLabel  string         `json:"target_label,omitempty"`
	Type         RelationType   `json:"relationship_type"`
	Confidence   float64        `json:"confidence"`
	Source       RelationSource `json:"source"`
}
