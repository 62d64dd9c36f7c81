package classifier

import (
	"errors"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/taxonomy"
)

// Classifier errors. These map to caller mistakes and are never retried.
var (
	// ErrEmptyInput is returned when the text is empty after trimming.
	ErrEmptyInput = errors.New("input text cannot be empty")

	// ErrInvalidContext is returned for malformed classification context.
	ErrInvalidContext = errors.New("invalid classification context")
)

// Context carries optional caller-supplied hints for a classification.
type Context struct {
	// SourceType is where the text came from. Empty defaults to conversation.
	SourceType knowledge.SourceType

	// SessionDomains bias domain detection toward domains already active
	// in the caller's session.
	SessionDomains []string

	// Index is a read-only snapshot of existing note tags used for
	// relation inference. Nil disables relation lookups against existing
	// notes (forward references from wiki links are still emitted).
	Index *TagIndex
}

// Validate checks the context for caller mistakes.
func (c *Context) Validate() error {
	if c == nil {
		return nil
	}
	if c.SourceType != "" && !c.SourceType.Valid() {
		return ErrInvalidContext
	}
	for _, d := range c.SessionDomains {
		if d == "" {
			return ErrInvalidContext
		}
	}
	return nil
}

// NoteRef is a lightweight reference to an existing note.
type NoteRef struct {
	ID          string
	Title       string
	ContentType knowledge.ContentType
}

// TagIndex is a prefetched, read-only mapping from tag value to the notes
// carrying it. The pipeline builds it from the metadata store before
// classification so the classifier itself performs no collaborator calls.
type TagIndex struct {
	byValue map[string][]NoteRef
}

// NewTagIndex builds an index from tag value to note references.
func NewTagIndex(entries map[string][]NoteRef) *TagIndex {
	byValue := make(map[string][]NoteRef, len(entries))
	for value, refs := range entries {
		byValue[value] = append([]NoteRef(nil), refs...)
	}
	return &TagIndex{byValue: byValue}
}

// Lookup returns the notes tagged with the given value.
func (i *TagIndex) Lookup(value string) []NoteRef {
	if i == nil {
		return nil
	}
	return i.byValue[value]
}

// Observation is a single extracted semantic claim within the text.
type Observation struct {
	// Category labels the kind of claim.
	Category taxonomy.ObservationCategory `json:"category"`

	// Text is the context window around the match.
	Text string `json:"text"`

	// InferredTags are tags detected within the observation window.
	InferredTags []string `json:"inferred_tags,omitempty"`

	// Weight is the matched pattern's base weight, used in scoring.
	Weight float64 `json:"-"`
}

// Result is the output contract between the Classifier and the Router.
// It is ephemeral and never persisted directly.
type Result struct {
	ContentType      knowledge.ContentType `json:"content_type"`
	PrimaryDomain    string                `json:"primary_domain"`
	SecondaryDomains []string              `json:"secondary_domains,omitempty"`
	Observations     []Observation         `json:"observations"`
	Relations        []knowledge.Relation  `json:"relations,omitempty"`
	Tags             []knowledge.Tag       `json:"tags"`
	Title            string                `json:"title"`
	Confidence       float64               `json:"confidence"`
	Destination      string                `json:"destination"`

	// Fingerprint is the canonical feature key used to match learned
	// correction patterns.
	Fingerprint string `json:"fingerprint"`

	// SourceText is the original input, kept for filing.
	SourceText string `json:"-"`
}

// DestinationFor maps a content type to its canonical vault folder.
// Confidence governs whether to act, never where.
func DestinationFor(ct knowledge.ContentType) string {
	switch ct {
	case knowledge.ContentTypeMOC:
		return "2-mocs"
	case knowledge.ContentTypeProject:
		return "3-projects"
	case knowledge.ContentTypeArea:
		return "4-areas"
	case knowledge.ContentTypeResource:
		return "5-resources"
	default:
		return "1-notes"
	}
}
