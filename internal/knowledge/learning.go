package knowledge

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors for learning records.
var (
	ErrInvalidPatternType = errors.New("invalid pattern type")
	ErrInvalidActionType  = errors.New("invalid action type")
	ErrEmptyNoteID        = errors.New("note ID cannot be empty")
	ErrInvalidSuccessRate = errors.New("success rate must be between 0.0 and 1.0")
)

// PatternType categorizes what a learned pattern corrects.
type PatternType string

const (
	PatternFiling      PatternType = "filing"
	PatternTagging     PatternType = "tagging"
	PatternRelation    PatternType = "relation"
	PatternContentType PatternType = "content_type"
)

// Valid reports whether the pattern type is known.
func (p PatternType) Valid() bool {
	switch p {
	case PatternFiling, PatternTagging, PatternRelation, PatternContentType:
		return true
	}
	return false
}

// ActionType identifies the kind of user correction.
type ActionType string

const (
	ActionFileMoved       ActionType = "file_moved"
	ActionTagChanged      ActionType = "tag_changed"
	ActionRelationAdded   ActionType = "relation_added"
	ActionRelationRemoved ActionType = "relation_removed"
	ActionContentEdited   ActionType = "content_edited"
)

// Valid reports whether the action type is known.
func (a ActionType) Valid() bool {
	switch a {
	case ActionFileMoved, ActionTagChanged, ActionRelationAdded, ActionRelationRemoved, ActionContentEdited:
		return true
	}
	return false
}

// LearningPattern is a generalized correction signal.
//
// A pattern is created on the first feedback event matching no existing
// (pattern_type, fingerprint) pair and reinforced on every subsequent
// match: usage count increments and the success rate moves by
// exponential moving average. Patterns are never deleted; once the
// success rate falls below the learner's floor they are excluded from
// routing but kept for audit.
type LearningPattern struct {
	// ID is the unique pattern identifier (UUID).
	ID string `json:"id"`

	// PatternType categorizes the correction.
	PatternType PatternType `json:"pattern_type"`

	// Fingerprint is the canonical feature key of the original
	// (incorrect) classification.
	Fingerprint string `json:"fingerprint"`

	// Data describes the triggering feature set and corrected outcome.
	Data map[string]string `json:"pattern_data"`

	// Confidence is the reliability of this pattern (0.0-1.0).
	Confidence float64 `json:"confidence"`

	// UsageCount is monotonically non-decreasing.
	UsageCount int `json:"usage_count"`

	// SuccessRate tracks how often applying the pattern was validated.
	SuccessRate float64 `json:"success_rate"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the pattern's invariants.
func (p *LearningPattern) Validate() error {
	if !p.PatternType.Valid() {
		return ErrInvalidPatternType
	}
	if p.Fingerprint == "" {
		return errors.New("fingerprint cannot be empty")
	}
	if p.Confidence < 0.0 || p.Confidence > 1.0 {
		return ErrInvalidConfidence
	}
	if p.SuccessRate < 0.0 || p.SuccessRate > 1.0 {
		return ErrInvalidSuccessRate
	}
	if p.UsageCount < 0 {
		return errors.New("usage count cannot be negative")
	}
	return nil
}

// FeedbackEvent is an immutable record of a user correction.
//
// Events are append-only; the Pattern Learner consumes each exactly once
// and marks it processed.
type FeedbackEvent struct {
	// ID is the unique event identifier (UUID).
	ID string `json:"id"`

	// NoteID identifies the corrected note.
	NoteID string `json:"note_id"`

	// ActionType is the kind of correction.
	ActionType ActionType `json:"action_type"`

	// OriginalValue is the value before the correction.
	OriginalValue string `json:"original_value"`

	// CorrectedValue is the value after the correction.
	CorrectedValue string `json:"corrected_value"`

	// Processed is set once the Pattern Learner has consumed the event.
	Processed bool `json:"processed"`

	CreatedAt time.Time `json:"created_at"`
}

// NewFeedbackEvent creates an unprocessed feedback event.
func NewFeedbackEvent(noteID string, action ActionType, original, corrected string) (*FeedbackEvent, error) {
	if noteID == "" {
		return nil, ErrEmptyNoteID
	}
	if !action.Valid() {
		return nil, ErrInvalidActionType
	}
	return &FeedbackEvent{
		ID:             uuid.New().String(),
		NoteID:         noteID,
		ActionType:     action,
		OriginalValue:  original,
		CorrectedValue: corrected,
		CreatedAt:      time.Now(),
	}, nil
}
