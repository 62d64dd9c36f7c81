package taxonomy

import (
	"errors"
	"regexp"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
)

// Errors for taxonomy operations.
var (
	ErrInvalidThresholds = errors.New("invalid thresholds")
	ErrEmptyFingerprint  = errors.New("fingerprint cannot be empty")
)

// ObservationCategory labels a single extracted semantic claim.
type ObservationCategory string

const (
	CategoryTechnicalFinding ObservationCategory = "technical-finding"
	CategoryInsight          ObservationCategory = "insight"
	CategoryIssue            ObservationCategory = "issue"
	CategorySolution         ObservationCategory = "solution"
	CategoryPattern          ObservationCategory = "pattern"
	CategoryRequirement      ObservationCategory = "requirement"
	CategoryConstraint       ObservationCategory = "constraint"
)

// Domain is a named keyword list used for domain detection.
//
// Domains are kept in a fixed order; when two domains score equally the
// earlier one wins primary status. Keyword matching is case-insensitive
// on word boundaries.
type Domain struct {
	Name     string
	Keywords []string
}

// WeightedKeyword pairs a keyword with its contribution to a type score.
type WeightedKeyword struct {
	Text   string
	Weight float64
}

// ContentTypeSignature scores text against one content type.
//
// Keywords contribute their weight per occurrence; Patterns contribute
// their weight once per match. The highest-scoring signature wins; ties
// and no-match default to knowledge.ContentTypeNote.
type ContentTypeSignature struct {
	Type     knowledge.ContentType
	Keywords []WeightedKeyword
	Patterns []WeightedPattern
}

// WeightedPattern pairs a compiled regex with a score weight.
type WeightedPattern struct {
	Regex  *regexp.Regexp
	Weight float64
}

// InsightPattern detects one observation category in raw text.
// Patterns are evaluated in order; every match yields an observation.
type InsightPattern struct {
	Name     string
	Category ObservationCategory
	Regex    *regexp.Regexp
	Weight   float64
}

// TechnologyRule maps a technology tag to the keywords that indicate it.
type TechnologyRule struct {
	Tag      string
	Keywords []string
}

// ThresholdSet centralizes the router's confidence thresholds.
//
// Inbox items use a stricter auto threshold than conversation insights
// because batch filing is less interactively correctable.
type ThresholdSet struct {
	// AutoConversation is the auto-file threshold for conversation sources.
	AutoConversation float64 `koanf:"auto_conversation" json:"auto_conversation"`

	// AutoInbox is the auto-file threshold for inbox batch sources.
	AutoInbox float64 `koanf:"auto_inbox" json:"auto_inbox"`

	// Suggest is the lower bound for surfacing a suggestion.
	Suggest float64 `koanf:"suggest" json:"suggest"`
}

// Guard-rails for threshold self-tuning. Values outside this range are
// clamped, never applied.
const (
	ThresholdFloor   = 0.5
	ThresholdCeiling = 0.95
)

// DefaultThresholds returns the stock threshold set.
func DefaultThresholds() ThresholdSet {
	return ThresholdSet{
		AutoConversation: 0.80,
		AutoInbox:        0.85,
		Suggest:          0.60,
	}
}

// AutoFor returns the auto-file threshold for a source type.
// Manual sources use the conversation threshold.
func (t ThresholdSet) AutoFor(source knowledge.SourceType) float64 {
	if source == knowledge.SourceInbox {
		return t.AutoInbox
	}
	return t.AutoConversation
}

// Validate checks ordering and guard-rails.
func (t ThresholdSet) Validate() error {
	if t.Suggest < ThresholdFloor || t.Suggest > ThresholdCeiling {
		return ErrInvalidThresholds
	}
	if t.AutoConversation < t.Suggest || t.AutoInbox < t.Suggest {
		return ErrInvalidThresholds
	}
	if t.AutoConversation > ThresholdCeiling || t.AutoInbox > ThresholdCeiling {
		return ErrInvalidThresholds
	}
	return nil
}
