// Package suggest proposes connections between a seed (an existing note
// or free text) and its nearest neighbors, blending vector similarity
// with tag and domain overlap from the metadata store.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/metadata"
	"github.com/fyrsmithlabs/vaultd/internal/vectorstore"
)

// Suggester errors.
var (
	// ErrNoteNotFound is returned when the seed note does not exist.
	ErrNoteNotFound = errors.New("note not found")
)

const (
	// defaultLimit caps the number of returned suggestions.
	defaultLimit = 5

	// candidateMultiplier widens the vector search so overlap scoring
	// has candidates to rerank.
	candidateMultiplier = 3

	// minSuggestionScore drops weak candidates entirely.
	minSuggestionScore = 0.35

	// mocOverlapThreshold is the tag overlap at which a map-of-content
	// neighbor is proposed as a part_of parent instead of relates_to.
	mocOverlapThreshold = 2
)

// Suggestion is one proposed connection.
type Suggestion struct {
	// TargetNoteID is the proposed connection target.
	TargetNoteID string `json:"target_note_id"`

	// TargetTitle is the target's title for display.
	TargetTitle string `json:"target_title"`

	// Type is the proposed relation kind.
	Type knowledge.RelationType `json:"relationship_type"`

	// Score blends vector similarity with tag and domain overlap.
	Score float64 `json:"score"`

	// SharedTags are the tag values both notes carry.
	SharedTags []string `json:"shared_tags,omitempty"`
}

// Suggester finds connection candidates for existing notes.
type Suggester struct {
	store   *metadata.Store
	vectors vectorstore.Store
	logger  *zap.Logger
}

// Option configures a Suggester.
type Option func(*Suggester)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Suggester) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Suggester over the metadata and vector stores.
func New(store *metadata.Store, vectors vectorstore.Store, opts ...Option) (*Suggester, error) {
	if store == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	s := &Suggester{
		store:   store,
		vectors: vectors,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Suggest returns up to limit connection candidates ordered by
// descending score. The seed is either an existing note's ID, in which
// case the note's body drives the search and its tags, domain, and
// existing relations shape the ranking, or free text, which is searched
// directly. minScore <= 0 falls back to the default floor.
func (s *Suggester) Suggest(ctx context.Context, seed string, limit int, minScore float64) ([]Suggestion, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if minScore <= 0 {
		minScore = minSuggestionScore
	}

	query := seed
	seedDomain := ""
	tagSet := make(map[string]struct{})
	excluded := make(map[string]struct{})

	// Only a UUID can name a note; anything else is a text seed.
	if _, idErr := uuid.Parse(seed); idErr == nil {
		note, err := s.store.GetNote(ctx, seed)
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, seed)
		}
		if err != nil {
			return nil, fmt.Errorf("load note: %w", err)
		}
		query = note.Body
		seedDomain = note.PrimaryDomain
		excluded[seed] = struct{}{}

		seedTags, err := s.store.TagsForNote(ctx, seed)
		if err != nil {
			return nil, fmt.Errorf("load tags: %w", err)
		}
		for _, tag := range seedTags {
			tagSet[tag.Value] = struct{}{}
		}

		related, err := s.store.RelationsForNote(ctx, seed)
		if err != nil {
			return nil, fmt.Errorf("load relations: %w", err)
		}
		for _, rel := range related {
			if rel.TargetNoteID != "" {
				excluded[rel.TargetNoteID] = struct{}{}
			}
		}
	}

	hits, err := s.vectors.Search(ctx, query, limit*candidateMultiplier)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	suggestions := make([]Suggestion, 0, len(hits))
	for _, hit := range hits {
		if _, skip := excluded[hit.ID]; skip {
			continue
		}

		candidate, err := s.store.GetNote(ctx, hit.ID)
		if errors.Is(err, metadata.ErrNotFound) {
			// Vector entry outlived its metadata row; skip it.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load candidate: %w", err)
		}

		candidateTags, err := s.store.TagsForNote(ctx, hit.ID)
		if err != nil {
			return nil, fmt.Errorf("load candidate tags: %w", err)
		}
		shared := sharedValues(tagSet, candidateTags)

		score := blendScore(float64(hit.Score), len(shared), seedDomain != "" && seedDomain == candidate.PrimaryDomain)
		if score < minScore {
			continue
		}

		relType := knowledge.RelationRelatesTo
		if candidate.ContentType == knowledge.ContentTypeMOC && len(shared) >= mocOverlapThreshold {
			relType = knowledge.RelationPartOf
		}

		suggestions = append(suggestions, Suggestion{
			TargetNoteID: candidate.ID,
			TargetTitle:  candidate.Title,
			Type:         relType,
			Score:        score,
			SharedTags:   shared,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}

	s.logger.Debug("connection suggestions computed",
		zap.String("seed", seed),
		zap.Int("candidates", len(hits)),
		zap.Int("suggestions", len(suggestions)),
	)
	return suggestions, nil
}

// blendScore combines vector similarity (70%) with tag overlap (20%,
// saturating at three shared tags) and a same-domain bonus (10%).
func blendScore(similarity float64, sharedTags int, sameDomain bool) float64 {
	overlap := float64(sharedTags) / 3.0
	if overlap > 1 {
		overlap = 1
	}
	score := 0.7*similarity + 0.2*overlap
	if sameDomain {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

func sharedValues(seed map[string]struct{}, tags []knowledge.Tag) []string {
	var shared []string
	seen := make(map[string]struct{})
	for _, tag := range tags {
		if _, ok := seed[tag.Value]; !ok {
			continue
		}
		if _, dup := seen[tag.Value]; dup {
			continue
		}
		seen[tag.Value] = struct{}{}
		shared = append(shared, tag.Value)
	}
	sort.Strings(shared)
	return shared
}
