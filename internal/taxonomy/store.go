package taxonomy

import (
	"sync"
)

// Store is the Taxonomy & Pattern Store: static rule tables plus the
// learned confidence-adjustment table and the global threshold set.
//
// Rule tables are immutable after construction. Learned adjustments and
// thresholds are mutated by the Pattern Learner under the store's lock;
// the Classifier only ever reads an immutable Snapshot. This keeps the
// classifier a pure function over its inputs.
type Store struct {
	domains      []Domain
	signatures   []ContentTypeSignature
	insights     []InsightPattern
	technologies []TechnologyRule

	mu          sync.RWMutex
	adjustments map[string]float64
	thresholds  ThresholdSet
}

// Option configures a Store.
type Option func(*Store)

// WithDomains replaces the built-in domain lists.
func WithDomains(domains []Domain) Option {
	return func(s *Store) {
		if len(domains) > 0 {
			s.domains = domains
		}
	}
}

// WithThresholds sets the initial threshold set.
func WithThresholds(t ThresholdSet) Option {
	return func(s *Store) { s.thresholds = t }
}

// WithInsightPatterns replaces the built-in observation patterns.
func WithInsightPatterns(patterns []InsightPattern) Option {
	return func(s *Store) {
		if len(patterns) > 0 {
			s.insights = patterns
		}
	}
}

// NewStore creates a store with the built-in rule tables and default
// thresholds.
func NewStore(opts ...Option) *Store {
	s := &Store{
		domains:      DefaultDomains(),
		signatures:   DefaultContentTypeSignatures(),
		insights:     DefaultInsightPatterns(),
		technologies: DefaultTechnologyRules(),
		adjustments:  make(map[string]float64),
		thresholds:   DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot is an immutable read view handed to the Classifier.
//
// Rule slices are shared (never mutated after construction); the
// adjustment map and thresholds are copied at snapshot time so a
// classification sees one consistent state.
type Snapshot struct {
	Domains      []Domain
	Signatures   []ContentTypeSignature
	Insights     []InsightPattern
	Technologies []TechnologyRule
	Thresholds   ThresholdSet

	adjustments map[string]float64
}

// AdjustmentFor returns the learned confidence delta for a fingerprint,
// or zero when none is known.
func (s *Snapshot) AdjustmentFor(fingerprint string) float64 {
	if s == nil || s.adjustments == nil {
		return 0
	}
	return s.adjustments[fingerprint]
}

// Snapshot returns a consistent read view of the store.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adj := make(map[string]float64, len(s.adjustments))
	for k, v := range s.adjustments {
		adj[k] = v
	}

	return &Snapshot{
		Domains:      s.domains,
		Signatures:   s.signatures,
		Insights:     s.insights,
		Technologies: s.technologies,
		Thresholds:   s.thresholds,
		adjustments:  adj,
	}
}

// SetAdjustment upserts a learned confidence adjustment.
func (s *Store) SetAdjustment(fingerprint string, delta float64) error {
	if fingerprint == "" {
		return ErrEmptyFingerprint
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustments[fingerprint] = delta
	return nil
}

// LoadAdjustments replaces the adjustment table, used to rehydrate
// learned state from the metadata store at startup.
func (s *Store) LoadAdjustments(adjustments map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustments = make(map[string]float64, len(adjustments))
	for k, v := range adjustments {
		s.adjustments[k] = v
	}
}

// Thresholds returns the current threshold set.
func (s *Store) Thresholds() ThresholdSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// SetThresholds replaces the threshold set after validation.
func (s *Store) SetThresholds(t ThresholdSet) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds = t
	return nil
}
