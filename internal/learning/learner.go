// Package learning implements the Pattern Learner: it consumes feedback
// events, creates or reinforces learning patterns, feeds confidence
// adjustments back into the taxonomy store, and self-tunes the routing
// thresholds within guard-rails.
package learning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/metadata"
	"github.com/fyrsmithlabs/vaultd/internal/taxonomy"
)

// Learner errors.
var (
	// ErrUnknownNote is returned for feedback referencing a note that
	// does not exist. The event is left unprocessed for manual replay.
	ErrUnknownNote = errors.New("unknown note")
)

const (
	// emaAlpha is the exponential-moving-average step for success rate.
	emaAlpha = 0.3

	// startConfidence is the initial pattern confidence.
	startConfidence = 0.5

	// MinPatternSuccessRate is the floor below which a pattern is
	// excluded from routing. Patterns are never deleted.
	MinPatternSuccessRate = 0.2

	// maxAdjustment caps how far a single pattern can swing the
	// classifier's confidence in one query.
	maxAdjustment = 0.2

	// adjustmentDamping scales (confidence x success_rate) into a delta.
	adjustmentDamping = 0.25

	// Threshold self-tuning: target approval rate for auto-filed notes,
	// tuning step, minimum sample size, and default lookback window.
	targetApproval   = 0.95
	tuningStep       = 0.25
	minRetuneSamples = 5
	defaultWindow    = 7 * 24 * time.Hour
)

// Learner turns feedback events into learning patterns and threshold
// updates. Writes to any (pattern_type, fingerprint) key are serialized
// through a keyed lock; learning on different fingerprints proceeds
// concurrently.
type Learner struct {
	store    *metadata.Store
	taxonomy *taxonomy.Store
	logger   *zap.Logger
	window   time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// LearnerOption configures a Learner.
type LearnerOption func(*Learner)

// WithRetuneWindow overrides the lookback window for threshold retuning.
func WithRetuneWindow(window time.Duration) LearnerOption {
	return func(l *Learner) {
		if window > 0 {
			l.window = window
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) LearnerOption {
	return func(l *Learner) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Learner over the metadata and taxonomy stores.
func New(store *metadata.Store, tax *taxonomy.Store, opts ...LearnerOption) (*Learner, error) {
	if store == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if tax == nil {
		return nil, fmt.Errorf("taxonomy store is required")
	}
	l := &Learner{
		store:    store,
		taxonomy: tax,
		logger:   zap.NewNop(),
		window:   defaultWindow,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// keyLock returns the mutex serializing writes for one pattern key.
func (l *Learner) keyLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// Learn consumes one feedback event: it applies the correction to the
// note's metadata, creates or reinforces the matching learning pattern,
// refreshes the taxonomy's adjustment table, and marks the event
// processed. Integrity failures leave the event unprocessed.
func (l *Learner) Learn(ctx context.Context, event *knowledge.FeedbackEvent) (*knowledge.LearningPattern, error) {
	if event == nil || event.NoteID == "" {
		return nil, knowledge.ErrEmptyNoteID
	}
	if !event.ActionType.Valid() {
		return nil, knowledge.ErrInvalidActionType
	}

	note, err := l.store.GetNote(ctx, event.NoteID)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNote, event.NoteID)
	}
	if err != nil {
		return nil, fmt.Errorf("load note: %w", err)
	}

	if err := l.applyCorrection(ctx, note, event); err != nil {
		return nil, err
	}

	patternType := patternTypeFor(event.ActionType)
	fingerprint := note.Fingerprint
	if fingerprint == "" {
		fingerprint = taxonomy.Fingerprint(note.ContentType, note.PrimaryDomain, nil)
	}
	key := string(patternType) + "|" + fingerprint

	lock := l.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	pattern, err := l.store.GetPattern(ctx, patternType, fingerprint)
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		pattern = newPattern(patternType, fingerprint, event)
	case err != nil:
		return nil, fmt.Errorf("load pattern: %w", err)
	default:
		reinforce(pattern, event)
	}

	if err := l.store.UpsertPattern(ctx, pattern); err != nil {
		return nil, err
	}

	delta := adjustmentFor(pattern)
	if err := l.taxonomy.SetAdjustment(fingerprint, delta); err != nil {
		return nil, err
	}

	if err := l.store.MarkFeedbackProcessed(ctx, event.ID); err != nil {
		return nil, err
	}
	event.Processed = true

	l.logger.Info("learned from feedback",
		zap.String("action", string(event.ActionType)),
		zap.String("pattern_type", string(patternType)),
		zap.String("fingerprint", fingerprint),
		zap.Int("usage_count", pattern.UsageCount),
		zap.Float64("success_rate", pattern.SuccessRate),
		zap.Float64("adjustment", delta),
	)

	return pattern, nil
}

// applyCorrection mutates the note record per the event's action.
func (l *Learner) applyCorrection(ctx context.Context, note *knowledge.Note, event *knowledge.FeedbackEvent) error {
	switch event.ActionType {
	case knowledge.ActionFileMoved:
		if event.CorrectedValue != "" {
			return l.store.UpdateNotePath(ctx, note.ID, event.CorrectedValue)
		}
	case knowledge.ActionTagChanged:
		if event.OriginalValue != "" && event.CorrectedValue != "" {
			return l.store.ReplaceTag(ctx, note.ID, event.OriginalValue, event.CorrectedValue)
		}
	case knowledge.ActionContentEdited:
		if event.CorrectedValue != "" {
			return l.store.UpdateNoteBody(ctx, note.ID, event.CorrectedValue)
		}
	case knowledge.ActionRelationAdded:
		if event.CorrectedValue != "" {
			return l.store.AddRelation(ctx, knowledge.Relation{
				SourceNoteID: note.ID,
				TargetLabel:  event.CorrectedValue,
				Type:         knowledge.RelationRelatesTo,
				Confidence:   1.0,
				Source:       knowledge.RelationSourceManual,
			})
		}
	case knowledge.ActionRelationRemoved:
		if event.OriginalValue != "" {
			return l.store.RemoveRelation(ctx, note.ID, event.OriginalValue, knowledge.RelationRelatesTo)
		}
	}
	return nil
}

// ConfidenceAdjustment returns the signed delta for a fingerprint,
// combining the strongest matching active pattern. Patterns below the
// success-rate floor contribute nothing.
func (l *Learner) ConfidenceAdjustment(ctx context.Context, fingerprint string) (float64, error) {
	patterns, err := l.store.ListPatterns(ctx)
	if err != nil {
		return 0, err
	}
	best := 0.0
	for _, p := range patterns {
		if p.Fingerprint != fingerprint {
			continue
		}
		delta := adjustmentFor(p)
		if abs(delta) > abs(best) {
			best = delta
		}
	}
	return best, nil
}

// Rehydrate rebuilds the taxonomy's adjustment table from persisted
// patterns, called once at startup.
func (l *Learner) Rehydrate(ctx context.Context) error {
	patterns, err := l.store.ListPatterns(ctx)
	if err != nil {
		return err
	}
	adjustments := make(map[string]float64, len(patterns))
	for _, p := range patterns {
		delta := adjustmentFor(p)
		if delta == 0 {
			continue
		}
		if existing, ok := adjustments[p.Fingerprint]; !ok || abs(delta) > abs(existing) {
			adjustments[p.Fingerprint] = delta
		}
	}
	l.taxonomy.LoadAdjustments(adjustments)
	return nil
}

// ReplayUnprocessed consumes pending feedback events, oldest first.
// Events failing with integrity errors stay unprocessed; other events
// keep flowing.
func (l *Learner) ReplayUnprocessed(ctx context.Context, limit int) (int, error) {
	events, err := l.store.UnprocessedFeedback(ctx, limit)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, e := range events {
		if _, err := l.Learn(ctx, e); err != nil {
			l.logger.Warn("feedback left unprocessed",
				zap.String("event_id", e.ID),
				zap.Error(err),
			)
			continue
		}
		applied++
	}
	return applied, nil
}

// RetuneThresholds recomputes the auto threshold for one source type
// from the rolling approval rate of past auto-file decisions. Absence of
// feedback counts as implicit approval. Results are clamped to the
// guard-rails with a logged warning, never an error.
func (l *Learner) RetuneThresholds(ctx context.Context, source knowledge.SourceType) (taxonomy.ThresholdSet, error) {
	thresholds := l.taxonomy.Thresholds()

	autoFiled, corrected, err := l.store.AutoFileStats(ctx, source, time.Now().Add(-l.window))
	if err != nil {
		return thresholds, err
	}
	if autoFiled < minRetuneSamples {
		l.logger.Debug("not enough auto-filed samples to retune",
			zap.String("source", string(source)),
			zap.Int("auto_filed", autoFiled),
		)
		return thresholds, nil
	}

	approval := 1.0 - float64(corrected)/float64(autoFiled)
	delta := (targetApproval - approval) * tuningStep

	auto := thresholds.AutoFor(source) + delta
	clamped := clampThreshold(auto)
	if clamped != auto {
		l.logger.Warn("auto threshold clamped to guard-rails",
			zap.String("source", string(source)),
			zap.Float64("proposed", auto),
			zap.Float64("clamped", clamped),
		)
	}

	if source == knowledge.SourceInbox {
		thresholds.AutoInbox = clamped
	} else {
		thresholds.AutoConversation = clamped
	}

	// Keep the suggest band below auto with a minimum width.
	maxSuggest := clamped - 0.05
	if thresholds.Suggest > maxSuggest {
		thresholds.Suggest = maxSuggest
	}
	if thresholds.Suggest < taxonomy.ThresholdFloor {
		thresholds.Suggest = taxonomy.ThresholdFloor
	}

	if err := l.taxonomy.SetThresholds(thresholds); err != nil {
		return thresholds, err
	}

	l.logger.Info("thresholds retuned",
		zap.String("source", string(source)),
		zap.Float64("approval_rate", approval),
		zap.Float64("auto_threshold", clamped),
		zap.Float64("suggest_threshold", thresholds.Suggest),
	)
	return thresholds, nil
}

// newPattern creates a pattern from its first triggering event.
func newPattern(patternType knowledge.PatternType, fingerprint string, event *knowledge.FeedbackEvent) *knowledge.LearningPattern {
	now := time.Now()
	return &knowledge.LearningPattern{
		ID:          uuid.New().String(),
		PatternType: patternType,
		Fingerprint: fingerprint,
		Data: map[string]string{
			"action":    string(event.ActionType),
			"original":  event.OriginalValue,
			"corrected": event.CorrectedValue,
			"signal":    signalFor(event.ActionType),
		},
		Confidence:  startConfidence,
		UsageCount:  1,
		SuccessRate: 1.0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// reinforce updates a pattern from a subsequent matching event. A
// correction that repeats the pattern's recorded outcome validates it;
// a conflicting correction penalizes it.
func reinforce(p *knowledge.LearningPattern, event *knowledge.FeedbackEvent) {
	validates := p.Data["corrected"] == event.CorrectedValue && p.Data["action"] == string(event.ActionType)

	signal := 0.0
	if validates {
		signal = 1.0
	}
	p.UsageCount++
	p.SuccessRate = (1-emaAlpha)*p.SuccessRate + emaAlpha*signal

	if validates {
		p.Confidence += 0.05
		if p.Confidence > 0.95 {
			p.Confidence = 0.95
		}
	} else {
		p.Confidence -= 0.1
		if p.Confidence < 0.05 {
			p.Confidence = 0.05
		}
		// The outcome drifted; record the latest correction.
		p.Data["original"] = event.OriginalValue
		p.Data["corrected"] = event.CorrectedValue
	}
	p.UpdatedAt = time.Now()
}

// adjustmentFor converts a pattern into a signed confidence delta.
// Correction-born patterns dampen the classifier (the original
// classification was wrong); relation additions reinforce it. A single
// pattern can never swing confidence by more than maxAdjustment.
func adjustmentFor(p *knowledge.LearningPattern) float64 {
	if p.SuccessRate < MinPatternSuccessRate {
		return 0
	}
	magnitude := adjustmentDamping * p.Confidence * p.SuccessRate
	if magnitude > maxAdjustment {
		magnitude = maxAdjustment
	}
	if p.Data["signal"] == "reinforce" {
		return magnitude
	}
	return -magnitude
}

// signalFor maps a correction kind to its adjustment direction.
func signalFor(action knowledge.ActionType) string {
	if action == knowledge.ActionRelationAdded {
		return "reinforce"
	}
	return "dampen"
}

// patternTypeFor maps a correction kind to the pattern it feeds.
func patternTypeFor(action knowledge.ActionType) knowledge.PatternType {
	switch action {
	case knowledge.ActionFileMoved:
		return knowledge.PatternFiling
	case knowledge.ActionTagChanged:
		return knowledge.PatternTagging
	case knowledge.ActionRelationAdded, knowledge.ActionRelationRemoved:
		return knowledge.PatternRelation
	default:
		return knowledge.PatternContentType
	}
}

func clampThreshold(v float64) float64 {
	if v < taxonomy.ThresholdFloor {
		return taxonomy.ThresholdFloor
	}
	if v > taxonomy.ThresholdCeiling {
		return taxonomy.ThresholdCeiling
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
