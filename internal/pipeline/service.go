// Package pipeline orchestrates the capture flow: classification,
// confidence routing, filing, feedback learning, and connection
// suggestions behind one service facade shared by the MCP tools, the
// HTTP API, and the CLI.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/classifier"
	"github.com/fyrsmithlabs/vaultd/internal/filer"
	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/learning"
	"github.com/fyrsmithlabs/vaultd/internal/metadata"
	"github.com/fyrsmithlabs/vaultd/internal/router"
	"github.com/fyrsmithlabs/vaultd/internal/suggest"
	"github.com/fyrsmithlabs/vaultd/internal/taxonomy"
)

// tagIndexLimit caps how many tag rows are prefetched per classification.
const tagIndexLimit = 5000

// Options carries the per-call classification context.
type Options struct {
	// Source is where the text came from. Empty defaults to conversation.
	Source knowledge.SourceType

	// SessionDomains bias domain detection toward the caller's session.
	SessionDomains []string
}

func (o Options) source() knowledge.SourceType {
	if o.Source == "" {
		return knowledge.SourceConversation
	}
	return o.Source
}

// Outcome reports what the pipeline did with one piece of text.
type Outcome struct {
	Action      router.Action         `json:"action"`
	Reason      string                `json:"reason"`
	Preview     string                `json:"preview,omitempty"`
	NoteID      string                `json:"note_id,omitempty"`
	Path        string                `json:"path,omitempty"`
	Title       string                `json:"title,omitempty"`
	ContentType knowledge.ContentType `json:"content_type"`
	Domain      string                `json:"domain,omitempty"`
	Confidence  float64               `json:"confidence"`
}

// Service wires the pipeline stages together.
type Service struct {
	classifier *classifier.Classifier
	taxonomy   *taxonomy.Store
	store      *metadata.Store
	filer      *filer.Filer
	learner    *learning.Learner
	suggester  *suggest.Suggester
	logger     *zap.Logger
	metrics    *Metrics
}

// Deps lists the collaborators a Service needs.
type Deps struct {
	Classifier *classifier.Classifier
	Taxonomy   *taxonomy.Store
	Store      *metadata.Store
	Filer      *filer.Filer
	Learner    *learning.Learner
	Suggester  *suggest.Suggester
	Logger     *zap.Logger
	Metrics    *Metrics
}

// New creates the pipeline service.
func New(deps Deps) (*Service, error) {
	if deps.Classifier == nil || deps.Taxonomy == nil || deps.Store == nil {
		return nil, fmt.Errorf("classifier, taxonomy, and metadata store are required")
	}
	if deps.Filer == nil {
		return nil, fmt.Errorf("filer is required")
	}
	if deps.Learner == nil {
		return nil, fmt.Errorf("learner is required")
	}
	if deps.Suggester == nil {
		return nil, fmt.Errorf("suggester is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{
		classifier: deps.Classifier,
		taxonomy:   deps.Taxonomy,
		store:      deps.Store,
		filer:      deps.Filer,
		learner:    deps.Learner,
		suggester:  deps.Suggester,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}, nil
}

// Classify runs classification and routing without filing anything.
// Used for previews and dry runs.
func (s *Service) Classify(ctx context.Context, text string, opts Options) (*classifier.Result, router.Decision, error) {
	result, err := s.classify(ctx, text, opts)
	if err != nil {
		return nil, router.Decision{}, err
	}
	decision := router.Route(result, opts.source(), s.taxonomy.Thresholds())
	return result, decision, nil
}

// Process runs the full capture flow: classify, route, and file when the
// decision allows it. Every decision is appended to the processing log.
func (s *Service) Process(ctx context.Context, text string, opts Options) (*Outcome, error) {
	source := opts.source()

	result, err := s.classify(ctx, text, opts)
	if err != nil {
		return nil, err
	}

	decision := router.Route(result, source, s.taxonomy.Thresholds())
	s.metrics.recordDecision(string(decision.Action), string(source), result.Confidence)

	outcome := &Outcome{
		Action:      decision.Action,
		Reason:      decision.Reason,
		Preview:     decision.Preview,
		Title:       result.Title,
		ContentType: result.ContentType,
		Domain:      result.PrimaryDomain,
		Confidence:  result.Confidence,
	}

	if decision.Action == router.ActionAutoFile {
		note, err := s.filer.File(ctx, result, source)
		if err != nil {
			s.metrics.recordFilingFailure()
			return nil, err
		}
		outcome.NoteID = note.ID
		outcome.Path = note.Path
	}

	logEntry := metadata.LogEntry{
		NoteID:     outcome.NoteID,
		SourceType: source,
		Decision:   string(decision.Action),
		Confidence: result.Confidence,
		Reason:     decision.Reason,
	}
	if err := s.store.AppendLog(ctx, logEntry); err != nil {
		// The note is already durable; a log failure is not worth
		// rolling it back.
		s.logger.Warn("processing log append failed", zap.Error(err))
	}

	s.logger.Info("text processed",
		zap.String("action", string(decision.Action)),
		zap.String("source", string(source)),
		zap.Float64("confidence", result.Confidence),
		zap.String("note_id", outcome.NoteID),
	)
	return outcome, nil
}

// FileNow classifies text and files it regardless of the routing
// decision. Manual filing surfaces use it when the user has already
// decided the text is worth keeping. The processing log records the
// decision as manual_file so it never feeds implicit-approval retuning.
func (s *Service) FileNow(ctx context.Context, text string, opts Options) (*Outcome, error) {
	source := opts.source()

	result, err := s.classify(ctx, text, opts)
	if err != nil {
		return nil, err
	}

	note, err := s.filer.File(ctx, result, source)
	if err != nil {
		s.metrics.recordFilingFailure()
		return nil, err
	}
	s.metrics.recordDecision("manual_file", string(source), result.Confidence)

	outcome := &Outcome{
		Action:      router.ActionAutoFile,
		Reason:      "filed on request",
		NoteID:      note.ID,
		Path:        note.Path,
		Title:       result.Title,
		ContentType: result.ContentType,
		Domain:      result.PrimaryDomain,
		Confidence:  result.Confidence,
	}

	logEntry := metadata.LogEntry{
		NoteID:     note.ID,
		SourceType: source,
		Decision:   "manual_file",
		Confidence: result.Confidence,
		Reason:     outcome.Reason,
	}
	if err := s.store.AppendLog(ctx, logEntry); err != nil {
		s.logger.Warn("processing log append failed", zap.Error(err))
	}

	s.logger.Info("text filed on request",
		zap.String("source", string(source)),
		zap.Float64("confidence", result.Confidence),
		zap.String("note_id", note.ID),
	)
	return outcome, nil
}

// classify builds the tag index snapshot and runs the classifier.
func (s *Service) classify(ctx context.Context, text string, opts Options) (*classifier.Result, error) {
	index, err := s.buildTagIndex(ctx)
	if err != nil {
		return nil, err
	}
	return s.classifier.Classify(text, &classifier.Context{
		SourceType:     opts.source(),
		SessionDomains: opts.SessionDomains,
		Index:          index,
	})
}

func (s *Service) buildTagIndex(ctx context.Context) (*classifier.TagIndex, error) {
	entries, err := s.store.TagIndexEntries(ctx, tagIndexLimit)
	if err != nil {
		return nil, fmt.Errorf("build tag index: %w", err)
	}
	byValue := make(map[string][]classifier.NoteRef)
	for _, e := range entries {
		byValue[e.Value] = append(byValue[e.Value], classifier.NoteRef{
			ID:          e.NoteID,
			Title:       e.NoteTitle,
			ContentType: e.ContentType,
		})
	}
	return classifier.NewTagIndex(byValue), nil
}

// Feedback records a user correction and hands it to the learner.
func (s *Service) Feedback(ctx context.Context, noteID string, action knowledge.ActionType, original, corrected string) (*knowledge.LearningPattern, error) {
	event, err := knowledge.NewFeedbackEvent(noteID, action, original, corrected)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertFeedback(ctx, event); err != nil {
		return nil, fmt.Errorf("record feedback: %w", err)
	}
	return s.learner.Learn(ctx, event)
}

// SuggestConnections proposes related notes for an existing note or a
// piece of free text. minSimilarity <= 0 uses the suggester's default
// score floor.
func (s *Service) SuggestConnections(ctx context.Context, seed string, limit int, minSimilarity float64) ([]suggest.Suggestion, error) {
	return s.suggester.Suggest(ctx, seed, limit, minSimilarity)
}

// Retune recomputes the auto thresholds from recent feedback for both
// source types and returns the resulting set.
func (s *Service) Retune(ctx context.Context) (taxonomy.ThresholdSet, error) {
	if _, err := s.learner.RetuneThresholds(ctx, knowledge.SourceConversation); err != nil {
		return s.taxonomy.Thresholds(), err
	}
	return s.learner.RetuneThresholds(ctx, knowledge.SourceInbox)
}

// Thresholds returns the current routing thresholds.
func (s *Service) Thresholds() taxonomy.ThresholdSet {
	return s.taxonomy.Thresholds()
}
