// Package inbox processes capture files dropped into the inbox
// directory, both in batch and continuously via a filesystem watcher.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/pipeline"
	"github.com/fyrsmithlabs/vaultd/internal/router"
)

// Inbox errors.
var (
	// ErrNotDirectory is returned when the inbox path is not a directory.
	ErrNotDirectory = errors.New("inbox path is not a directory")
)

// defaultConcurrency bounds parallel item processing.
const defaultConcurrency = 4

// ItemReport records what happened to one inbox file.
type ItemReport struct {
	// File is the inbox-relative filename.
	File string `json:"file"`

	// Action is the routing decision, empty when the item errored.
	Action router.Action `json:"action,omitempty"`

	// NoteID is set when the item was auto-filed.
	NoteID string `json:"note_id,omitempty"`

	// Path is the vault path of the filed note.
	Path string `json:"path,omitempty"`

	// Error is the failure message; a failed item never blocks the rest
	// of the batch.
	Error string `json:"error,omitempty"`
}

// Report summarizes one batch run.
type Report struct {
	Processed int          `json:"processed"`
	Filed     int          `json:"filed"`
	Suggested int          `json:"suggested"`
	Ignored   int          `json:"ignored"`
	Failed    int          `json:"failed"`
	Items     []ItemReport `json:"items"`
}

// Processor drains an inbox directory through the pipeline.
type Processor struct {
	dir         string
	service     *pipeline.Service
	logger      *zap.Logger
	concurrency int
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithConcurrency bounds parallel item processing.
func WithConcurrency(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor creates a Processor over an inbox directory.
func NewProcessor(dir string, service *pipeline.Service, opts ...ProcessorOption) (*Processor, error) {
	if dir == "" {
		return nil, fmt.Errorf("inbox directory is required")
	}
	if service == nil {
		return nil, fmt.Errorf("pipeline service is required")
	}
	p := &Processor{
		dir:         dir,
		service:     service,
		logger:      zap.NewNop(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ProcessAll processes every capture file currently in the inbox.
// Items run concurrently up to the configured limit; one item's failure
// is recorded in its report and never aborts the batch. Auto-filed
// items are removed from the inbox.
func (p *Processor) ProcessAll(ctx context.Context) (*Report, error) {
	files, err := p.listCaptureFiles()
	if err != nil {
		return nil, err
	}

	reports := make([]ItemReport, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, name := range files {
		g.Go(func() error {
			reports[i] = p.processOne(gctx, name)
			return nil
		})
	}
	// Worker funcs never return errors; Wait only surfaces ctx cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Items: reports, Processed: len(reports)}
	for _, item := range reports {
		switch {
		case item.Error != "":
			report.Failed++
		case item.Action == router.ActionAutoFile:
			report.Filed++
		case item.Action == router.ActionSuggest:
			report.Suggested++
		default:
			report.Ignored++
		}
	}

	p.logger.Info("inbox batch processed",
		zap.Int("processed", report.Processed),
		zap.Int("filed", report.Filed),
		zap.Int("suggested", report.Suggested),
		zap.Int("ignored", report.Ignored),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// processOne runs a single inbox file through the pipeline.
func (p *Processor) processOne(ctx context.Context, name string) ItemReport {
	report := ItemReport{File: name}

	content, err := os.ReadFile(filepath.Join(p.dir, name))
	if err != nil {
		report.Error = fmt.Sprintf("read: %v", err)
		return report
	}

	outcome, err := p.service.Process(ctx, string(content), pipeline.Options{
		Source: knowledge.SourceInbox,
	})
	if err != nil {
		report.Error = err.Error()
		return report
	}

	report.Action = outcome.Action
	report.NoteID = outcome.NoteID
	report.Path = outcome.Path

	if outcome.Action == router.ActionAutoFile {
		if err := os.Remove(filepath.Join(p.dir, name)); err != nil {
			// The note is filed; a leftover inbox file is only noise.
			p.logger.Warn("failed to remove filed inbox item",
				zap.String("file", name),
				zap.Error(err),
			)
		}
	}
	return report
}

// listCaptureFiles returns the markdown and text files in the inbox,
// sorted for deterministic batch order.
func (p *Processor) listCaptureFiles() ([]string, error) {
	info, err := os.Stat(p.dir)
	if err != nil {
		return nil, fmt.Errorf("stat inbox: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, p.dir)
	}

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !isCaptureFile(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

func isCaptureFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".txt", ".markdown":
		return true
	default:
		return false
	}
}
