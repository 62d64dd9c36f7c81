package inbox

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// defaultDebounce is how long a file must stay quiet before processing,
// so half-written captures are not picked up mid-copy.
const defaultDebounce = 2 * time.Second

// Watcher drives the Processor from filesystem events on the inbox
// directory. Create and write events are debounced per batch: each event
// resets the timer, and one ProcessAll run fires once the directory has
// been quiet for the debounce window.
type Watcher struct {
	processor *Processor
	logger    *zap.Logger
	debounce  time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides the quiet window before a batch run.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a Watcher around an inbox processor.
func NewWatcher(processor *Processor, opts ...WatcherOption) (*Watcher, error) {
	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	w := &Watcher{
		processor: processor,
		logger:    zap.NewNop(),
		debounce:  defaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches the inbox until the context is canceled. An initial batch
// drains anything already present before events start arriving.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.processor.dir); err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}

	w.runBatch(ctx)

	runs := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			w.cancelTimer()
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isCaptureFile(filepath.Base(event.Name)) {
				continue
			}
			w.scheduleBatch(runs)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watch error", zap.Error(err))

		case <-runs:
			w.runBatch(ctx)
		}
	}
}

// scheduleBatch (re)arms the debounce timer.
func (w *Watcher) scheduleBatch(runs chan<- struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case runs <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) cancelTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) runBatch(ctx context.Context) {
	report, err := w.processor.ProcessAll(ctx)
	if err != nil {
		w.logger.Error("inbox batch failed", zap.Error(err))
		return
	}
	if report.Processed > 0 {
		w.logger.Info("inbox watcher batch complete",
			zap.Int("processed", report.Processed),
			zap.Int("filed", report.Filed),
			zap.Int("failed", report.Failed),
		)
	}
}
