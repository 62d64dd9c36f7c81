package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/classifier"
	"github.com/fyrsmithlabs/vaultd/internal/config"
	"github.com/fyrsmithlabs/vaultd/internal/embeddings"
	"github.com/fyrsmithlabs/vaultd/internal/filer"
	"github.com/fyrsmithlabs/vaultd/internal/inbox"
	"github.com/fyrsmithlabs/vaultd/internal/learning"
	"github.com/fyrsmithlabs/vaultd/internal/logging"
	"github.com/fyrsmithlabs/vaultd/internal/metadata"
	"github.com/fyrsmithlabs/vaultd/internal/pipeline"
	"github.com/fyrsmithlabs/vaultd/internal/suggest"
	"github.com/fyrsmithlabs/vaultd/internal/taxonomy"
	"github.com/fyrsmithlabs/vaultd/internal/vault"
	"github.com/fyrsmithlabs/vaultd/internal/vectorstore"
)

// app holds the wired service graph for one process.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	service  *pipeline.Service
	store    *metadata.Store
	vectors  vectorstore.Store
	provider embeddings.Provider
	inbox    *inbox.Processor
}

// buildApp loads configuration and wires every collaborator. Learned
// confidence adjustments are rehydrated from the metadata store so the
// classifier starts with what past feedback taught it.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	vaultPath, err := config.ExpandPath(cfg.Vault.Path)
	if err != nil {
		return nil, err
	}
	v, err := vault.New(vaultPath, vault.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	dbPath, err := config.ExpandPath(cfg.Metadata.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create metadata directory: %w", err)
	}
	store, err := metadata.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:          cfg.Embeddings.Provider,
		Model:             cfg.Embeddings.Model,
		BaseURL:           cfg.Embeddings.BaseURL,
		RequestsPerSecond: cfg.Embeddings.RequestsPerSecond,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}

	vectors, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       cfg.Vectorstore.Path,
		Collection: cfg.Vectorstore.Collection,
		Compress:   cfg.Vectorstore.Compress,
	}, provider, logger)
	if err != nil {
		provider.Close()
		store.Close()
		return nil, fmt.Errorf("create vector store: %w", err)
	}

	tax := taxonomy.NewStore(taxonomy.WithThresholds(cfg.ThresholdSet()))
	cls := classifier.New(tax, classifier.WithLogger(logger))

	learner, err := learning.New(store, tax, learning.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := learner.Rehydrate(ctx); err != nil {
		return nil, fmt.Errorf("rehydrate learned adjustments: %w", err)
	}

	fl, err := filer.New(v, store, vectors, filer.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	sg, err := suggest.New(store, vectors, suggest.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	service, err := pipeline.New(pipeline.Deps{
		Classifier: cls,
		Taxonomy:   tax,
		Store:      store,
		Filer:      fl,
		Learner:    learner,
		Suggester:  sg,
		Logger:     logger,
		Metrics:    pipeline.NewMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		service:  service,
		store:    store,
		vectors:  vectors,
		provider: provider,
	}

	if cfg.Inbox.Path != "" {
		inboxPath, err := config.ExpandPath(cfg.Inbox.Path)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(inboxPath, 0o755); err != nil {
			return nil, fmt.Errorf("create inbox directory: %w", err)
		}
		a.inbox, err = inbox.NewProcessor(inboxPath, service,
			inbox.WithConcurrency(cfg.Inbox.Concurrency),
			inbox.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

// close releases the app's resources in reverse wiring order.
func (a *app) close() {
	if err := a.vectors.Close(); err != nil {
		a.logger.Warn("vector store close failed", zap.Error(err))
	}
	if err := a.provider.Close(); err != nil {
		a.logger.Warn("embedding provider close failed", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("metadata store close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
