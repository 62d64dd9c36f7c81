package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/vaultd/internal/httpapi"
	"github.com/fyrsmithlabs/vaultd/internal/inbox"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vaultd daemon",
	Long: `Start the vaultd daemon: the HTTP API (classification, processing,
feedback, suggestions, metrics) plus the inbox watcher when an inbox
directory is configured.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	server, err := httpapi.NewServer(a.service, a.logger, &httpapi.Config{
		Host: a.cfg.Server.Host,
		Port: a.cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if a.inbox != nil && a.cfg.Inbox.Watch {
		watcher, err := inbox.NewWatcher(a.inbox,
			inbox.WithDebounce(a.cfg.Inbox.Debounce),
			inbox.WithWatcherLogger(a.logger),
		)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	a.logger.Info("vaultd daemon started",
		zap.String("host", a.cfg.Server.Host),
		zap.Int("port", a.cfg.Server.Port),
		zap.Bool("inbox_watch", a.inbox != nil && a.cfg.Inbox.Watch),
	)

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("vaultd daemon shutdown complete")
	return nil
}
