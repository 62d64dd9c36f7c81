package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vaultd/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	Long: `Run the MCP server on the stdio transport, exposing note_classify,
note_process, note_file, feedback_record, connections_suggest,
thresholds_retune, and inbox_process as tools.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	server, err := mcp.NewServer(&mcp.Config{
		Version: version,
		Logger:  a.logger,
	}, a.service, a.inbox)
	if err != nil {
		return err
	}

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
