// Vaultd is a knowledge-capture daemon: it classifies free text into
// typed vault notes, routes them by confidence, files accepted notes
// across the vault, metadata store, and vector index, and learns from
// user corrections.
//
// Usage:
//
//	# Start the daemon (HTTP API + inbox watcher)
//	vaultd serve
//
//	# Expose the pipeline as MCP tools on stdio
//	vaultd mcp
//
//	# One-shot operations
//	vaultd classify "I discovered that ..."
//	vaultd process --source inbox capture.md
//	vaultd inbox
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vaultd",
	Short: "Knowledge capture daemon for markdown vaults",
	Long: `vaultd classifies free text into typed vault notes, routes them by
confidence, and files accepted notes into the vault with metadata and
vector indexes. User corrections feed a pattern learner that adjusts
future confidence and retunes routing thresholds.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/vaultd/config.yaml)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("vaultd by Fyrsmith Labs\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n", version, gitCommit, buildDate))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(inboxCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(retuneCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vaultd %s (commit %s, built %s)\n", version, gitCommit, buildDate)
	},
}
