package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/pipeline"
)

var (
	flagSource      string
	flagDomains     []string
	flagLimit       int
	flagMinScore    float64
	flagFileSource  string
	flagFileDomains []string
)

func init() {
	classifyCmd.Flags().StringVar(&flagSource, "source", "conversation", "source type: conversation, inbox, or manual")
	classifyCmd.Flags().StringSliceVar(&flagDomains, "domain", nil, "session domains biasing detection (repeatable)")

	processCmd.Flags().StringVar(&flagSource, "source", "conversation", "source type: conversation, inbox, or manual")
	processCmd.Flags().StringSliceVar(&flagDomains, "domain", nil, "session domains biasing detection (repeatable)")

	fileCmd.Flags().StringVar(&flagFileSource, "source", "manual", "source type: conversation, inbox, or manual")
	fileCmd.Flags().StringSliceVar(&flagFileDomains, "domain", nil, "session domains biasing detection (repeatable)")

	suggestCmd.Flags().IntVar(&flagLimit, "limit", 5, "maximum suggestions to return")
	suggestCmd.Flags().Float64Var(&flagMinScore, "min-similarity", 0, "minimum blended score to include (0 uses the default floor)")
}

// readInput returns the text from a file argument, "-", or stdin.
func readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(content), nil
	}
	if _, err := os.Stat(args[0]); err == nil {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return string(content), nil
	}
	// Not a file: treat the argument as the text itself.
	return args[0], nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var classifyCmd = &cobra.Command{
	Use:   "classify [text|file|-]",
	Short: "Classify text without filing it",
	Long: `Classify text into a note candidate and show the routing decision
without writing anything.

Examples:
  vaultd classify "I discovered that the DNS record was missing"
  vaultd classify capture.md
  pbpaste | vaultd classify -`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args)
		if err != nil {
			return err
		}

		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		result, decision, err := a.service.Classify(cmd.Context(), text, pipeline.Options{
			Source:         knowledge.SourceType(flagSource),
			SessionDomains: flagDomains,
		})
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{
			"result":   result,
			"decision": decision,
		})
	},
}

var processCmd = &cobra.Command{
	Use:   "process [text|file|-]",
	Short: "Classify text and file it when confidence allows",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args)
		if err != nil {
			return err
		}

		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		outcome, err := a.service.Process(cmd.Context(), text, pipeline.Options{
			Source:         knowledge.SourceType(flagSource),
			SessionDomains: flagDomains,
		})
		if err != nil {
			return err
		}
		return printJSON(outcome)
	},
}

var fileCmd = &cobra.Command{
	Use:   "file [text|file|-]",
	Short: "Classify text and file it regardless of confidence",
	Long: `Classify text and file the resulting note into the vault even when the
routing decision would only suggest or ignore it. Use when you have
already decided the text is worth keeping.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args)
		if err != nil {
			return err
		}

		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		outcome, err := a.service.FileNow(cmd.Context(), text, pipeline.Options{
			Source:         knowledge.SourceType(flagFileSource),
			SessionDomains: flagFileDomains,
		})
		if err != nil {
			return err
		}
		return printJSON(outcome)
	},
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Process every capture file currently in the inbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if a.inbox == nil {
			return fmt.Errorf("no inbox directory configured (set inbox.path)")
		}
		report, err := a.inbox.ProcessAll(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <note-id-or-text>",
	Short: "Suggest related notes for an existing note or a piece of text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		suggestions, err := a.service.SuggestConnections(cmd.Context(), args[0], flagLimit, flagMinScore)
		if err != nil {
			return err
		}
		return printJSON(suggestions)
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <note-id> <action> [original] [corrected]",
	Short: "Record a correction for a filed note",
	Long: `Record a user correction so future classifications improve.

Actions: file_moved, tag_changed, relation_added, relation_removed,
content_edited.

Examples:
  vaultd feedback 4f1f... file_moved 5-resources/dns.md 1-notes/dns.md
  vaultd feedback 4f1f... tag_changed azure-networking azure-dns`,
	Args: cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		var original, corrected string
		if len(args) > 2 {
			original = args[2]
		}
		if len(args) > 3 {
			corrected = args[3]
		}

		pattern, err := a.service.Feedback(cmd.Context(), args[0], knowledge.ActionType(args[1]), original, corrected)
		if err != nil {
			return err
		}
		return printJSON(pattern)
	},
}

var retuneCmd = &cobra.Command{
	Use:   "retune",
	Short: "Recompute routing thresholds from recent feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		thresholds, err := a.service.Retune(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(thresholds)
	},
}
