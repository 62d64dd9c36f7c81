package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/classifier"
	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/pipeline"
)

type classifyInput struct {
	Text           string   `json:"text" jsonschema:"required,Text to classify"`
	Source         string   `json:"source,omitempty" jsonschema:"Source type: conversation inbox or manual (default conversation)"`
	SessionDomains []string `json:"session_domains,omitempty" jsonschema:"Domains already active in the session"`
}

type observationOutput struct {
	Category string   `json:"category" jsonschema:"Observation category"`
	Text     string   `json:"text" jsonschema:"Observation text window"`
	Tags     []string `json:"tags,omitempty" jsonschema:"Tags inferred within the observation"`
}

type classifyOutput struct {
	ContentType   string              `json:"content_type" jsonschema:"Detected content type"`
	PrimaryDomain string              `json:"primary_domain,omitempty" jsonschema:"Strongest detected domain"`
	Title         string              `json:"title" jsonschema:"Derived note title"`
	Confidence    float64             `json:"confidence" jsonschema:"Classification confidence in [0,1]"`
	Destination   string              `json:"destination" jsonschema:"Vault folder the note would be filed into"`
	Action        string              `json:"action" jsonschema:"Routing decision: auto_file suggest or ignore"`
	Reason        string              `json:"reason" jsonschema:"Routing rationale"`
	Preview       string              `json:"preview,omitempty" jsonschema:"Note preview when action is suggest"`
	Observations  []observationOutput `json:"observations" jsonschema:"Extracted observations"`
}

type processInput struct {
	Text           string   `json:"text" jsonschema:"required,Text to classify and file"`
	Source         string   `json:"source,omitempty" jsonschema:"Source type: conversation inbox or manual (default conversation)"`
	SessionDomains []string `json:"session_domains,omitempty" jsonschema:"Domains already active in the session"`
}

type processOutput struct {
	Action     string  `json:"action" jsonschema:"Routing decision taken"`
	Reason     string  `json:"reason" jsonschema:"Routing rationale"`
	Preview    string  `json:"preview,omitempty" jsonschema:"Note preview when action is suggest"`
	NoteID     string  `json:"note_id,omitempty" jsonschema:"Filed note ID"`
	Path       string  `json:"path,omitempty" jsonschema:"Vault path of the filed note"`
	Confidence float64 `json:"confidence" jsonschema:"Classification confidence"`
}

type feedbackInput struct {
	NoteID         string `json:"note_id" jsonschema:"required,Note the correction applies to"`
	ActionType     string `json:"action_type" jsonschema:"required,Correction kind: file_moved tag_changed relation_added relation_removed or content_edited"`
	OriginalValue  string `json:"original_value,omitempty" jsonschema:"Value before the correction"`
	CorrectedValue string `json:"corrected_value,omitempty" jsonschema:"Value after the correction"`
}

type feedbackOutput struct {
	PatternType string  `json:"pattern_type" jsonschema:"Learning pattern updated by this feedback"`
	Fingerprint string  `json:"fingerprint" jsonschema:"Pattern fingerprint"`
	UsageCount  int     `json:"usage_count" jsonschema:"Times the pattern has been reinforced"`
	SuccessRate float64 `json:"success_rate" jsonschema:"Pattern rolling success rate"`
}

type suggestInput struct {
	Seed          string  `json:"note_or_text" jsonschema:"required,Note ID or free text to find connections for"`
	Limit         int     `json:"limit,omitempty" jsonschema:"Maximum suggestions to return (default 5)"`
	MinSimilarity float64 `json:"min_similarity,omitempty" jsonschema:"Minimum blended score to include (default 0.35)"`
}

type suggestionOutput struct {
	TargetNoteID string   `json:"target_note_id" jsonschema:"Suggested connection target"`
	TargetTitle  string   `json:"target_title" jsonschema:"Target note title"`
	Type         string   `json:"relationship_type" jsonschema:"Proposed relation kind"`
	Score        float64  `json:"score" jsonschema:"Blended similarity score"`
	SharedTags   []string `json:"shared_tags,omitempty" jsonschema:"Tags shared with the target"`
}

type suggestOutput struct {
	Suggestions []suggestionOutput `json:"suggestions" jsonschema:"Connection suggestions ordered by score"`
	Count       int                `json:"count" jsonschema:"Number of suggestions returned"`
}

type inboxProcessInput struct{}

type inboxProcessOutput struct {
	Processed int `json:"processed" jsonschema:"Items processed"`
	Filed     int `json:"filed" jsonschema:"Items auto-filed"`
	Suggested int `json:"suggested" jsonschema:"Items needing confirmation"`
	Ignored   int `json:"ignored" jsonschema:"Items dropped"`
	Failed    int `json:"failed" jsonschema:"Items that errored"`
}

type retuneInput struct{}

type retuneOutput struct {
	AutoConversation float64 `json:"auto_conversation" jsonschema:"Auto-file threshold for conversation captures"`
	AutoInbox        float64 `json:"auto_inbox" jsonschema:"Auto-file threshold for inbox captures"`
	Suggest          float64 `json:"suggest" jsonschema:"Suggestion threshold"`
}

func (s *Server) registerTools() {
	// note_classify
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "note_classify",
		Description: "Classify text into a note candidate without filing it",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args classifyInput) (*mcp.CallToolResult, classifyOutput, error) {
		result, decision, err := s.service.Classify(ctx, args.Text, pipeline.Options{
			Source:         knowledge.SourceType(args.Source),
			SessionDomains: args.SessionDomains,
		})
		if err != nil {
			return nil, classifyOutput{}, err
		}

		out := classifyOutput{
			ContentType:   string(result.ContentType),
			PrimaryDomain: result.PrimaryDomain,
			Title:         result.Title,
			Confidence:    result.Confidence,
			Destination:   result.Destination,
			Action:        string(decision.Action),
			Reason:        decision.Reason,
			Preview:       decision.Preview,
			Observations:  observationOutputs(result.Observations),
		}
		return textResult(fmt.Sprintf("%s (%.2f) -> %s", out.ContentType, out.Confidence, out.Action)), out, nil
	})

	// note_process
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "note_process",
		Description: "Classify text and file it into the vault when confidence allows",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args processInput) (*mcp.CallToolResult, processOutput, error) {
		outcome, err := s.service.Process(ctx, args.Text, pipeline.Options{
			Source:         knowledge.SourceType(args.Source),
			SessionDomains: args.SessionDomains,
		})
		if err != nil {
			return nil, processOutput{}, err
		}

		out := processOutput{
			Action:     string(outcome.Action),
			Reason:     outcome.Reason,
			Preview:    outcome.Preview,
			NoteID:     outcome.NoteID,
			Path:       outcome.Path,
			Confidence: outcome.Confidence,
		}
		summary := fmt.Sprintf("%s: %s", out.Action, outcome.Title)
		if out.Path != "" {
			summary = fmt.Sprintf("filed %s at %s", outcome.Title, out.Path)
		}
		return textResult(summary), out, nil
	})

	// note_file
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "note_file",
		Description: "Classify text and file it into the vault regardless of confidence",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args processInput) (*mcp.CallToolResult, processOutput, error) {
		outcome, err := s.service.FileNow(ctx, args.Text, pipeline.Options{
			Source:         knowledge.SourceType(args.Source),
			SessionDomains: args.SessionDomains,
		})
		if err != nil {
			return nil, processOutput{}, err
		}

		out := processOutput{
			Action:     string(outcome.Action),
			Reason:     outcome.Reason,
			NoteID:     outcome.NoteID,
			Path:       outcome.Path,
			Confidence: outcome.Confidence,
		}
		return textResult(fmt.Sprintf("filed %s at %s", outcome.Title, out.Path)), out, nil
	})

	// feedback_record
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "feedback_record",
		Description: "Record a user correction so future classifications improve",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args feedbackInput) (*mcp.CallToolResult, feedbackOutput, error) {
		pattern, err := s.service.Feedback(ctx, args.NoteID, knowledge.ActionType(args.ActionType), args.OriginalValue, args.CorrectedValue)
		if err != nil {
			return nil, feedbackOutput{}, err
		}

		out := feedbackOutput{
			PatternType: string(pattern.PatternType),
			Fingerprint: pattern.Fingerprint,
			UsageCount:  pattern.UsageCount,
			SuccessRate: pattern.SuccessRate,
		}
		return textResult(fmt.Sprintf("pattern %s reinforced (%d uses)", out.PatternType, out.UsageCount)), out, nil
	})

	// connections_suggest
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "connections_suggest",
		Description: "Suggest related notes for an existing note or a piece of text",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args suggestInput) (*mcp.CallToolResult, suggestOutput, error) {
		suggestions, err := s.service.SuggestConnections(ctx, args.Seed, args.Limit, args.MinSimilarity)
		if err != nil {
			return nil, suggestOutput{}, err
		}

		out := suggestOutput{Count: len(suggestions)}
		for _, sg := range suggestions {
			out.Suggestions = append(out.Suggestions, suggestionOutput{
				TargetNoteID: sg.TargetNoteID,
				TargetTitle:  sg.TargetTitle,
				Type:         string(sg.Type),
				Score:        sg.Score,
				SharedTags:   sg.SharedTags,
			})
		}
		return textResult(fmt.Sprintf("%d connection suggestions", out.Count)), out, nil
	})

	// thresholds_retune
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "thresholds_retune",
		Description: "Recompute routing thresholds from recent feedback",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args retuneInput) (*mcp.CallToolResult, retuneOutput, error) {
		thresholds, err := s.service.Retune(ctx)
		if err != nil {
			return nil, retuneOutput{}, err
		}

		out := retuneOutput{
			AutoConversation: thresholds.AutoConversation,
			AutoInbox:        thresholds.AutoInbox,
			Suggest:          thresholds.Suggest,
		}
		return textResult(fmt.Sprintf("thresholds: conversation %.2f inbox %.2f suggest %.2f",
			out.AutoConversation, out.AutoInbox, out.Suggest)), out, nil
	})

	if s.processor == nil {
		s.logger.Debug("inbox processor not configured, skipping inbox_process tool")
		return
	}

	// inbox_process
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "inbox_process",
		Description: "Process every capture file currently in the inbox directory",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args inboxProcessInput) (*mcp.CallToolResult, inboxProcessOutput, error) {
		report, err := s.processor.ProcessAll(ctx)
		if err != nil {
			return nil, inboxProcessOutput{}, err
		}

		out := inboxProcessOutput{
			Processed: report.Processed,
			Filed:     report.Filed,
			Suggested: report.Suggested,
			Ignored:   report.Ignored,
			Failed:    report.Failed,
		}
		s.logger.Info("inbox processed via MCP",
			zap.Int("processed", out.Processed),
			zap.Int("failed", out.Failed),
		)
		return textResult(fmt.Sprintf("processed %d items: %d filed, %d failed", out.Processed, out.Filed, out.Failed)), out, nil
	})
}

func observationOutputs(observations []classifier.Observation) []observationOutput {
	out := make([]observationOutput, len(observations))
	for i, obs := range observations {
		out[i] = observationOutput{
			Category: string(obs.Category),
			Text:     obs.Text,
			Tags:     obs.InferredTags,
		}
	}
	return out
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
