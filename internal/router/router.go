// Package router decides the filing action for a classification.
//
// The router is a stateless policy function over a ClassificationResult
// and a ThresholdSet. It never second-guesses the classifier's resolved
// output; it only picks one of three terminal actions.
package router

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/vaultd/internal/classifier"
	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/taxonomy"
)

// Action is the terminal routing decision.
type Action string

const (
	// ActionAutoFile files the note without user interaction.
	ActionAutoFile Action = "auto_file"

	// ActionSuggest surfaces a preview for the caller to confirm.
	ActionSuggest Action = "suggest"

	// ActionIgnore silently drops the input.
	ActionIgnore Action = "ignore"
)

// Decision is the routing outcome handed back to the caller's loop.
type Decision struct {
	Action Action `json:"action"`

	// Reason is a human-readable explanation for batch reports.
	Reason string `json:"reason"`

	// Preview is a short rendering of the would-be note, only set for
	// ActionSuggest.
	Preview string `json:"preview,omitempty"`
}

// Route applies the threshold policy to a classification result.
//
// For a fixed threshold set the decision is monotonic non-decreasing in
// confidence: raising confidence never demotes AutoFile to Suggest or
// Ignore.
func Route(result *classifier.Result, source knowledge.SourceType, thresholds taxonomy.ThresholdSet) Decision {
	auto := thresholds.AutoFor(source)
	conf := result.Confidence

	switch {
	case conf >= auto:
		return Decision{
			Action: ActionAutoFile,
			Reason: fmt.Sprintf("confidence %.2f >= auto threshold %.2f for %s source", conf, auto, source),
		}
	case conf >= thresholds.Suggest:
		return Decision{
			Action:  ActionSuggest,
			Reason:  fmt.Sprintf("confidence %.2f in suggest band [%.2f, %.2f)", conf, thresholds.Suggest, auto),
			Preview: preview(result),
		}
	default:
		return Decision{
			Action: ActionIgnore,
			Reason: fmt.Sprintf("confidence %.2f below suggest threshold %.2f", conf, thresholds.Suggest),
		}
	}
}

// preview renders the first lines of the would-be note for suggestions.
func preview(result *classifier.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s -> %s/ (%s", result.Title, result.Destination, result.ContentType)
	if result.PrimaryDomain != "" {
		fmt.Fprintf(&b, ", %s", result.PrimaryDomain)
	}
	b.WriteString(")")
	for i, obs := range result.Observations {
		if i == 3 {
			b.WriteString("\n  ...")
			break
		}
		fmt.Fprintf(&b, "\n  - [%s] %s", obs.Category, truncate(obs.Text, 120))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
