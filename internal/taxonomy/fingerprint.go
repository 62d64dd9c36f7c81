package taxonomy

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
)

// Fingerprint derives the canonical feature key for a classification.
//
// The key is built from content type, primary domain, and the sorted set
// of matched observation categories. Both the Classifier (adjustment
// lookup) and the Pattern Learner (pattern matching) derive keys through
// this function so they always agree.
func Fingerprint(contentType knowledge.ContentType, primaryDomain string, categories []ObservationCategory) string {
	seen := make(map[string]struct{}, len(categories))
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		name := string(c)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)

	domain := strings.ToLower(strings.TrimSpace(primaryDomain))
	if domain == "" {
		domain = "none"
	}

	return string(contentType) + "|" + domain + "|" + strings.Join(names, ",")
}
