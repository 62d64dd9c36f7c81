package taxonomy

import (
	"regexp"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
)

// DefaultDomains returns the built-in domain keyword lists in priority
// order. Earlier domains win ties for primary status.
func DefaultDomains() []Domain {
	return []Domain{
		{Name: "azure", Keywords: []string{
			"azure", "databricks", "aks", "entra", "app service", "key vault",
			"private endpoint", "blob storage", "cosmos", "arm template",
		}},
		{Name: "aws", Keywords: []string{
			"aws", "s3", "ec2", "lambda", "cloudformation", "iam", "dynamodb",
			"eks", "cloudwatch",
		}},
		{Name: "gcp", Keywords: []string{
			"gcp", "gcloud", "bigquery", "pubsub", "gke", "cloud run",
		}},
		{Name: "kubernetes", Keywords: []string{
			"kubernetes", "k8s", "kubectl", "helm", "pod", "ingress",
			"deployment", "namespace", "configmap",
		}},
		{Name: "terraform", Keywords: []string{
			"terraform", "tfstate", "tfvars", "hcl", "provider block", "plan",
			"apply",
		}},
		{Name: "docker", Keywords: []string{
			"docker", "dockerfile", "docker-compose", "container", "image",
		}},
		{Name: "dns", Keywords: []string{
			"dns", "a record", "cname", "nameserver", "resolver", "dns zone",
			"txt record", "mx record",
		}},
		{Name: "networking", Keywords: []string{
			"vnet", "subnet", "firewall", "load balancer", "vpn", "peering",
			"tcp", "tls", "proxy",
		}},
		{Name: "database", Keywords: []string{
			"postgres", "postgresql", "mysql", "sqlite", "mongodb", "redis",
			"sql", "migration", "index", "query plan",
		}},
		{Name: "golang", Keywords: []string{
			"golang", "go mod", "goroutine", "go build", "go test", "channel",
		}},
		{Name: "python", Keywords: []string{
			"python", "pip", "pytest", "django", "flask", "virtualenv",
		}},
		{Name: "typescript", Keywords: []string{
			"typescript", "tsconfig", "npm", "node", "react", "nextjs",
		}},
		{Name: "security", Keywords: []string{
			"oauth", "jwt", "certificate", "encryption", "secret", "rbac",
			"vulnerability", "cve",
		}},
		{Name: "observability", Keywords: []string{
			"prometheus", "grafana", "tracing", "metrics", "logging",
			"alerting", "dashboard",
		}},
	}
}

// DefaultContentTypeSignatures returns per-type scoring signatures.
// No signature for "note": it is the default when nothing else wins.
func DefaultContentTypeSignatures() []ContentTypeSignature {
	return []ContentTypeSignature{
		{
			Type: knowledge.ContentTypeMOC,
			Keywords: []WeightedKeyword{
				{Text: "map of content", Weight: 2.0},
				{Text: "index of", Weight: 1.0},
				{Text: "overview of", Weight: 0.8},
				{Text: "moc", Weight: 1.5},
			},
			Patterns: []WeightedPattern{
				// Three or more wiki links reads as a hub page.
				{Regex: regexp.MustCompile(`(?s)\[\[[^\]]+\]\].*\[\[[^\]]+\]\].*\[\[[^\]]+\]\]`), Weight: 1.5},
			},
		},
		{
			Type: knowledge.ContentTypeProject,
			Keywords: []WeightedKeyword{
				{Text: "milestone", Weight: 1.0},
				{Text: "deadline", Weight: 1.0},
				{Text: "deliverable", Weight: 1.0},
				{Text: "kickoff", Weight: 0.8},
			},
			Patterns: []WeightedPattern{
				{Regex: regexp.MustCompile(`(?i)\b(?:need to|should|must)\s+(?:implement|build|ship|deploy|finish|deliver)\b`), Weight: 1.2},
				{Regex: regexp.MustCompile(`(?im)^\s*- \[[ x]\]`), Weight: 1.0},
			},
		},
		{
			Type: knowledge.ContentTypeArea,
			Keywords: []WeightedKeyword{
				{Text: "ongoing", Weight: 0.8},
				{Text: "responsibility", Weight: 1.0},
				{Text: "routine", Weight: 0.8},
				{Text: "maintain", Weight: 0.6},
			},
		},
		{
			Type: knowledge.ContentTypeResource,
			Keywords: []WeightedKeyword{
				{Text: "reference", Weight: 0.8},
				{Text: "cheat sheet", Weight: 1.2},
				{Text: "tutorial", Weight: 1.0},
				{Text: "documentation for", Weight: 1.0},
				{Text: "guide to", Weight: 1.0},
			},
			Patterns: []WeightedPattern{
				{Regex: regexp.MustCompile(`https?://\S+`), Weight: 0.6},
			},
		},
	}
}

// DefaultInsightPatterns returns the ordered observation patterns.
// More specific phrasings come first so their categories win the shared
// match position.
func DefaultInsightPatterns() []InsightPattern {
	return []InsightPattern{
		{
			Name:     "discovery",
			Category: CategoryInsight,
			Regex:    regexp.MustCompile(`(?i)\bI (?:discovered|found|learned|realized|noticed) that\b`),
			Weight:   0.9,
		},
		{
			Name:     "issue-statement",
			Category: CategoryIssue,
			Regex:    regexp.MustCompile(`(?i)\bthe (?:issue|problem|error|bug|failure) (?:was|is|turned out)\b`),
			Weight:   0.9,
		},
		{
			Name:     "solution-statement",
			Category: CategorySolution,
			Regex:    regexp.MustCompile(`(?i)\b(?:the )?(?:solution|fix|workaround) (?:is|was)\b|\b(?:solved|fixed|resolved) (?:it|this|the \w+) by\b`),
			Weight:   0.9,
		},
		{
			Name:     "finding",
			Category: CategoryTechnicalFinding,
			Regex:    regexp.MustCompile(`(?i)\b(?:turns out|it turns out|benchmark(?:s|ed)? show|measured|observed that)\b`),
			Weight:   0.8,
		},
		{
			Name:     "requirement",
			Category: CategoryRequirement,
			Regex:    regexp.MustCompile(`(?i)\b(?:requires?|needs? to (?:be|have)|must (?:be|have)|prerequisite)\b`),
			Weight:   0.75,
		},
		{
			Name:     "constraint",
			Category: CategoryConstraint,
			Regex:    regexp.MustCompile(`(?i)\b(?:cannot|can't|must not|limited to|only supports|max(?:imum)? of)\b`),
			Weight:   0.7,
		},
		{
			Name:     "recurring-pattern",
			Category: CategoryPattern,
			Regex:    regexp.MustCompile(`(?i)\b(?:every time|whenever|consistently|always (?:fails|happens)|tends to)\b`),
			Weight:   0.7,
		},
	}
}

// DefaultTechnologyRules returns keyword rules for technology tagging,
// in evaluation order.
func DefaultTechnologyRules() []TechnologyRule {
	return []TechnologyRule{
		{Tag: "databricks", Keywords: []string{"databricks"}},
		{Tag: "terraform", Keywords: []string{"terraform", "tfstate", "tfvars"}},
		{Tag: "kubernetes", Keywords: []string{"kubernetes", "kubectl", "k8s", "helm"}},
		{Tag: "docker", Keywords: []string{"docker", "dockerfile", "docker-compose"}},
		{Tag: "postgres", Keywords: []string{"postgres", "postgresql"}},
		{Tag: "redis", Keywords: []string{"redis"}},
		{Tag: "golang", Keywords: []string{"golang", "go mod", "goroutine"}},
		{Tag: "python", Keywords: []string{"python", "pip", "pytest"}},
		{Tag: "react", Keywords: []string{"react", "jsx"}},
		{Tag: "nginx", Keywords: []string{"nginx"}},
		{Tag: "github-actions", Keywords: []string{"github actions", "workflow yaml"}},
		{Tag: "grafana", Keywords: []string{"grafana"}},
		{Tag: "prometheus", Keywords: []string{"prometheus", "promql"}},
	}
}
