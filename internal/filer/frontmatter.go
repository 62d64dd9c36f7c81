package filer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/vaultd/internal/classifier"
	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
)

// dateLayout is the date format used in frontmatter fields.
const dateLayout = "2006-01-02"

// frontmatter is the YAML header written at the top of every filed note.
// Field order is fixed so re-rendering the same note is byte-stable.
type frontmatter struct {
	Title     string   `yaml:"title"`
	Type      string   `yaml:"type"`
	Tags      []string `yaml:"tags"`
	Created   string   `yaml:"created"`
	Updated   string   `yaml:"updated"`
	Status    string   `yaml:"status"`
	Stage     string   `yaml:"stage"`
	Domain    string   `yaml:"domain,omitempty"`
	Permalink string   `yaml:"permalink"`
}

// renderNote produces the complete markdown document for a filed note:
// frontmatter, original content, observations, relations, and tag lines.
func renderNote(note *knowledge.Note, result *classifier.Result) ([]byte, error) {
	fm := frontmatter{
		Title:     note.Title,
		Type:      string(note.ContentType),
		Tags:      tagValues(result.Tags),
		Created:   note.CreatedAt.Format(dateLayout),
		Updated:   note.UpdatedAt.Format(dateLayout),
		Status:    "active",
		Stage:     stageFor(note.ContentType),
		Domain:    note.PrimaryDomain,
		Permalink: permalink(note.Title),
	}

	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("marshaling frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")

	b.WriteString("# " + note.Title + "\n\n")

	b.WriteString("## Content\n\n")
	b.WriteString(strings.TrimSpace(result.SourceText))
	b.WriteString("\n")

	if len(result.Observations) > 0 {
		b.WriteString("\n## Observations\n\n")
		for _, obs := range result.Observations {
			b.WriteString("- [" + string(obs.Category) + "] " + obs.Text)
			for _, tag := range obs.InferredTags {
				b.WriteString(" #" + tag)
			}
			b.WriteString("\n")
		}
	}

	if rels := renderableRelations(result.Relations); len(rels) > 0 {
		b.WriteString("\n## Relations\n\n")
		for _, rel := range rels {
			b.WriteString(fmt.Sprintf("- %s [[%s]]\n", rel.Type, relationTarget(rel)))
		}

		b.WriteString("\n## Related Knowledge\n\n")
		for _, target := range relationTargets(rels) {
			b.WriteString("- [[" + target + "]]\n")
		}
	}

	if len(fm.Tags) > 0 {
		b.WriteString("\n## Tags\n\n")
		for _, tag := range fm.Tags {
			b.WriteString("#" + tag + " ")
		}
		b.WriteString("\n")
	}

	return []byte(b.String()), nil
}

// renderableRelations keeps the relations the metadata layer will also
// persist, so the document and the store agree.
func renderableRelations(relations []knowledge.Relation) []knowledge.Relation {
	out := make([]knowledge.Relation, 0, len(relations))
	for _, rel := range relations {
		if rel.Confidence < minRelationConfidence {
			continue
		}
		out = append(out, rel)
	}
	return out
}

func relationTarget(rel knowledge.Relation) string {
	if rel.TargetLabel != "" {
		return rel.TargetLabel
	}
	return rel.TargetNoteID
}

// relationTargets returns the unique wiki-link targets in first-seen
// order for the Related Knowledge section.
func relationTargets(relations []knowledge.Relation) []string {
	seen := make(map[string]struct{}, len(relations))
	targets := make([]string, 0, len(relations))
	for _, rel := range relations {
		target := relationTarget(rel)
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		targets = append(targets, target)
	}
	return targets
}

// tagValues extracts sorted unique tag values.
func tagValues(tags []knowledge.Tag) []string {
	seen := make(map[string]struct{}, len(tags))
	values := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag.Value]; ok {
			continue
		}
		seen[tag.Value] = struct{}{}
		values = append(values, tag.Value)
	}
	sort.Strings(values)
	return values
}

// stageFor maps a content type to its vault lifecycle stage.
func stageFor(ct knowledge.ContentType) string {
	switch ct {
	case knowledge.ContentTypeProject:
		return "active"
	case knowledge.ContentTypeMOC:
		return "index"
	default:
		return "evergreen"
	}
}

// permalink derives a URL-safe slug from a title.
func permalink(title string) string {
	return Slug(title)
}

// Slug converts a title into a lowercase hyphenated filename stem.
// Anything outside [a-z0-9] collapses into single hyphens.
func Slug(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "untitled-" + time.Now().Format("20060102-150405")
	}
	if len(slug) > 80 {
		slug = strings.Trim(slug[:80], "-")
	}
	return slug
}
