package classifier

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/taxonomy"
)

// Scoring weight table. The decision logic is data, not scattered
// conditionals: confidence is a weighted sum of domain-match strength,
// observation quality, and structural specificity, plus any learned
// adjustment (already capped by the learner).
const (
	weightDomain       = 0.40
	weightObservations = 0.35
	weightStructure    = 0.25

	// domainNorm is the keyword-occurrence count at which domain strength
	// saturates; obsNorm is the summed pattern weight at which the
	// observation score saturates.
	domainNorm = 3.0
	obsNorm    = 2.5

	// defaultWindowRadius is the context window around an insight match.
	defaultWindowRadius = 160

	// maxSemanticTags bounds the domain-specific keyword tags per note.
	maxSemanticTags = 5

	// maxInputLength truncates pathological inputs before regex scans.
	maxInputLength = 64 * 1024
)

// Lexical cues that upgrade a relation candidate from relates_to.
var (
	solvesCue = regexp.MustCompile(`(?i)\b(?:fix(?:es|ed)?|resolv(?:es|ed)|solv(?:es|ed))\b`)
	partOfCue = regexp.MustCompile(`(?i)\bpart of\b`)
	wikiLink  = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]+)?\]\]`)
)

var vagueWords = []string{"stuff", "things", "somehow", "maybe", "whatever"}

// Classifier turns raw text into a structured classification using the
// taxonomy's rule tables. It performs no collaborator calls beyond a
// read-only taxonomy snapshot, so identical input against an unchanged
// snapshot yields an identical result.
type Classifier struct {
	store  *taxonomy.Store
	radius int
	logger *zap.Logger
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithWindowRadius overrides the observation context window radius.
func WithWindowRadius(radius int) ClassifierOption {
	return func(c *Classifier) {
		if radius > 0 {
			c.radius = radius
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClassifierOption {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Classifier over the given taxonomy store.
func New(store *taxonomy.Store, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		store:  store,
		radius: defaultWindowRadius,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify produces a classification for the given text.
//
// Empty (after trimming) text fails with ErrEmptyInput; a malformed
// context fails with ErrInvalidContext. Every other input produces a
// Result, possibly with zero confidence.
func (c *Classifier) Classify(text string, cctx *Context) (*Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyInput
	}
	if err := cctx.Validate(); err != nil {
		return nil, err
	}
	if len(trimmed) > maxInputLength {
		trimmed = trimmed[:maxInputLength]
	}

	snap := c.store.Snapshot()
	lower := strings.ToLower(trimmed)

	contentType := classifyContentType(trimmed, lower, snap.Signatures)
	primary, secondary, domainScore, matchedKeywords := detectDomains(lower, snap.Domains, cctx)
	observations := c.extractObservations(trimmed, lower, snap)
	relations := inferRelations(trimmed, observations, cctx)
	tags := generateTags(contentType, primary, secondary, lower, matchedKeywords, snap.Technologies)

	categories := make([]taxonomy.ObservationCategory, 0, len(observations))
	obsScore := 0.0
	for _, o := range observations {
		categories = append(categories, o.Category)
		obsScore += o.Weight
	}

	fingerprint := taxonomy.Fingerprint(contentType, primary, categories)
	adjustment := snap.AdjustmentFor(fingerprint)

	confidence := clamp01(
		weightDomain*min1(domainScore/domainNorm) +
			weightObservations*min1(obsScore/obsNorm) +
			weightStructure*structureScore(trimmed) +
			adjustment,
	)

	result := &Result{
		ContentType:      contentType,
		PrimaryDomain:    primary,
		SecondaryDomains: secondary,
		Observations:     observations,
		Relations:        relations,
		Tags:             tags,
		Title:            deriveTitle(trimmed),
		Confidence:       confidence,
		Destination:      DestinationFor(contentType),
		Fingerprint:      fingerprint,
		SourceText:       trimmed,
	}

	c.logger.Debug("classified text",
		zap.String("content_type", string(contentType)),
		zap.String("primary_domain", primary),
		zap.Int("observations", len(observations)),
		zap.Float64("confidence", confidence),
		zap.Float64("adjustment", adjustment),
	)

	return result, nil
}

// classifyContentType scores text against each signature. Highest score
// wins; a tie between distinct types or no match defaults to "note".
func classifyContentType(text, lower string, signatures []taxonomy.ContentTypeSignature) knowledge.ContentType {
	best := knowledge.ContentTypeNote
	bestScore := 0.0
	tied := false

	for _, sig := range signatures {
		score := 0.0
		for _, kw := range sig.Keywords {
			score += float64(countKeyword(lower, kw.Text)) * kw.Weight
		}
		for _, p := range sig.Patterns {
			if p.Regex.MatchString(text) {
				score += p.Weight
			}
		}
		if score > bestScore {
			best, bestScore, tied = sig.Type, score, false
		} else if score == bestScore && score > 0 {
			tied = true
		}
	}

	if bestScore == 0 || tied {
		return knowledge.ContentTypeNote
	}
	return best
}

// detectDomains scores every domain and resolves primary status. Ties
// resolve to the earlier domain in the taxonomy's fixed order. Session
// domains from the context add a one-occurrence bias.
func detectDomains(lower string, domains []taxonomy.Domain, cctx *Context) (primary string, secondary []string, score float64, matched []string) {
	session := make(map[string]bool)
	if cctx != nil {
		for _, d := range cctx.SessionDomains {
			session[strings.ToLower(d)] = true
		}
	}

	type domainScore struct {
		name    string
		score   float64
		matched []string
	}

	scores := make([]domainScore, 0, len(domains))
	for _, d := range domains {
		ds := domainScore{name: d.Name}
		for _, kw := range d.Keywords {
			if n := countKeyword(lower, kw); n > 0 {
				ds.score += float64(n)
				ds.matched = append(ds.matched, kw)
			}
		}
		if session[d.Name] && ds.score > 0 {
			ds.score++
		}
		if ds.score > 0 {
			scores = append(scores, ds)
		}
	}

	if len(scores) == 0 {
		return "", nil, 0, nil
	}

	// Stable sort keeps taxonomy order as the tie-break.
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	primary = scores[0].name
	score = scores[0].score
	matched = scores[0].matched
	for _, ds := range scores[1:] {
		secondary = append(secondary, ds.name)
		if len(secondary) == 3 {
			break
		}
	}
	return primary, secondary, score, matched
}

// extractObservations scans the text with the ordered insight patterns.
// Each distinct match position yields one observation; when patterns
// overlap on the same span, the earlier pattern in the table wins.
func (c *Classifier) extractObservations(text, lower string, snap *taxonomy.Snapshot) []Observation {
	type span struct{ start, end int }
	var claimed []span
	overlaps := func(start, end int) bool {
		for _, s := range claimed {
			if start < s.end && end > s.start {
				return true
			}
		}
		return false
	}

	var observations []Observation
	for _, p := range snap.Insights {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			if overlaps(loc[0], loc[1]) {
				continue
			}
			claimed = append(claimed, span{loc[0], loc[1]})

			window := contextWindow(text, loc[0], loc[1], c.radius)
			observations = append(observations, Observation{
				Category:     p.Category,
				Text:         window,
				InferredTags: tagsInWindow(strings.ToLower(window), snap),
				Weight:       p.Weight,
			})
		}
	}

	// Report observations in document order regardless of pattern order.
	sort.SliceStable(observations, func(i, j int) bool {
		return strings.Index(text, observations[i].Text) < strings.Index(text, observations[j].Text)
	})
	return observations
}

// contextWindow extracts +-radius characters around a match, snapped
// outward to whitespace so windows do not split words.
func contextWindow(text string, start, end, radius int) string {
	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	hi := end + radius
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && !unicode.IsSpace(rune(text[lo-1])) {
		lo--
	}
	for hi < len(text) && !unicode.IsSpace(rune(text[hi])) {
		hi++
	}
	return strings.TrimSpace(text[lo:hi])
}

// tagsInWindow collects technology tags whose keywords appear in a window.
func tagsInWindow(lowerWindow string, snap *taxonomy.Snapshot) []string {
	var tags []string
	for _, rule := range snap.Technologies {
		for _, kw := range rule.Keywords {
			if countKeyword(lowerWindow, kw) > 0 {
				tags = append(tags, rule.Tag)
				break
			}
		}
	}
	return tags
}

// inferRelations emits candidate relations: wiki links become forward
// references, and observations whose tags match existing notes in the
// caller's tag index become lookups. Lexical cues upgrade the type.
func inferRelations(text string, observations []Observation, cctx *Context) []knowledge.Relation {
	var relations []knowledge.Relation
	seen := make(map[string]bool)

	add := func(r knowledge.Relation) {
		key := r.TargetNoteID + "|" + r.TargetLabel + "|" + string(r.Type)
		if seen[key] {
			return
		}
		seen[key] = true
		relations = append(relations, r)
	}

	for _, m := range wikiLink.FindAllStringSubmatch(text, -1) {
		add(knowledge.Relation{
			TargetLabel: strings.TrimSpace(m[1]),
			Type:        knowledge.RelationRelatesTo,
			Confidence:  0.9,
			Source:      knowledge.RelationSourceAuto,
		})
	}

	var index *TagIndex
	if cctx != nil {
		index = cctx.Index
	}
	if index == nil {
		return relations
	}

	for _, obs := range observations {
		relType := knowledge.RelationRelatesTo
		confidence := 0.55
		switch {
		case partOfCue.MatchString(obs.Text):
			relType = knowledge.RelationPartOf
			confidence = 0.7
		case solvesCue.MatchString(obs.Text):
			relType = knowledge.RelationSolves
			confidence = 0.7
		}

		for _, tag := range obs.InferredTags {
			for _, ref := range index.Lookup(tag) {
				add(knowledge.Relation{
					TargetNoteID: ref.ID,
					TargetLabel:  ref.Title,
					Type:         relType,
					Confidence:   confidence,
					Source:       knowledge.RelationSourceAuto,
				})
			}
		}
	}
	return relations
}

// generateTags unions domain, content-type, technology, and up to
// maxSemanticTags matched domain keywords, deduplicated per (value, type).
func generateTags(contentType knowledge.ContentType, primary string, secondary []string, lower string, matchedKeywords []string, technologies []taxonomy.TechnologyRule) []knowledge.Tag {
	var tags []knowledge.Tag
	seen := make(map[string]bool)

	add := func(value string, tagType knowledge.TagType, confidence float64) {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			return
		}
		key := value + "|" + string(tagType)
		if seen[key] {
			return
		}
		seen[key] = true
		tags = append(tags, knowledge.Tag{
			Value:      value,
			TagType:    tagType,
			Confidence: confidence,
			Source:     knowledge.TagSourceAuto,
		})
	}

	if primary != "" {
		add(primary, knowledge.TagTypeDomain, 0.9)
	}
	for _, d := range secondary {
		add(d, knowledge.TagTypeDomain, 0.6)
	}
	add(string(contentType), knowledge.TagTypeContentType, 1.0)

	for _, rule := range technologies {
		for _, kw := range rule.Keywords {
			if countKeyword(lower, kw) > 0 {
				add(rule.Tag, knowledge.TagTypeTechnology, 0.8)
				break
			}
		}
	}

	semantic := 0
	for _, kw := range matchedKeywords {
		if semantic == maxSemanticTags {
			break
		}
		// Multi-word keywords become dashed tag values.
		add(strings.ReplaceAll(kw, " ", "-"), knowledge.TagTypeSemantic, 0.5)
		semantic++
	}

	return tags
}

// structureScore estimates structural specificity: concrete proper nouns
// and figures raise it, vague language lowers it.
func structureScore(text string) float64 {
	tokens := strings.Fields(text)
	if len(tokens) < 3 {
		return 0
	}

	capitalized := 0
	sentenceStart := true
	hasDigit := false
	for _, tok := range tokens {
		r := rune(tok[0])
		if unicode.IsUpper(r) && !sentenceStart {
			capitalized++
		}
		for _, c := range tok {
			if unicode.IsDigit(c) {
				hasDigit = true
				break
			}
		}
		sentenceStart = strings.HasSuffix(tok, ".") || strings.HasSuffix(tok, "!") || strings.HasSuffix(tok, "?") || strings.HasSuffix(tok, ":")
	}

	score := 4.0 * float64(capitalized) / float64(len(tokens))
	if hasDigit {
		score += 0.2
	}
	lower := strings.ToLower(text)
	for _, w := range vagueWords {
		if countKeyword(lower, w) > 0 {
			score -= 0.1
		}
	}
	return clamp01(score)
}

// deriveTitle takes the first line, strips markdown heading markers, and
// truncates at a word boundary.
func deriveTitle(text string) string {
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	line = strings.TrimSpace(strings.TrimLeft(line, "# "))
	if i := strings.IndexAny(line, ".!?"); i > 20 {
		line = line[:i]
	}
	const maxTitle = 80
	if len(line) > maxTitle {
		cut := strings.LastIndexByte(line[:maxTitle], ' ')
		if cut < 20 {
			cut = maxTitle
		}
		line = line[:cut]
	}
	return strings.TrimSpace(line)
}

// countKeyword counts case-insensitive occurrences of kw in lower on word
// boundaries, also matching simple plural forms ("endpoints", "a records").
// Both arguments must already be lowercased.
func countKeyword(lower, kw string) int {
	count := 0
	for i := 0; ; {
		j := strings.Index(lower[i:], kw)
		if j < 0 {
			return count
		}
		start := i + j
		end := start + len(kw)
		beforeOK := start == 0 || !isWordByte(lower[start-1])
		afterOK := end == len(lower) || !isWordByte(lower[end]) || isPluralSuffix(lower[end:])
		if beforeOK && afterOK {
			count++
		}
		i = end
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}

// isPluralSuffix reports whether rest begins with a plural ending
// followed by a word boundary.
func isPluralSuffix(rest string) bool {
	n := 0
	for n < len(rest) && isWordByte(rest[n]) {
		n++
	}
	suffix := rest[:n]
	return suffix == "s" || suffix == "es"
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
