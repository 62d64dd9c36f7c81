package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/taxonomy"
)

const discoveryText = `I discovered that the Azure Private DNS zone wasn't linked to the hub VNet.
Databricks workspaces need a private endpoint, and the private endpoint requires an A record
in the zone. The problem was that name resolution failed from the spoke. I fixed it by linking
the zone to the hub VNet and adding an A record for 10.1.4.10, the workspace endpoint.`

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	return New(taxonomy.NewStore())
}

func TestClassify_DiscoveryText(t *testing.T) {
	c := newTestClassifier(t)

	result, err := c.Classify(discoveryText, &Context{SourceType: knowledge.SourceConversation})
	require.NoError(t, err)

	assert.Equal(t, knowledge.ContentTypeNote, result.ContentType)
	assert.Equal(t, "azure", result.PrimaryDomain)
	assert.GreaterOrEqual(t, result.Confidence, 0.85)
	assert.Equal(t, "1-notes", result.Destination)

	require.GreaterOrEqual(t, len(result.Observations), 2)
	categories := make(map[taxonomy.ObservationCategory]bool)
	for _, obs := range result.Observations {
		categories[obs.Category] = true
	}
	assert.True(t, categories[taxonomy.CategoryIssue], "expected an issue observation")
	assert.True(t, categories[taxonomy.CategorySolution], "expected a solution observation")
}

func TestClassify_PluralKeywordMentions(t *testing.T) {
	c := newTestClassifier(t)

	// Domain keywords appear only in plural form; the score must still
	// clear the auto-file threshold for conversation insights.
	text := "I discovered that Azure Databricks requires specific DNS configuration " +
		"for private endpoints. The issue was missing A records. Solution is to create an A record."

	result, err := c.Classify(text, &Context{SourceType: knowledge.SourceConversation})
	require.NoError(t, err)

	assert.Equal(t, "azure", result.PrimaryDomain)
	assert.GreaterOrEqual(t, result.Confidence, 0.85)
}

func TestCountKeyword(t *testing.T) {
	tests := []struct {
		name string
		text string
		kw   string
		want int
	}{
		{"exact", "the private endpoint is up", "private endpoint", 1},
		{"plural s", "three private endpoints exist", "private endpoint", 1},
		{"plural es", "several processes failed", "process", 1},
		{"substring rejected", "the endpointer tool", "endpoint", 0},
		{"prefix rejected", "a recorder ran", "a record", 0},
		{"multiple", "dns here, dns there, and dnsmasq", "dns", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, countKeyword(tt.text, tt.kw))
		})
	}
}

func TestClassify_TrivialInput(t *testing.T) {
	c := newTestClassifier(t)

	result, err := c.Classify("ok", &Context{SourceType: knowledge.SourceConversation})
	require.NoError(t, err)

	assert.Less(t, result.Confidence, 0.60)
	assert.Empty(t, result.Observations)
	assert.Empty(t, result.PrimaryDomain)
}

func TestClassify_EmptyInput(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Classify(tt.text, nil)
			assert.ErrorIs(t, err, ErrEmptyInput)
		})
	}
}

func TestClassify_InvalidContext(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name string
		cctx *Context
	}{
		{"bad source type", &Context{SourceType: "webhook"}},
		{"empty session domain", &Context{SessionDomains: []string{""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Classify("some text", tt.cctx)
			assert.ErrorIs(t, err, ErrInvalidContext)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := newTestClassifier(t)
	cctx := &Context{SourceType: knowledge.SourceConversation}

	first, err := c.Classify(discoveryText, cctx)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := c.Classify(discoveryText, cctx)
		require.NoError(t, err)
		assert.Equal(t, first.Confidence, again.Confidence)
		assert.Equal(t, first.PrimaryDomain, again.PrimaryDomain)
		assert.Equal(t, first.Fingerprint, again.Fingerprint)
		assert.Equal(t, len(first.Observations), len(again.Observations))
	}
}

func TestClassify_ConfidenceBounds(t *testing.T) {
	c := newTestClassifier(t)

	inputs := []string{
		"ok",
		"thanks",
		discoveryText,
		strings.Repeat("kubernetes terraform azure aws docker dns database security ", 50),
		"The fix requires that we always set the busy timeout. I learned that WAL mode matters.",
	}
	for _, text := range inputs {
		result, err := c.Classify(text, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, result.Confidence, 0.0)
		assert.LessOrEqual(t, result.Confidence, 1.0)
	}
}

func TestClassify_SessionDomainBias(t *testing.T) {
	c := newTestClassifier(t)

	// One aws and one gcp mention: the session bias should break the tie.
	text := "Reviewed the aws account and the gcp project quota settings today in detail."

	biased, err := c.Classify(text, &Context{SessionDomains: []string{"gcp"}})
	require.NoError(t, err)
	assert.Equal(t, "gcp", biased.PrimaryDomain)
}

func TestClassify_ContentTypes(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name string
		text string
		want knowledge.ContentType
	}{
		{
			name: "project",
			text: "Project kickoff: the deadline is next month and the milestone list includes the deliverable for the migration.",
			want: knowledge.ContentTypeProject,
		},
		{
			name: "moc",
			text: "This is an overview and index of everything related to networking, a map of content linking the key topics together.",
			want: knowledge.ContentTypeMOC,
		},
		{
			name: "default note",
			text: "I noticed that the cache invalidation path is subtle and worth remembering for later work.",
			want: knowledge.ContentTypeNote,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := c.Classify(tt.text, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.ContentType)
		})
	}
}

func TestClassify_WikiLinkRelations(t *testing.T) {
	c := newTestClassifier(t)

	result, err := c.Classify("This connects the hub topology with [[Azure Hub VNet]] and also [[DNS Forwarding|the forwarder]].", nil)
	require.NoError(t, err)

	require.Len(t, result.Relations, 2)
	labels := []string{result.Relations[0].TargetLabel, result.Relations[1].TargetLabel}
	assert.Contains(t, labels, "Azure Hub VNet")
	assert.Contains(t, labels, "DNS Forwarding")
	for _, rel := range result.Relations {
		assert.Empty(t, rel.TargetNoteID)
		assert.InDelta(t, 0.9, rel.Confidence, 0.001)
	}
}

func TestClassify_TagIndexRelations(t *testing.T) {
	c := newTestClassifier(t)

	index := NewTagIndex(map[string][]NoteRef{
		"azure": {{ID: "note-1", Title: "Azure Landing Zone", ContentType: knowledge.ContentTypeMOC}},
	})

	result, err := c.Classify(discoveryText, &Context{Index: index})
	require.NoError(t, err)

	var found bool
	for _, rel := range result.Relations {
		if rel.TargetNoteID == "note-1" {
			found = true
		}
	}
	assert.True(t, found, "expected a relation to the indexed azure note")
}

func TestClassify_TruncatesLongInput(t *testing.T) {
	c := newTestClassifier(t)

	long := strings.Repeat("a", 100_000) + " kubernetes"
	result, err := c.Classify(long, nil)
	require.NoError(t, err)
	// The kubernetes mention sits past the 64KB cap and must not count.
	assert.NotEqual(t, "kubernetes", result.PrimaryDomain)
}

func TestDestinationFor(t *testing.T) {
	tests := []struct {
		ct   knowledge.ContentType
		want string
	}{
		{knowledge.ContentTypeNote, "1-notes"},
		{knowledge.ContentTypeMOC, "2-mocs"},
		{knowledge.ContentTypeProject, "3-projects"},
		{knowledge.ContentTypeArea, "4-areas"},
		{knowledge.ContentTypeResource, "5-resources"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DestinationFor(tt.ct))
	}
}
