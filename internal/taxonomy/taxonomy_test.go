package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name       string
		ct         knowledge.ContentType
		domain     string
		categories []ObservationCategory
		want       string
	}{
		{
			name:       "sorted unique categories",
			ct:         knowledge.ContentTypeNote,
			domain:     "azure",
			categories: []ObservationCategory{CategorySolution, CategoryIssue, CategorySolution},
			want:       "note|azure|issue,solution",
		},
		{
			name:   "no domain no categories",
			ct:     knowledge.ContentTypeResource,
			domain: "",
			want:   "resource|none|",
		},
		{
			name:       "domain lowercased",
			ct:         knowledge.ContentTypeNote,
			domain:     "Azure",
			categories: []ObservationCategory{CategoryInsight},
			want:       "note|azure|insight",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fingerprint(tt.ct, tt.domain, tt.categories))
		})
	}
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := Fingerprint(knowledge.ContentTypeNote, "dns", []ObservationCategory{CategoryIssue, CategorySolution, CategoryInsight})
	b := Fingerprint(knowledge.ContentTypeNote, "dns", []ObservationCategory{CategorySolution, CategoryInsight, CategoryIssue})
	assert.Equal(t, a, b)
}

func TestStore_Adjustments(t *testing.T) {
	s := NewStore()

	snap := s.Snapshot()
	assert.Zero(t, snap.AdjustmentFor("note|azure|insight"))

	require.NoError(t, s.SetAdjustment("note|azure|insight", -0.1))
	assert.InDelta(t, -0.1, s.Snapshot().AdjustmentFor("note|azure|insight"), 0.0001)

	// Snapshots are immutable copies.
	require.NoError(t, s.SetAdjustment("note|azure|insight", -0.2))
	assert.InDelta(t, -0.1, snap.AdjustmentFor("note|azure|insight"), 0.0001,
		"existing snapshot must not see later writes")
}

func TestStore_LoadAdjustments(t *testing.T) {
	s := NewStore()
	s.LoadAdjustments(map[string]float64{
		"note|azure|insight": -0.05,
		"note|dns|issue":     0.1,
	})

	snap := s.Snapshot()
	assert.InDelta(t, -0.05, snap.AdjustmentFor("note|azure|insight"), 0.0001)
	assert.InDelta(t, 0.1, snap.AdjustmentFor("note|dns|issue"), 0.0001)
}

func TestThresholdSet_Validate(t *testing.T) {
	tests := []struct {
		name    string
		set     ThresholdSet
		wantErr bool
	}{
		{"defaults are valid", DefaultThresholds(), false},
		{"below floor", ThresholdSet{AutoConversation: 0.4, AutoInbox: 0.85, Suggest: 0.6}, true},
		{"above ceiling", ThresholdSet{AutoConversation: 0.8, AutoInbox: 0.96, Suggest: 0.6}, true},
		{"suggest above auto", ThresholdSet{AutoConversation: 0.7, AutoInbox: 0.85, Suggest: 0.75}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestThresholdSet_AutoFor(t *testing.T) {
	set := DefaultThresholds()
	assert.Equal(t, set.AutoConversation, set.AutoFor(knowledge.SourceConversation))
	assert.Equal(t, set.AutoInbox, set.AutoFor(knowledge.SourceInbox))
	assert.Equal(t, set.AutoConversation, set.AutoFor(knowledge.SourceManual))
}

func TestStore_SetThresholds(t *testing.T) {
	s := NewStore()

	valid := ThresholdSet{AutoConversation: 0.75, AutoInbox: 0.9, Suggest: 0.55}
	require.NoError(t, s.SetThresholds(valid))
	assert.Equal(t, valid, s.Thresholds())

	invalid := ThresholdSet{AutoConversation: 0.3, AutoInbox: 0.9, Suggest: 0.55}
	assert.Error(t, s.SetThresholds(invalid))
	assert.Equal(t, valid, s.Thresholds(), "invalid set must not replace the current one")
}
