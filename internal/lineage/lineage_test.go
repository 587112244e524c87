package lineage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/tengine/internal/artifact"
	"github.com/kalambet/tengine/internal/storage"
)

func put(t *testing.T, s *artifact.Store, id string, typ artifact.Type, parents ...string) *artifact.Artifact {
	t.Helper()
	_, v, err := artifact.ParseID(id)
	require.NoError(t, err)
	var content artifact.Payload
	switch typ {
	case artifact.TypeTranscript:
		content = artifact.Transcript{Text: id}
	case artifact.TypeInsight:
		content = artifact.Insight{Recommendations: []string{}, RiskFlags: []string{}}
	default:
		content = artifact.Extraction{Summary: id, Tasks: []string{}, Decisions: []string{}}
	}
	if parents == nil {
		parents = []string{}
	}
	a := &artifact.Artifact{
		ID:                id,
		Type:              typ,
		Content:           content,
		DerivedFrom:       parents,
		ReferencedContext: []string{},
		Confidence:        0.9,
		Status:            artifact.StatusDraft,
		Version:           v,
		CreatedAt:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Save(a))
	return a
}

func ids(as []*artifact.Artifact) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}

func TestResolveChain_ParentFirst(t *testing.T) {
	s := artifact.NewStore(storage.NewMemStore())
	put(t, s, "transcript_20250101_r_v1", artifact.TypeTranscript)
	put(t, s, "extraction_20250101_r_v1", artifact.TypeExtraction, "transcript_20250101_r_v1")
	put(t, s, "contextualized_20250101_r_v1", artifact.TypeContextualized, "extraction_20250101_r_v1")
	put(t, s, "insight_20250101_r_v1", artifact.TypeInsight, "contextualized_20250101_r_v1")

	chain, err := NewResolver(s).ResolveChain("insight_20250101_r_v1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"contextualized_20250101_r_v1",
		"extraction_20250101_r_v1",
		"transcript_20250101_r_v1",
	}, ids(chain))

	root, err := NewResolver(s).ResolveChain("transcript_20250101_r_v1")
	require.NoError(t, err)
	assert.Empty(t, root)
}

func TestAncestry_MultipleParentsAndShared(t *testing.T) {
	s := artifact.NewStore(storage.NewMemStore())
	put(t, s, "transcript_20250101_a_v1", artifact.TypeTranscript)
	put(t, s, "transcript_20250101_b_v1", artifact.TypeTranscript)
	put(t, s, "extraction_20250101_a_v1", artifact.TypeExtraction, "transcript_20250101_a_v1")
	put(t, s, "extraction_20250101_m_v1", artifact.TypeExtraction,
		"extraction_20250101_a_v1", "transcript_20250101_b_v1", "transcript_20250101_a_v1")

	chain, err := NewResolver(s).Ancestry("extraction_20250101_m_v1")
	require.NoError(t, err)

	var got []string
	for _, a := range chain {
		got = append(got, fmt.Sprintf("%d:%s", a.Depth, a.Artifact.ID))
	}
	assert.Equal(t, []string{
		"1:extraction_20250101_a_v1",
		"2:transcript_20250101_a_v1",
		"1:transcript_20250101_b_v1",
	}, got)
}

func TestAncestry_DepthBound(t *testing.T) {
	s := artifact.NewStore(storage.NewMemStore())
	put(t, s, "extraction_20250101_r_v1", artifact.TypeExtraction)
	for v := 2; v <= 6; v++ {
		put(t, s, fmt.Sprintf("extraction_20250101_r_v%d", v), artifact.TypeExtraction,
			fmt.Sprintf("extraction_20250101_r_v%d", v-1))
	}

	chain, err := NewResolver(s).ResolveChain("extraction_20250101_r_v6")
	require.NoError(t, err)
	assert.Len(t, chain, 5)

	_, err = NewResolver(s).WithMaxDepth(3).ResolveChain("extraction_20250101_r_v6")
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestAncestry_MissingAncestor(t *testing.T) {
	mem := storage.NewMemStore()
	s := artifact.NewStore(mem)
	put(t, s, "transcript_20250101_r_v1", artifact.TypeTranscript)
	child := &artifact.Artifact{
		ID: "extraction_20250101_r_v1", Type: artifact.TypeExtraction,
		Content:     artifact.Extraction{Tasks: []string{}, Decisions: []string{}},
		DerivedFrom: []string{"transcript_20250101_gone_v1"}, ReferencedContext: []string{},
		Status: artifact.StatusDraft, Version: 1,
	}
	// Bypass Save's parent check to simulate a damaged store.
	data, err := artifact.Marshal(child)
	require.NoError(t, err)
	require.NoError(t, mem.PutIfAbsent(child.ID, data))

	_, err = NewResolver(s).ResolveChain(child.ID)
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestListFamily_NumericOrderExactFamily(t *testing.T) {
	s := artifact.NewStore(storage.NewMemStore())
	put(t, s, "extraction_20250101_r_v1", artifact.TypeExtraction)
	for v := 2; v <= 11; v++ {
		put(t, s, fmt.Sprintf("extraction_20250101_r_v%d", v), artifact.TypeExtraction,
			fmt.Sprintf("extraction_20250101_r_v%d", v-1))
	}
	put(t, s, "extraction_20250101_r_vip_v1", artifact.TypeExtraction)

	family, err := NewResolver(s).ListFamily("extraction_20250101_r")
	require.NoError(t, err)
	require.Len(t, family, 11)
	for i, a := range family {
		assert.Equal(t, i+1, a.Version)
	}
}

func TestLineage(t *testing.T) {
	s := artifact.NewStore(storage.NewMemStore())
	put(t, s, "transcript_20250101_r_v1", artifact.TypeTranscript)
	put(t, s, "extraction_20250101_r_v1", artifact.TypeExtraction, "transcript_20250101_r_v1")
	put(t, s, "extraction_20250101_r_v2", artifact.TypeExtraction, "extraction_20250101_r_v1")

	v, err := NewResolver(s).Lineage("extraction_20250101_r_v2")
	require.NoError(t, err)
	assert.Equal(t, "extraction_20250101_r_v2", v.Artifact.ID)
	require.Len(t, v.Chain, 2)
	assert.Equal(t, "extraction_20250101_r_v1", v.Chain[0].Artifact.ID)
	assert.Equal(t, "transcript_20250101_r_v1", v.Chain[1].Artifact.ID)
	assert.Equal(t, []string{"extraction_20250101_r_v1", "extraction_20250101_r_v2"}, ids(v.Versions))

	_, err = NewResolver(s).Lineage("insight_20250101_r_v1")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}
