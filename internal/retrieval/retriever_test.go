package retrieval

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/tengine/internal/storage"
)

func TestTerms(t *testing.T) {
	got := Terms(`We decided: "Pricing" (Q3) is the plan, and it's final!`)
	want := []string{"decided", "pricing", "plan", "it's", "final"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Terms mismatch (-want +got):\n%s", diff)
	}
}

func TestMatch(t *testing.T) {
	docs := []Document{
		{ID: "ctx-b", Content: "Budget review for Q3"},
		{ID: "ctx-a", Content: "Pricing POLICY: enterprise tiers"},
		{ID: "ctx-c", Content: "Unrelated notes"},
		{ID: "ctx-a", Content: "pricing duplicate id"},
	}

	tests := []struct {
		name    string
		summary string
		want    []string
	}{
		{"order follows documents", "pricing and budget", []string{"ctx-b", "ctx-a"}},
		{"substring match", "polic", []string{"ctx-a"}},
		{"stopwords only", "the and of was", []string{}},
		{"short words dropped", "q3 go", []string{}},
		{"no match", "roadmap", []string{}},
		{"empty summary", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.summary, docs)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRetriever_NilSource(t *testing.T) {
	ids, err := NewRetriever(nil).Retrieve(context.Background(), "pricing")
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

type failingSource struct{}

func (failingSource) Documents(context.Context) ([]Document, error) {
	return nil, errors.New("boom")
}

func TestRetriever_SourceError(t *testing.T) {
	_, err := NewRetriever(failingSource{}).Retrieve(context.Background(), "pricing")
	assert.ErrorContains(t, err, "boom")
}

func TestDirSource_OrderedByFileName(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"20-pricing.yaml": "context_id: pricing\ncontent: Enterprise pricing tiers\n",
		"10-budget.json":  `{"context_id": "budget", "content": "Quarterly budget"}`,
		"30-broken.yml":   "context_id: [unclosed\n",
		"40-noid.yaml":    "content: orphan\n",
		"notes.txt":       "context_id: ignored\ncontent: ignored\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	var logs bytes.Buffer
	src := NewDirSource(dir, slog.New(slog.NewTextHandler(&logs, nil)))
	docs, err := src.Documents(context.Background())
	require.NoError(t, err)

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"budget", "pricing"}, ids)
	assert.Contains(t, logs.String(), "30-broken.yml")
	assert.Contains(t, logs.String(), "40-noid.yaml")
}

func TestDirSource_MissingDir(t *testing.T) {
	docs, err := NewDirSource(filepath.Join(t.TempDir(), "absent"), nil).Documents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestWriteDocument_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteDocument(dir, Document{ID: "pricing", Title: "Pricing", Content: "Tiered pricing"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "pricing.yaml"), path)

	docs, err := NewDirSource(dir, nil).Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, Document{ID: "pricing", Title: "Pricing", Content: "Tiered pricing"}, docs[0])

	_, err = WriteDocument(dir, Document{ID: "../escape"})
	assert.Error(t, err)
}

func TestStoreSource(t *testing.T) {
	st, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.SaveContextDoc(storage.ContextDoc{ID: "b", Content: "budget"}))
	require.NoError(t, st.SaveContextDoc(storage.ContextDoc{ID: "a", Content: "pricing"}))

	ids, err := NewRetriever(NewStoreSource(st)).Retrieve(context.Background(), "pricing budget")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}
