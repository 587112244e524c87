package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/tengine/internal/artifact"
	"github.com/kalambet/tengine/internal/retrieval"
	"github.com/kalambet/tengine/internal/stage"
	"github.com/kalambet/tengine/internal/storage"
	"github.com/kalambet/tengine/internal/telemetry"
)

func newService(t *testing.T) (*Service, *telemetry.Recorder) {
	t.Helper()
	rec := &telemetry.Recorder{}
	return New(Options{
		Store:     artifact.NewStore(storage.NewMemStore()),
		Sink:      rec,
		Retriever: retrieval.NewRetriever(retrieval.StaticSource{{ID: "roadmap", Content: "Q4 roadmap and launch plan"}}),
	}), rec
}

func TestService_EndToEnd(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, "Kim: The launch is next week.\nLee: I will prepare the roadmap.", "")
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	final := res.Final()
	require.NotNil(t, final)
	run, err := artifact.RunIDOf(final.ID)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, run)
	assert.Equal(t, []string{"roadmap"}, final.ReferencedContext)

	view, err := svc.GetLineage(ctx, final.ID)
	require.NoError(t, err)
	require.Len(t, view.Chain, 4)
	assert.Equal(t, res.Artifacts[stage.Insight].ID, view.Chain[0].Artifact.ID)
	assert.Equal(t, res.Artifacts[stage.Normalize].ID, view.Chain[3].Artifact.ID)
	require.Len(t, view.Versions, 1)

	v2, err := svc.ReplayStage(ctx, final.ID, "validate")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	view, err = svc.GetLineage(ctx, v2.ID)
	require.NoError(t, err)
	require.Len(t, view.Versions, 2)
	assert.Equal(t, final.ID, view.Chain[0].Artifact.ID)
	assert.Len(t, view.Chain, 5)

	assert.Len(t, rec.Events(), 6)

	got, err := svc.Artifact(ctx, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.Confidence, got.Confidence)
}

func TestService_ReplayUnknownStage(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.ReplayStage(context.Background(), "extraction_20250101_r_v1", "context_injection")
	assert.ErrorIs(t, err, stage.ErrUnknownStage)
}
