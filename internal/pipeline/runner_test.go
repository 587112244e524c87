package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/tengine/internal/artifact"
	"github.com/kalambet/tengine/internal/stage"
	"github.com/kalambet/tengine/internal/storage"
	"github.com/kalambet/tengine/internal/telemetry"
)

const transcript = `Dana: We agree to ship on Friday.
Eli: I will write the release notes.
Dana: Todo: ping legal.`

func newRunner(t *testing.T, sink telemetry.Sink) (*Runner, *artifact.Store) {
	t.Helper()
	store := artifact.NewStore(storage.NewMemStore())
	env := &stage.Env{
		Store: store,
		Sink:  sink,
		Now:   func() time.Time { return time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC) },
	}
	return NewRunner(stage.NewRegistry(env, nil), nil), store
}

func TestIngest_ProducesAllStages(t *testing.T) {
	rec := &telemetry.Recorder{}
	r, store := newRunner(t, rec)

	res, err := r.Ingest(context.Background(), transcript, "run1")
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 5)

	ordered := res.Ordered()
	require.Len(t, ordered, 5)
	wantTypes := []artifact.Type{
		artifact.TypeTranscript,
		artifact.TypeExtraction,
		artifact.TypeContextualized,
		artifact.TypeInsight,
		artifact.TypeValidated,
	}
	for i, a := range ordered {
		assert.Equal(t, wantTypes[i], a.Type)
		ok, err := store.Exists(a.ID)
		require.NoError(t, err)
		assert.True(t, ok, "%s not persisted", a.ID)
	}
	assert.Equal(t, "validated_20250701_run1_v1", res.Final().ID)
	assert.Len(t, rec.Events(), 5)
}

func TestIngest_FailFastKeepsEarlierArtifacts(t *testing.T) {
	rec := &telemetry.Recorder{}
	r, store := newRunner(t, rec)

	// Reusing a run id collides on the first artifact.
	_, err := r.Ingest(context.Background(), transcript, "dup")
	require.NoError(t, err)

	res, err := r.Ingest(context.Background(), "other text", "dup")
	require.Error(t, err)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, stage.Normalize, se.Stage)
	assert.Equal(t, "dup", se.RunID)
	assert.ErrorIs(t, err, artifact.ErrAlreadyExists)
	assert.Empty(t, res.Artifacts)

	first, err := store.Load("transcript_20250701_dup_v1")
	require.NoError(t, err)
	tr, err := first.Transcript()
	require.NoError(t, err)
	assert.Contains(t, tr.Text, "ship on Friday")
}

type failAfter struct {
	n     int
	count int
}

func (f *failAfter) Emit(context.Context, telemetry.Event) error {
	f.count++
	if f.count > f.n {
		return errors.New("sink unavailable")
	}
	return nil
}

func TestIngest_StopsAtFailingStage(t *testing.T) {
	r, store := newRunner(t, &failAfter{n: 2})

	res, err := r.Ingest(context.Background(), transcript, "r")
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, stage.Contextualize, se.Stage)
	assert.Len(t, res.Artifacts, 2)
	assert.Nil(t, res.Final())

	// The contextualized artifact was saved before telemetry failed; the
	// insight stage never ran.
	ok, err := store.Exists("insight_20250701_r_v1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIngest_CanceledContext(t *testing.T) {
	r, _ := newRunner(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Ingest(ctx, transcript, "r")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngest_RejectsBadRunID(t *testing.T) {
	r, _ := newRunner(t, nil)
	_, err := r.Ingest(context.Background(), transcript, "")
	assert.ErrorIs(t, err, ErrInvalidRunID)
	_, err = r.Ingest(context.Background(), transcript, "a/b")
	assert.ErrorIs(t, err, ErrInvalidRunID)
}
