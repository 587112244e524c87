package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/kalambet/tengine/internal/storage"
)

func strPtr(s string) *string { return &s }

func sampleEvent(ts time.Time) Event {
	return Event{
		RunID:            "r1",
		Stage:            "extract",
		InputArtifactID:  "transcript_20250314_r1_v1",
		OutputArtifactID: "extraction_20250314_r1_v1",
		LatencyMs:        3,
		Timestamp:        ts,
		Replayable:       true,
	}
}

func TestEvent_JSONShape(t *testing.T) {
	data, err := json.Marshal(sampleEvent(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"run_id", "stage", "input_artifact_id", "output_artifact_id", "latency_ms", "cost_usd", "timestamp", "replayable", "replay_of"} {
		assert.Contains(t, m, key)
	}
	assert.Nil(t, m["replay_of"])
}

func TestJSONLSink_BucketsByUTCDay(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewJSONLSink(dir)
	require.NoError(t, err)

	late := time.Date(2025, 3, 14, 23, 30, 0, 0, time.FixedZone("X", -2*3600)) // 01:30 UTC on the 15th
	early := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)

	replay := sampleEvent(late)
	replay.ReplayOf = strPtr("extraction_20250314_r1_v1")

	require.NoError(t, sink.Emit(context.Background(), sampleEvent(early)))
	require.NoError(t, sink.Emit(context.Background(), replay))

	day14, err := sink.ReadDay("2025-03-14")
	require.NoError(t, err)
	require.Len(t, day14, 1)
	assert.Nil(t, day14[0].ReplayOf)

	day15, err := sink.ReadDay("2025-03-15")
	require.NoError(t, err)
	require.Len(t, day15, 1)
	require.NotNil(t, day15[0].ReplayOf)
	assert.Equal(t, "extraction_20250314_r1_v1", *day15[0].ReplayOf)

	none, err := sink.ReadDay("2025-03-16")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJSONLSink_ConcurrentAppends(t *testing.T) {
	sink, err := NewJSONLSink(t.TempDir())
	require.NoError(t, err)

	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sink.Emit(context.Background(), sampleEvent(ts)))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(sink.Path("2025-01-01"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 20)
	for _, l := range lines {
		assert.True(t, json.Valid([]byte(l)), "line %q", l)
	}
}

func TestStoreSink(t *testing.T) {
	st, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sink := NewStoreSink(st)
	ts := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	e := sampleEvent(ts)
	e.ReplayOf = strPtr("extraction_20250314_r1_v1")
	require.NoError(t, sink.Emit(context.Background(), e))

	plain := sampleEvent(ts.Add(24 * time.Hour))
	require.NoError(t, sink.Emit(context.Background(), plain))

	events, err := sink.ReadRun("r1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	got := events[0]
	require.NotNil(t, got.ReplayOf)
	assert.Equal(t, *e.ReplayOf, *got.ReplayOf)
	assert.True(t, got.Timestamp.Equal(ts))
	assert.Equal(t, e.OutputArtifactID, got.OutputArtifactID)
	assert.Nil(t, events[1].ReplayOf)

	day, err := sink.ReadDay("2025-03-15")
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.False(t, day[0].IsReplay())

	none, err := sink.ReadDay("2025-03-16")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMetricsSink(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	sink, err := NewMetricsSink(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	ts := time.Now()
	require.NoError(t, sink.Emit(ctx, sampleEvent(ts)))
	require.NoError(t, sink.Emit(ctx, sampleEvent(ts)))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var total int64
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if m.Name != "tengine.stage.executions" {
			continue
		}
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		for _, dp := range sum.DataPoints {
			total += dp.Value
		}
	}
	assert.Equal(t, int64(2), total)
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &Recorder{}
	failing := &Recorder{Err: errors.New("disk full")}

	err := Multi{ok, failing}.Emit(context.Background(), sampleEvent(time.Now()))
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, ok.Events(), 1)
	assert.Empty(t, failing.Events())
}

func TestSummarize(t *testing.T) {
	orig := "extraction_20250101_r1_v1"
	events := []Event{
		{RunID: "r1", Stage: "normalize", LatencyMs: 2},
		{RunID: "r1", Stage: "extract", LatencyMs: 4, CostUSD: 0.5},
		{RunID: "r2", Stage: "normalize", LatencyMs: 4},
		{RunID: "r1", Stage: "extract", LatencyMs: 8, ReplayOf: &orig},
	}

	got := Summarize(events)
	require.Len(t, got, 2)
	assert.Equal(t, StageSummary{Stage: "normalize", Executions: 2, MeanLatencyMs: 3}, got[0])
	assert.Equal(t, StageSummary{Stage: "extract", Executions: 2, Replays: 1, MeanLatencyMs: 6, TotalCostUSD: 0.5}, got[1])
	assert.Equal(t, []string{"r1", "r2"}, Runs(events))
	assert.Empty(t, Summarize(nil))
}

func TestInitMetrics_NoEndpoint(t *testing.T) {
	shutdown, err := InitMetrics(context.Background(), "", "test", false, 0)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
