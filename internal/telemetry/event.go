// Package telemetry records one event per stage execution. Sinks fan events
// out to date-bucketed JSONL logs, the SQLite store and OpenTelemetry metrics.
package telemetry

import (
	"context"
	"time"
)

// Event describes one stage transition from an input artifact to an output
// artifact.
type Event struct {
	RunID            string    `json:"run_id"`
	Stage            string    `json:"stage"`
	InputArtifactID  string    `json:"input_artifact_id"`
	OutputArtifactID string    `json:"output_artifact_id"`
	LatencyMs        int64     `json:"latency_ms"`
	CostUSD          float64   `json:"cost_usd"`
	Timestamp        time.Time `json:"timestamp"`
	Replayable       bool      `json:"replayable"`
	ReplayOf         *string   `json:"replay_of"` // nil unless the event comes from a replay
}

// IsReplay reports whether the event was produced by a replay.
func (e Event) IsReplay() bool {
	return e.ReplayOf != nil
}

// Day returns the UTC calendar day the event is bucketed under (YYYY-MM-DD).
func (e Event) Day() string {
	return e.Timestamp.UTC().Format(time.DateOnly)
}

// Sink receives stage events. Emit must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, Event) error { return nil }
