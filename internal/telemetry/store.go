package telemetry

import (
	"context"

	"github.com/kalambet/tengine/internal/storage"
)

// EventStore is implemented by *storage.Store.
type EventStore interface {
	AppendEvent(e storage.TelemetryEvent) error
	ListEvents(runID string) ([]storage.TelemetryEvent, error)
	ListEventsByDay(day string) ([]storage.TelemetryEvent, error)
}

// StoreSink writes events into the telemetry_events table and reads them back.
type StoreSink struct {
	store EventStore
}

func NewStoreSink(store EventStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Emit(_ context.Context, e Event) error {
	row := storage.TelemetryEvent{
		RunID:            e.RunID,
		Stage:            e.Stage,
		InputArtifactID:  e.InputArtifactID,
		OutputArtifactID: e.OutputArtifactID,
		LatencyMs:        e.LatencyMs,
		CostUSD:          e.CostUSD,
		Timestamp:        e.Timestamp,
		Replayable:       e.Replayable,
	}
	if e.ReplayOf != nil {
		row.ReplayOf = *e.ReplayOf
	}
	return s.store.AppendEvent(row)
}

// ReadDay returns the events stored for one UTC day (YYYY-MM-DD) in append order.
func (s *StoreSink) ReadDay(day string) ([]Event, error) {
	rows, err := s.store.ListEventsByDay(day)
	if err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

// ReadRun returns every stored event of one run, replays included.
func (s *StoreSink) ReadRun(runID string) ([]Event, error) {
	rows, err := s.store.ListEvents(runID)
	if err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

func fromRows(rows []storage.TelemetryEvent) []Event {
	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, fromStorage(row))
	}
	return events
}

func fromStorage(row storage.TelemetryEvent) Event {
	e := Event{
		RunID:            row.RunID,
		Stage:            row.Stage,
		InputArtifactID:  row.InputArtifactID,
		OutputArtifactID: row.OutputArtifactID,
		LatencyMs:        row.LatencyMs,
		CostUSD:          row.CostUSD,
		Timestamp:        row.Timestamp,
		Replayable:       row.Replayable,
	}
	if row.ReplayOf != "" {
		replayOf := row.ReplayOf
		e.ReplayOf = &replayOf
	}
	return e
}
