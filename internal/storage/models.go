package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrExists is returned by PutIfAbsent when the key is already taken.
var ErrExists = errors.New("already exists")

// TelemetryEvent is one row of the telemetry_events table.
type TelemetryEvent struct {
	RunID            string
	Stage            string
	InputArtifactID  string
	OutputArtifactID string
	LatencyMs        int64
	CostUSD          float64
	Timestamp        time.Time
	Replayable       bool
	ReplayOf         string // empty when the event is not a replay
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

type ContextDoc struct {
	ID        string    `json:"context_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
