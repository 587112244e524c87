package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// JSONLSink appends events to one newline-delimited JSON file per UTC day,
// named YYYY-MM-DD.jsonl.
type JSONLSink struct {
	dir string
	mu  sync.Mutex
}

// NewJSONLSink creates dir if needed.
func NewJSONLSink(dir string) (*JSONLSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}
	return &JSONLSink{dir: dir}, nil
}

// Path returns the log file for day (YYYY-MM-DD).
func (s *JSONLSink) Path(day string) string {
	return filepath.Join(s.dir, day+".jsonl")
}

// Emit appends e as a single line. The file is opened with O_APPEND and the
// line is written in one call, so lines from separate processes do not
// interleave on local filesystems.
func (s *JSONLSink) Emit(_ context.Context, e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding telemetry event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(e.Day()), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening telemetry log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("appending telemetry event: %w", err)
	}
	return f.Close()
}

// ReadDay returns the events logged for day in append order. A day with no
// log yields an empty slice.
func (s *JSONLSink) ReadDay(day string) ([]Event, error) {
	f, err := os.Open(s.Path(day))
	if errors.Is(err, fs.ErrNotExist) {
		return []Event{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	events := []Event{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", day, n, err)
		}
		events = append(events, e)
	}
	return events, sc.Err()
}
