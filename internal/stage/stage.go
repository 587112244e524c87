// Package stage implements the five pipeline transformations. Each variant
// shares one envelope: it checks the input type, computes the output payload
// and confidence, persists the new artifact and emits one telemetry event.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/tengine/internal/artifact"
	"github.com/kalambet/tengine/internal/telemetry"
)

// Name identifies a stage on the command line, in the API and in results.
type Name string

const (
	Normalize     Name = "normalize"
	Extract       Name = "extract"
	Contextualize Name = "contextualize"
	Insight       Name = "insight"
	Validate      Name = "validate"
)

// Order is the fixed pipeline sequence.
var Order = []Name{Normalize, Extract, Contextualize, Insight, Validate}

// ErrUnknownStage is returned for a stage name outside Order.
var ErrUnknownStage = errors.New("unknown stage")

// ParseName validates s as a stage name.
func ParseName(s string) (Name, error) {
	for _, n := range Order {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w %q (want one of normalize, extract, contextualize, insight, validate)", ErrUnknownStage, s)
}

// RawInputID is the input id recorded when normalize runs on text that has no
// artifact of its own.
const RawInputID = "raw_input"

// RawInput wraps text as an unpersisted transcript for the normalize stage.
func RawInput(text string) *artifact.Artifact {
	return &artifact.Artifact{
		ID:                RawInputID,
		Type:              artifact.TypeTranscript,
		Content:           artifact.Transcript{Text: text},
		DerivedFrom:       []string{},
		ReferencedContext: []string{},
		Status:            artifact.StatusDraft,
		Version:           1,
	}
}

// Options override the defaults of a Transform call. Replay sets all of them.
type Options struct {
	// Version of the output artifact. Zero means 1.
	Version int
	// DerivedFrom replaces the default parent list when non-nil.
	DerivedFrom []string
	// ID replaces the generated artifact id when non-empty.
	ID string
	// ReplayOf is the id of the artifact being replayed, recorded in telemetry.
	ReplayOf string
}

// Stage is one deterministic transformation step.
type Stage interface {
	Name() Name
	// InputType is the artifact type Transform reads.
	InputType() artifact.Type
	// OutputType is the artifact type Transform produces.
	OutputType() artifact.Type
	// Transform derives, persists and returns a new artifact from in. The input
	// is never modified.
	Transform(ctx context.Context, in *artifact.Artifact, runID string, opts Options) (*artifact.Artifact, error)
}

// ContextRetriever resolves the context documents a summary refers to.
// *retrieval.Retriever implements it.
type ContextRetriever interface {
	Retrieve(ctx context.Context, summary string) ([]string, error)
}

// Env carries the collaborators every stage needs. Nothing in this package
// holds global state; callers build one Env and pass it in.
type Env struct {
	Store  *artifact.Store
	Sink   telemetry.Sink
	Now    func() time.Time
	Logger *slog.Logger
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) sink() telemetry.Sink {
	if e.Sink == nil {
		return telemetry.Discard
	}
	return e.Sink
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Registry holds one instance of every stage.
type Registry struct {
	stages map[Name]Stage
}

// NewRegistry builds the five stages over env. retriever may be nil, in which
// case contextualize references no context.
func NewRegistry(env *Env, retriever ContextRetriever) *Registry {
	r := &Registry{stages: make(map[Name]Stage, len(Order))}
	for _, s := range []Stage{
		NewNormalize(env),
		NewExtract(env),
		NewContextualize(env, retriever),
		NewInsight(env),
		NewValidate(env),
	} {
		r.stages[s.Name()] = s
	}
	return r
}

// Get returns the stage called name.
func (r *Registry) Get(name Name) (Stage, error) {
	s, ok := r.stages[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownStage, name)
	}
	return s, nil
}

// Ordered returns the stages in pipeline order.
func (r *Registry) Ordered() []Stage {
	out := make([]Stage, 0, len(Order))
	for _, n := range Order {
		out = append(out, r.stages[n])
	}
	return out
}
