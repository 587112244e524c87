package stage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kalambet/tengine/internal/artifact"
	"github.com/kalambet/tengine/internal/telemetry"
)

// descriptor declares the fixed attributes of a stage variant.
type descriptor struct {
	name   Name
	event  string // stage name written to telemetry
	input  artifact.Type
	output artifact.Type
	prefix string // id prefix of produced artifacts
	model  string
	root   bool // no parent unless overridden
}

// result is what a variant computes from its input.
type result struct {
	content    artifact.Payload
	confidence float64
	status     artifact.Status
	context    []string // referenced context, also recorded as retrieval ids
}

type computeFunc func(ctx context.Context, in *artifact.Artifact) (result, error)

type envelope struct {
	desc    descriptor
	env     *Env
	compute computeFunc
}

func (e *envelope) Name() Name                { return e.desc.name }
func (e *envelope) InputType() artifact.Type  { return e.desc.input }
func (e *envelope) OutputType() artifact.Type { return e.desc.output }

func (e *envelope) Transform(ctx context.Context, in *artifact.Artifact, runID string, opts Options) (*artifact.Artifact, error) {
	if in == nil {
		return nil, errors.New(string(e.desc.name) + ": nil input artifact")
	}
	if in.Type != e.desc.input {
		return nil, &artifact.Error{
			Kind: artifact.ErrTypeMismatch,
			ID:   in.ID,
			Msg:  fmt.Sprintf("%s reads %s, got %s", e.desc.name, e.desc.input, in.Type),
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := e.env.now()
	res, err := e.compute(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.desc.name, err)
	}

	version := opts.Version
	if version == 0 {
		version = 1
	}
	id := opts.ID
	if id == "" {
		id = artifact.NewID(e.desc.prefix, start, runID, version)
	}
	var derivedFrom []string
	switch {
	case opts.DerivedFrom != nil:
		derivedFrom = append([]string{}, opts.DerivedFrom...)
	case e.desc.root:
		derivedFrom = []string{}
	default:
		derivedFrom = []string{in.ID}
	}
	refs := nonNil(res.context)
	latency := e.env.now().Sub(start).Milliseconds()

	out := &artifact.Artifact{
		ID:                id,
		Type:              e.desc.output,
		Content:           res.content,
		DerivedFrom:       derivedFrom,
		ReferencedContext: refs,
		Confidence:        roundConfidence(res.confidence),
		StageMetadata: artifact.Metadata{
			Model:        e.desc.model,
			LatencyMs:    latency,
			RetrievalIDs: append([]string{}, refs...),
		},
		Status:    res.status,
		Version:   version,
		CreatedAt: start.UTC(),
	}
	if err := e.env.Store.Save(out); err != nil {
		return nil, err
	}

	ev := telemetry.Event{
		RunID:            runID,
		Stage:            e.desc.event,
		InputArtifactID:  in.ID,
		OutputArtifactID: out.ID,
		LatencyMs:        latency,
		Timestamp:        start.UTC(),
		Replayable:       true,
	}
	if opts.ReplayOf != "" {
		replayOf := opts.ReplayOf
		ev.ReplayOf = &replayOf
	}
	if err := e.env.sink().Emit(ctx, ev); err != nil {
		return nil, fmt.Errorf("recording telemetry for %s: %w", out.ID, err)
	}

	e.env.logger().Debug("stage executed",
		"stage", e.desc.name,
		"input", in.ID,
		"output", out.ID,
		"confidence", out.Confidence,
		"latency_ms", latency,
	)
	return out, nil
}

// roundConfidence clamps c to [0,1] and rounds it to six decimals, so that
// sums like 0.85+0.06 compare equal to their decimal value.
func roundConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	c = math.Round(c*1e6) / 1e6
	return math.Max(0, math.Min(1, c))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
