// Package replay recomputes one stage for an existing artifact. The result is
// a new version in the same family; nothing already stored is modified.
package replay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/tengine/internal/artifact"
	"github.com/kalambet/tengine/internal/stage"
)

// maxHops bounds the walk past earlier versions when resolving stage input.
const maxHops = 10000

// Engine replays stages against persisted artifacts.
type Engine struct {
	store    *artifact.Store
	registry *stage.Registry
	logger   *slog.Logger
}

func New(store *artifact.Store, registry *stage.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, registry: registry, logger: logger}
}

// Replay reruns stage name for the artifact id and returns the new version.
// The new artifact's id is the family of id with version+1, and its lineage
// points at id. If that id is already taken the store's ErrAlreadyExists is
// returned unchanged.
func (e *Engine) Replay(ctx context.Context, id string, name stage.Name) (*artifact.Artifact, error) {
	s, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	loaded, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	if name != stage.Normalize && loaded.Parent() == "" {
		return nil, &artifact.Error{
			Kind: artifact.ErrMissingParent,
			ID:   loaded.ID,
			Msg:  fmt.Sprintf("cannot replay %s without an input artifact", name),
		}
	}
	if s.OutputType() != loaded.Type {
		return nil, &artifact.Error{
			Kind: artifact.ErrTypeMismatch,
			ID:   id,
			Msg:  fmt.Sprintf("stage %s produces %s, artifact is %s", name, s.OutputType(), loaded.Type),
		}
	}

	input, err := e.input(loaded, name)
	if err != nil {
		return nil, err
	}

	family, _, err := artifact.ParseID(loaded.ID)
	if err != nil {
		return nil, err
	}
	runID, err := artifact.RunIDOf(loaded.ID)
	if err != nil {
		return nil, err
	}
	version := loaded.Version + 1
	newID := artifact.VersionID(family, version)

	out, err := s.Transform(ctx, input, runID, stage.Options{
		Version:     version,
		DerivedFrom: []string{loaded.ID},
		ID:          newID,
		ReplayOf:    loaded.ID,
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("stage replayed",
		"stage", name,
		"replayed", loaded.ID,
		"input", input.ID,
		"output", out.ID,
		"confidence", out.Confidence,
	)
	return out, nil
}

// input resolves what the stage reads. Normalize reuses the loaded transcript.
// Other stages read the first parent; a replayed artifact's first parent is
// its predecessor version, so parents of the loaded artifact's own type are
// followed back to the stage's natural input.
func (e *Engine) input(loaded *artifact.Artifact, name stage.Name) (*artifact.Artifact, error) {
	if name == stage.Normalize {
		return loaded, nil
	}

	cur := loaded
	seen := map[string]bool{loaded.ID: true}
	for hops := 0; hops < maxHops; hops++ {
		parentID := cur.Parent()
		if parentID == "" {
			return nil, &artifact.Error{
				Kind: artifact.ErrMissingParent,
				ID:   cur.ID,
				Msg:  fmt.Sprintf("cannot replay %s without an input artifact", name),
			}
		}
		if seen[parentID] {
			return nil, fmt.Errorf("lineage of %s loops at %s", loaded.ID, parentID)
		}
		seen[parentID] = true

		parent, err := e.store.Load(parentID)
		if err != nil {
			return nil, fmt.Errorf("loading input of %s: %w", loaded.ID, err)
		}
		if parent.Type != loaded.Type {
			return parent, nil
		}
		cur = parent
	}
	return nil, fmt.Errorf("lineage of %s exceeds %d versions", loaded.ID, maxHops)
}
