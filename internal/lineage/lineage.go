// Package lineage reconstructs the ancestry and version history of stored
// artifacts.
package lineage

import (
	"errors"
	"fmt"

	"github.com/kalambet/tengine/internal/artifact"
)

// DefaultMaxDepth bounds ancestry walks over malformed data.
const DefaultMaxDepth = 1024

// ErrTooDeep is returned when an ancestry walk exceeds the depth bound.
var ErrTooDeep = errors.New("lineage exceeds maximum depth")

// Ancestor is one entry of an ancestry walk. Depth is 1 for a direct parent.
type Ancestor struct {
	Artifact *artifact.Artifact
	Depth    int
}

// View is everything known about an artifact's history.
type View struct {
	Artifact *artifact.Artifact
	Chain    []Ancestor
	Versions []*artifact.Artifact
}

// Resolver walks derivedFrom pointers through an artifact store.
type Resolver struct {
	store    *artifact.Store
	maxDepth int
}

func NewResolver(store *artifact.Store) *Resolver {
	return &Resolver{store: store, maxDepth: DefaultMaxDepth}
}

// WithMaxDepth returns a copy of r with a different depth bound.
func (r *Resolver) WithMaxDepth(n int) *Resolver {
	cp := *r
	cp.maxDepth = n
	return &cp
}

// Ancestry returns the ancestors of id parent-first: each parent comes
// immediately before its own ancestors, and parents of one artifact follow
// their derivedFrom order. Every ancestor appears once.
func (r *Resolver) Ancestry(id string) ([]Ancestor, error) {
	root, err := r.store.Load(id)
	if err != nil {
		return nil, err
	}

	type frame struct {
		id    string
		child string
		depth int
	}
	var stack []frame
	push := func(a *artifact.Artifact, depth int) {
		for i := len(a.DerivedFrom) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: a.DerivedFrom[i], child: a.ID, depth: depth})
		}
	}

	chain := []Ancestor{}
	visited := map[string]bool{root.ID: true}
	push(root, 1)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[f.id] {
			continue
		}
		if f.depth > r.maxDepth {
			return nil, fmt.Errorf("%w (%d) below %s", ErrTooDeep, r.maxDepth, id)
		}
		visited[f.id] = true

		a, err := r.store.Load(f.id)
		if err != nil {
			return nil, fmt.Errorf("loading parent of %s: %w", f.child, err)
		}
		chain = append(chain, Ancestor{Artifact: a, Depth: f.depth})
		push(a, f.depth+1)
	}
	return chain, nil
}

// ResolveChain returns the ancestor artifacts of id, parent-first.
func (r *Resolver) ResolveChain(id string) ([]*artifact.Artifact, error) {
	chain, err := r.Ancestry(id)
	if err != nil {
		return nil, err
	}
	out := make([]*artifact.Artifact, len(chain))
	for i, a := range chain {
		out[i] = a.Artifact
	}
	return out, nil
}

// ListFamily returns every stored version of family in numeric version order.
func (r *Resolver) ListFamily(family string) ([]*artifact.Artifact, error) {
	ids, err := r.store.ListVersions(family + "_v")
	if err != nil {
		return nil, err
	}
	out := []*artifact.Artifact{}
	for _, id := range ids {
		// The prefix also matches families that extend this one, e.g. "x_v" and
		// "x_vendor_v1"; keep exact matches only.
		f, _, err := artifact.ParseID(id)
		if err != nil || f != family {
			continue
		}
		a, err := r.store.Load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Lineage loads id together with its ancestry and version family.
func (r *Resolver) Lineage(id string) (*View, error) {
	a, err := r.store.Load(id)
	if err != nil {
		return nil, err
	}
	chain, err := r.Ancestry(id)
	if err != nil {
		return nil, err
	}
	versions, err := r.ListFamily(a.Family())
	if err != nil {
		return nil, err
	}
	return &View{Artifact: a, Chain: chain, Versions: versions}, nil
}
