package artifact

import (
	"errors"
	"fmt"

	"github.com/kalambet/tengine/internal/storage"
)

// Backend is the minimal key-value contract the Store needs. Implementations
// return storage.ErrExists from PutIfAbsent when the key is taken and
// storage.ErrNotFound from Get when it is absent. PutIfAbsent must publish the
// value atomically: a reader never observes a partial record.
type Backend interface {
	PutIfAbsent(key string, value []byte) error
	Get(key string) ([]byte, error)
	ListByPrefix(prefix string) ([]string, error)
}

// Compile-time checks that the storage backends satisfy Backend.
var (
	_ Backend = (*storage.Store)(nil)
	_ Backend = (*storage.FileStore)(nil)
	_ Backend = (*storage.MemStore)(nil)
)

// Store is the append-only artifact store. Records are keyed by artifact id
// and are never overwritten or deleted.
type Store struct {
	backend Backend
}

// NewStore wraps a Backend.
func NewStore(b Backend) *Store {
	return &Store{backend: b}
}

// Save persists a. It fails with ErrAlreadyExists if the id is taken, with
// ErrNotFound if a listed parent has not been saved, and with
// ErrInvalidArtifact if a violates a field invariant.
func (s *Store) Save(a *Artifact) error {
	if a == nil {
		return errors.New("saving artifact: nil artifact")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	for _, parent := range a.DerivedFrom {
		ok, err := s.Exists(parent)
		if err != nil {
			return fmt.Errorf("checking parent %s: %w", parent, err)
		}
		if !ok {
			return &Error{Kind: ErrNotFound, ID: parent, Msg: "parent of " + a.ID}
		}
	}

	data, err := Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding artifact %s: %w", a.ID, err)
	}
	if err := s.backend.PutIfAbsent(a.ID, data); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return &Error{Kind: ErrAlreadyExists, ID: a.ID, Msg: "no overwrites allowed"}
		}
		return fmt.Errorf("writing artifact %s: %w", a.ID, err)
	}
	return nil
}

// Load returns the artifact stored under id.
func (s *Store) Load(id string) (*Artifact, error) {
	data, err := s.backend.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", id, err)
	}
	a, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decoding artifact %s: %w", id, err)
	}
	if a.ID != id {
		return nil, fmt.Errorf("record %s holds artifact %s", id, a.ID)
	}
	return a, nil
}

// Exists reports whether an artifact with id has been saved.
func (s *Store) Exists(id string) (bool, error) {
	_, err := s.backend.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListVersions returns every stored id that starts with prefix, ordered by
// family and numeric version.
func (s *Store) ListVersions(prefix string) ([]string, error) {
	ids, err := s.backend.ListByPrefix(prefix)
	if err != nil {
		return nil, fmt.Errorf("listing %s*: %w", prefix, err)
	}
	SortIDs(ids)
	return ids, nil
}
