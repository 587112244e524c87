package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const recordExt = ".json"

// FileStore keeps one record per file under a single root directory, with
// the key as the file name. Records are published by hard-linking a fully
// written temp file into place, so a crash mid-write never leaves a partial
// record and an existing key is never replaced.
type FileStore struct {
	root string
}

// OpenFileStore creates root if needed.
func OpenFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifacts directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the directory holding the records.
func (s *FileStore) Root() string {
	return s.root
}

// Path returns the file that holds key.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.root, key+recordExt)
}

func validKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return fmt.Errorf("invalid record key %q", key)
	}
	return nil
}

func (s *FileStore) PutIfAbsent(key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	path := s.Path(key)
	if _, err := os.Lstat(path); err == nil {
		return ErrExists
	}

	tmp, err := os.CreateTemp(s.root, "."+key+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Link fails if path exists, unlike Rename, which would replace it.
	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return err
	}
	return syncDir(s.root)
}

func (s *FileStore) Get(key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// ListByPrefix returns the keys starting with prefix in string order. Temp
// files from interrupted writes are ignored.
func (s *FileStore) ListByPrefix(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
			continue
		}
		key := strings.TrimSuffix(name, recordExt)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}
