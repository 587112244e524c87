package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/tengine/internal/storage"
)

// StaticSource serves a fixed list of documents in the given order.
type StaticSource []Document

func (s StaticSource) Documents(context.Context) ([]Document, error) {
	out := make([]Document, len(s))
	copy(out, s)
	return out, nil
}

// DirSource reads one document per .yaml, .yml or .json file in a directory,
// enumerated by file name. JSON parses as YAML, so one decoder serves both.
// Files that fail to parse or lack a context_id are skipped with a warning.
type DirSource struct {
	Dir    string
	Logger *slog.Logger
}

func NewDirSource(dir string, logger *slog.Logger) *DirSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirSource{Dir: dir, Logger: logger}
}

func (s *DirSource) Documents(ctx context.Context) ([]Document, error) {
	entries, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return []Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading context directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(s.Dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var d Document
		if err := yaml.Unmarshal(data, &d); err != nil {
			s.Logger.Warn("skipping unreadable context document", "path", path, "error", err)
			continue
		}
		if d.ID == "" {
			s.Logger.Warn("skipping context document without context_id", "path", path)
			continue
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// ContextDocLister is implemented by *storage.Store.
type ContextDocLister interface {
	ListContextDocs(limit int) ([]storage.ContextDoc, error)
}

// StoreSource serves documents from the context_docs table, ordered by id.
type StoreSource struct {
	store ContextDocLister
}

func NewStoreSource(store ContextDocLister) *StoreSource {
	return &StoreSource{store: store}
}

func (s *StoreSource) Documents(context.Context) ([]Document, error) {
	rows, err := s.store.ListContextDocs(0)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(rows))
	for i, r := range rows {
		docs[i] = Document{ID: r.ID, Title: r.Title, Content: r.Content}
	}
	return docs, nil
}

// WriteDocument stores d as <dir>/<id>.yaml. Existing files are replaced; context
// documents are maintained independently of artifacts.
func WriteDocument(dir string, d Document) (string, error) {
	if d.ID == "" || strings.ContainsAny(d.ID, `/\`) {
		return "", fmt.Errorf("invalid context id %q", d.ID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating context directory: %w", err)
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encoding context document: %w", err)
	}
	path := filepath.Join(dir, d.ID+".yaml")
	tmp, err := os.CreateTemp(dir, "."+d.ID+".tmp.*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}
