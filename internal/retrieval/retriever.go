// Package retrieval finds the context documents a summary refers to. Matching
// is deterministic: documents are scanned in their source's enumeration order
// and each one is included at most once.
package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// Document is one independently maintained context document.
type Document struct {
	ID      string `yaml:"context_id" json:"context_id"`
	Title   string `yaml:"title,omitempty" json:"title,omitempty"`
	Content string `yaml:"content" json:"content"`
}

// Source enumerates context documents in a fixed, reproducible order.
type Source interface {
	Documents(ctx context.Context) ([]Document, error)
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "for": {}, "to": {}, "of": {},
	"in": {}, "on": {}, "at": {}, "with": {}, "we": {}, "i": {}, "it": {}, "that": {},
	"this": {}, "is": {}, "are": {}, "was": {}, "were": {},
}

const trimChars = `.,!?;:()[]{}"'-`

// Terms returns the normalized query terms of text: lowercased words with
// surrounding punctuation removed, at least three characters long and not
// stopwords. Order follows first appearance; duplicates are kept.
func Terms(text string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, trimChars)
		if len(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// Match returns the ids of docs whose lowercased content contains any term of
// summary, in the order docs are given. The result is never nil.
func Match(summary string, docs []Document) []string {
	terms := Terms(summary)
	ids := []string{}
	if len(terms) == 0 {
		return ids
	}
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		content := strings.ToLower(d.Content)
		for _, term := range terms {
			if strings.Contains(content, term) {
				ids = append(ids, d.ID)
				seen[d.ID] = struct{}{}
				break
			}
		}
	}
	return ids
}

// Retriever matches summaries against a Source.
type Retriever struct {
	source Source
}

// NewRetriever creates a Retriever over source. A nil source yields no context.
func NewRetriever(source Source) *Retriever {
	return &Retriever{source: source}
}

// Retrieve returns the ids of the context documents summary refers to.
func (r *Retriever) Retrieve(ctx context.Context, summary string) ([]string, error) {
	if r == nil || r.source == nil {
		return []string{}, nil
	}
	docs, err := r.source.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing context documents: %w", err)
	}
	return Match(summary, docs), nil
}
