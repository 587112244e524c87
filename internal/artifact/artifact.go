// Package artifact defines the immutable, versioned records produced by pipeline
// stages and the append-only store that persists them.
package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Type identifies the shape of an artifact's content.
type Type string

const (
	TypeTranscript     Type = "transcript"
	TypeExtraction     Type = "extraction"
	TypeContextualized Type = "contextualized_extraction"
	TypeInsight        Type = "insight"
	TypeValidated      Type = "validated_insight"
)

// Valid reports whether t is one of the known artifact types.
func (t Type) Valid() bool {
	switch t {
	case TypeTranscript, TypeExtraction, TypeContextualized, TypeInsight, TypeValidated:
		return true
	}
	return false
}

// Status is the review state of an artifact.
type Status string

const (
	StatusDraft          Status = "draft"
	StatusValidated      Status = "validated"
	StatusReviewRequired Status = "review_required"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusValidated, StatusReviewRequired:
		return true
	}
	return false
}

// Metadata records how a stage produced an artifact. It is carried through
// storage untouched.
type Metadata struct {
	Model        string   `json:"model"`
	Tokens       int      `json:"tokens"`
	CostUSD      float64  `json:"cost_usd"`
	LatencyMs    int64    `json:"latency_ms"`
	RetrievalIDs []string `json:"retrieval_ids"`
}

// Artifact is the output of exactly one stage invocation. Once saved it is
// never modified; a newer version is a new Artifact with its own ID.
type Artifact struct {
	ID                string    `json:"artifact_id"`
	Type              Type      `json:"type"`
	Content           Payload   `json:"content"`
	DerivedFrom       []string  `json:"derived_from"`
	ReferencedContext []string  `json:"referenced_context"`
	Confidence        float64   `json:"confidence"`
	StageMetadata     Metadata  `json:"stage_metadata"`
	Status            Status    `json:"status"`
	Version           int       `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
}

// Parent returns the first recorded parent id, or "" for a root artifact.
func (a *Artifact) Parent() string {
	if len(a.DerivedFrom) == 0 {
		return ""
	}
	return a.DerivedFrom[0]
}

// Family returns the id with its trailing version suffix removed.
func (a *Artifact) Family() string {
	family, _, err := ParseID(a.ID)
	if err != nil {
		return a.ID
	}
	return family
}

// Validate checks the field invariants every persisted artifact must hold.
func (a *Artifact) Validate() error {
	_, version, err := ParseID(a.ID)
	if err != nil {
		return err
	}
	switch {
	case !a.Type.Valid():
		return invalidf(a.ID, "unknown type %q", a.Type)
	case !a.Status.Valid():
		return invalidf(a.ID, "unknown status %q", a.Status)
	case a.Version < 1:
		return invalidf(a.ID, "version %d is not positive", a.Version)
	case version != a.Version:
		return invalidf(a.ID, "id version %d does not match version %d", version, a.Version)
	case math.IsNaN(a.Confidence) || a.Confidence < 0 || a.Confidence > 1:
		return invalidf(a.ID, "confidence %v outside [0,1]", a.Confidence)
	case a.Content == nil:
		return invalidf(a.ID, "missing content")
	}
	if !a.Content.accepts(a.Type) {
		return invalidf(a.ID, "content %T does not match type %q", a.Content, a.Type)
	}
	for _, p := range a.DerivedFrom {
		if p == a.ID {
			return invalidf(a.ID, "artifact lists itself as parent")
		}
	}
	return nil
}

// UnmarshalJSON decodes the content field into the payload declared for the
// artifact's type.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	type plain Artifact
	var raw struct {
		plain
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Artifact(raw.plain)
	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		a.Content = nil
		return nil
	}
	p, err := decodePayload(a.Type, raw.Content)
	if err != nil {
		return fmt.Errorf("decoding content of %s: %w", a.ID, err)
	}
	a.Content = p
	return nil
}

// Marshal encodes a in the indented, self-describing record format used on disk.
func Marshal(a *Artifact) ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// Unmarshal decodes a record produced by Marshal.
func Unmarshal(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
