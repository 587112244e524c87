package artifact

import (
	"encoding/json"
	"fmt"
)

// Payload is the content of an artifact. Each Type has one declared payload
// shape; contextualized extractions reuse the Extraction shape.
type Payload interface {
	accepts(t Type) bool
}

// Transcript is the normalized text of a conversation.
type Transcript struct {
	Text string `json:"text"`
}

func (Transcript) accepts(t Type) bool { return t == TypeTranscript }

// Extraction holds the structured data pulled out of a transcript.
type Extraction struct {
	Summary   string   `json:"summary"`
	Tasks     []string `json:"tasks"`
	Decisions []string `json:"decisions"`
}

func (Extraction) accepts(t Type) bool { return t == TypeExtraction || t == TypeContextualized }

// Insight holds recommendations derived from a contextualized extraction.
type Insight struct {
	Recommendations []string `json:"recommendations"`
	RiskFlags       []string `json:"risk_flags"`
	SourceSummary   string   `json:"source_summary"`
}

func (Insight) accepts(t Type) bool { return t == TypeInsight }

// HasFlag reports whether flag is among the insight's risk flags.
func (i Insight) HasFlag(flag string) bool {
	for _, f := range i.RiskFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Validation is the reviewed form of an insight.
type Validation struct {
	Recommendations   []string `json:"recommendations"`
	RiskFlags         []string `json:"risk_flags"`
	ValidationScore   float64  `json:"validation_score"`
	HallucinationRisk string   `json:"hallucination_risk"`
}

func (Validation) accepts(t Type) bool { return t == TypeValidated }

func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	switch t {
	case TypeTranscript:
		var p Transcript
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypeExtraction, TypeContextualized:
		var p Extraction
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypeInsight:
		var p Insight
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypeValidated:
		var p Validation
		err := json.Unmarshal(raw, &p)
		return p, err
	default:
		return nil, fmt.Errorf("unknown artifact type %q", t)
	}
}

// Transcript returns the transcript payload, or ErrTypeMismatch when a holds
// something else.
func (a *Artifact) Transcript() (Transcript, error) {
	p, ok := a.Content.(Transcript)
	if !ok || a.Type != TypeTranscript {
		return Transcript{}, mismatch(a, TypeTranscript)
	}
	return p, nil
}

// Extraction returns the payload of an extraction or contextualized extraction.
func (a *Artifact) Extraction() (Extraction, error) {
	p, ok := a.Content.(Extraction)
	if !ok || (a.Type != TypeExtraction && a.Type != TypeContextualized) {
		return Extraction{}, mismatch(a, TypeExtraction)
	}
	return p, nil
}

func (a *Artifact) Insight() (Insight, error) {
	p, ok := a.Content.(Insight)
	if !ok || a.Type != TypeInsight {
		return Insight{}, mismatch(a, TypeInsight)
	}
	return p, nil
}

func (a *Artifact) Validation() (Validation, error) {
	p, ok := a.Content.(Validation)
	if !ok || a.Type != TypeValidated {
		return Validation{}, mismatch(a, TypeValidated)
	}
	return p, nil
}

func mismatch(a *Artifact, want Type) error {
	return &Error{Kind: ErrTypeMismatch, ID: a.ID, Msg: fmt.Sprintf("have %s, want %s", a.Type, want)}
}
