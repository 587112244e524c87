package artifact

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyExists   = errors.New("artifact already exists")
	ErrNotFound        = errors.New("artifact not found")
	ErrMissingParent   = errors.New("artifact has no recorded parent")
	ErrInvalidID       = errors.New("invalid artifact id")
	ErrTypeMismatch    = errors.New("artifact type mismatch")
	ErrInvalidArtifact = errors.New("invalid artifact")
)

// Error ties one of the sentinel errors above to the artifact id it concerns.
type Error struct {
	Kind error
	ID   string
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", e.Kind.Error(), e.ID)
	if e.Msg != "" {
		msg += " (" + e.Msg + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }

func invalidf(id, format string, args ...any) error {
	return &Error{Kind: ErrInvalidArtifact, ID: id, Msg: fmt.Sprintf(format, args...)}
}

func notFound(id string) error {
	return &Error{Kind: ErrNotFound, ID: id}
}
