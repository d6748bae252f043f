// Package errs defines the error taxonomy shared by the ensemble services.
// Callers branch on kind, never on message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for caller dispatch and HTTP status mapping.
type Kind string

const (
	// KindNotFound means a referenced entity is absent.
	KindNotFound Kind = "not_found"
	// KindInvalidState means the entity exists but is not in the status the
	// operation requires (e.g. re-reviewing a resolved item).
	KindInvalidState Kind = "invalid_state"
	// KindValidation means the input itself is malformed.
	KindValidation Kind = "validation"
	// KindUpstream means a collaborator (judgment generation, persistence)
	// failed or returned unusable data.
	KindUpstream Kind = "upstream"
)

// Error is a typed error with a kind and the entity it concerns.
type Error struct {
	Kind   Kind
	Entity string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Entity, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Entity, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports an absent entity.
func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Entity: entity, Msg: fmt.Sprintf("id %s not found", id)}
}

// InvalidState reports an operation attempted against the wrong status.
func InvalidState(entity, msg string) error {
	return &Error{Kind: KindInvalidState, Entity: entity, Msg: msg}
}

// Validation reports malformed input.
func Validation(entity, msg string) error {
	return &Error{Kind: KindValidation, Entity: entity, Msg: msg}
}

// Upstream wraps a collaborator failure.
func Upstream(entity string, err error) error {
	return &Error{Kind: KindUpstream, Entity: entity, Msg: "upstream call failed", Err: err}
}

func kindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsNotFound reports whether err carries KindNotFound.
func IsNotFound(err error) bool { k, ok := kindOf(err); return ok && k == KindNotFound }

// IsInvalidState reports whether err carries KindInvalidState.
func IsInvalidState(err error) bool { k, ok := kindOf(err); return ok && k == KindInvalidState }

// IsValidation reports whether err carries KindValidation.
func IsValidation(err error) bool { k, ok := kindOf(err); return ok && k == KindValidation }

// IsUpstream reports whether err carries KindUpstream.
func IsUpstream(err error) bool { k, ok := kindOf(err); return ok && k == KindUpstream }
