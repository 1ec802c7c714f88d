package domain

import (
	"errors"
	"fmt"
)

// ErrKind classifies import and search errors. Row-level kinds (Validation,
// Reference) exclude a single row without failing the submission; Transport
// errors are retried with bounded backoff; State errors guard terminal job
// records.
type ErrKind string

const (
	KindValidation ErrKind = "validation"
	KindReference  ErrKind = "reference"
	KindConflict   ErrKind = "conflict"
	KindTransport  ErrKind = "transport"
	KindState      ErrKind = "state"
)

// Error is the shared error type across the import pipeline, repositories,
// and services. Field and Row carry row-level detail where applicable.
type Error struct {
	Kind  ErrKind
	Field string
	Row   int
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s error on field %q: %s: %v", e.Kind, e.Field, e.Msg, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s error on field %q: %s", e.Kind, e.Field, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Msg, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports a malformed row field.
func NewValidationError(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg}
}

// NewReferenceError reports a dangling reference, e.g. a category that does
// not exist in the owning store.
func NewReferenceError(field, msg string) *Error {
	return &Error{Kind: KindReference, Field: field, Msg: msg}
}

// NewConflictError reports a write that lost a uniqueness race, e.g. two
// workers creating the same (store, name) concurrently.
func NewConflictError(msg string, err error) *Error {
	return &Error{Kind: KindConflict, Msg: msg, Err: err}
}

// NewTransportError wraps a queue or index transport failure.
func NewTransportError(msg string, err error) *Error {
	return &Error{Kind: KindTransport, Msg: msg, Err: err}
}

// NewStateError reports an operation attempted on a terminal job.
func NewStateError(msg string) *Error {
	return &Error{Kind: KindState, Msg: msg}
}

// KindOf returns the ErrKind of err if it is a domain Error, or "" otherwise.
func KindOf(err error) ErrKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err is a domain Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	return KindOf(err) == kind
}
