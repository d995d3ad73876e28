package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the API layer can map them to a status.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindUpstream
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a tagged error carrying the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation wraps err as an input validation failure.
func Validation(op string, err error) error { return &Error{Kind: KindValidation, Op: op, Err: err} }

// NotFound wraps err as a missing record or artifact.
func NotFound(op string, err error) error { return &Error{Kind: KindNotFound, Op: op, Err: err} }

// Upstream wraps err as a failure of an external collaborator.
func Upstream(op string, err error) error { return &Error{Kind: KindUpstream, Op: op, Err: err} }

// Conflict wraps err as a write that lost against existing state.
func Conflict(op string, err error) error { return &Error{Kind: KindConflict, Op: op, Err: err} }

// Internal wraps err as an unexpected failure.
func Internal(op string, err error) error { return &Error{Kind: KindInternal, Op: op, Err: err} }

// KindOf returns the kind of the first tagged error in err's chain.
// Untagged errors are internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrMissingPrompt = errors.New("missing prompt")
	ErrNoImage       = errors.New("no image produced")
	ErrRecordMissing = errors.New("record not found")
)
