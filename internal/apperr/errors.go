// Package apperr defines the error kinds shared across the pipeline.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
	ErrDatabase      = errors.New("database error")
)

// Kind classifies an Error.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindDatabase
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFoundError"
	case KindDatabase:
		return "DatabaseError"
	case KindConflict:
		return "ConflictError"
	default:
		return "Error"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindDatabase:
		return ErrDatabase
	case KindConflict:
		return ErrConflict
	default:
		return nil
	}
}

// Error is a tagged failure returned across package boundaries.
// Op names the failing operation ("patterns: feedback"), Msg is a short
// human-readable description and Err the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match an *Error against the package sentinels.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Validation reports caller misuse (bad input, malformed pattern).
func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing record.
func NotFound(op, what string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: what + " not found"}
}

// Conflict reports a write that lost against the stored state.
func Conflict(op, msg string) error {
	return &Error{Kind: KindConflict, Op: op, Msg: msg}
}

// AlreadyExists reports a create of an existing record. It matches both
// ErrConflict and ErrAlreadyExists.
func AlreadyExists(op, what string) error {
	return &Error{Kind: KindConflict, Op: op, Msg: what, Err: ErrAlreadyExists}
}

// Database wraps a store failure. A nil err returns nil; errors that are
// already tagged pass through unchanged.
func Database(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindDatabase, Op: op, Msg: "store operation failed", Err: err}
}

// KindOf returns the Kind of err, or 0 when err is not tagged.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
