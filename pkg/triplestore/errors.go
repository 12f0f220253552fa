package triplestore

import (
	"errors"
	"fmt"
)

// FailureKind classifies why Create failed.
type FailureKind string

const (
	// FailureSessionInit means the engine runtime could not be started.
	FailureSessionInit FailureKind = "session_init"

	// FailureOptionsParse means the connection string was malformed.
	FailureOptionsParse FailureKind = "options_parse"

	// FailureStorageOpen means both the open and the create attempt failed.
	FailureStorageOpen FailureKind = "storage_open"
)

// Error is returned by Create. Every resource acquired before the failure has
// been released by the time the caller sees it.
type Error struct {
	// Kind says which construction step failed.
	Kind FailureKind `json:"kind"`

	// Store is the logical store name.
	Store string `json:"store,omitempty"`

	// Backend is the engine driver the store was opened with.
	Backend string `json:"backend,omitempty"`

	// Err is the engine error behind the failure.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.message()
	if e.Store != "" {
		msg = fmt.Sprintf("%s (store=%s, backend=%s)", msg, e.Store, e.Backend)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, msg, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap returns the underlying engine error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so the Err* sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func (k FailureKind) message() string {
	switch k {
	case FailureSessionInit:
		return "engine session could not be started"
	case FailureOptionsParse:
		return "connection string could not be parsed"
	case FailureStorageOpen:
		return "store could not be opened or created"
	default:
		return "store handle construction failed"
	}
}

// Sentinels for errors.Is.
var (
	ErrSessionInit  = &Error{Kind: FailureSessionInit}
	ErrOptionsParse = &Error{Kind: FailureOptionsParse}
	ErrStorageOpen  = &Error{Kind: FailureStorageOpen}
)

var (
	// ErrInvalidName is returned by Create when no store name is given.
	ErrInvalidName = errors.New("store name is required")

	// ErrStoreNotFound is returned by engines when a store opened without
	// new=yes does not exist.
	ErrStoreNotFound = errors.New("store does not exist")

	// ErrReadOnly is returned when a storage opened with write=no is modified.
	ErrReadOnly = errors.New("storage is read-only")

	// ErrContextsDisabled is returned when a storage opened with contexts=no
	// is given a statement in a named context.
	ErrContextsDisabled = errors.New("storage does not support contexts")

	// ErrClosed is returned by operations on a closed storage or session.
	ErrClosed = errors.New("closed")
)

// KindOf returns the FailureKind carried by err, or "" when err is not a
// construction failure.
func KindOf(err error) FailureKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsSessionInit reports whether err is a session_init failure.
func IsSessionInit(err error) bool {
	return KindOf(err) == FailureSessionInit
}

// IsOptionsParse reports whether err is an options_parse failure.
func IsOptionsParse(err error) bool {
	return KindOf(err) == FailureOptionsParse
}

// IsStorageOpen reports whether err is a storage_open failure.
func IsStorageOpen(err error) bool {
	return KindOf(err) == FailureStorageOpen
}
