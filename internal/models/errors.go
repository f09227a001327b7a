package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a debate failure by how callers should react to
// it rather than by where it happened.
type ErrorKind string

const (
	// ErrKindTransient marks failures worth skipping past: provider
	// timeouts, unreachable stores, malformed upstream payloads.
	ErrKindTransient ErrorKind = "transient"
	// ErrKindConflict marks rejected operations that collide with
	// existing state, such as starting a session twice.
	ErrKindConflict ErrorKind = "conflict"
	// ErrKindInvariant marks internal consistency violations, such as a
	// speaker scheduled twice in a row.
	ErrKindInvariant ErrorKind = "invariant"
)

// Sentinel errors shared across the debate packages.
var (
	ErrSessionExists   = errors.New("debate session already running")
	ErrSessionNotFound = errors.New("debate session not found")
	ErrSessionStopped  = errors.New("debate session stopped")
	ErrCacheDisabled   = errors.New("semantic cache disabled")
)

// DebateError wraps a failure with its kind and the operation that
// produced it.
type DebateError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *DebateError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DebateError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a skippable failure.
func Transient(op string, err error) *DebateError {
	return &DebateError{Kind: ErrKindTransient, Op: op, Err: err}
}

// Conflict wraps err as a state collision.
func Conflict(op string, err error) *DebateError {
	return &DebateError{Kind: ErrKindConflict, Op: op, Err: err}
}

// Invariant wraps err as an internal consistency violation.
func Invariant(op string, err error) *DebateError {
	return &DebateError{Kind: ErrKindInvariant, Op: op, Err: err}
}

// KindOf reports the classification of err, defaulting to transient for
// errors that never passed through a DebateError.
func KindOf(err error) ErrorKind {
	var de *DebateError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrKindTransient
}
