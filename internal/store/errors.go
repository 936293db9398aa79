package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a mutation or lookup targets an unknown id.
var ErrNotFound = errors.New("not found")

// ValidationError rejects caller input before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// PersistenceError reports a failed write to local durable storage. It never
// aborts a mutation: the in-memory state stays authoritative.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
