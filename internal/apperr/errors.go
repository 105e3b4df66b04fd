// Package apperr defines the error taxonomy shared across the ingestion
// pipeline. Typed errors carry enough context (layer, operation, entity)
// to diagnose a failed cycle; all of them match their sentinel via errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	ErrStorage           = errors.New("storage failure")
	ErrInvalidEntity     = errors.New("invalid entity")
)

// MalformedSnapshotError reports which decode layer of the snapshot failed:
// "file" (unreadable), "envelope" (outer JSON), "payload" (inner JSON) or
// "shape" (unexpected container shape). Recoverable: the cycle is skipped
// and prior state kept.
type MalformedSnapshotError struct {
	Layer string
	Err   error
}

func (e *MalformedSnapshotError) Error() string {
	return fmt.Sprintf("malformed snapshot (%s layer): %v", e.Layer, e.Err)
}

func (e *MalformedSnapshotError) Unwrap() error { return e.Err }

func (e *MalformedSnapshotError) Is(target error) bool { return target == ErrMalformedSnapshot }

// StorageError wraps a transaction or connection failure. Aborts the
// current batch only; previously committed batches stay committed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// InvalidEntityError marks an entity that cannot be fingerprinted or
// upserted, typically because an identity field is missing.
type InvalidEntityError struct {
	Class  string
	ID     string
	Reason string
}

func (e *InvalidEntityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid %s: %s", e.Class, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Class, e.ID, e.Reason)
}

func (e *InvalidEntityError) Is(target error) bool { return target == ErrInvalidEntity }
