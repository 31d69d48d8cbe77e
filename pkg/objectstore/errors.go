package objectstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no object exists under the given key.
	ErrNotFound = errors.New("object not found")

	// ErrAlreadyExists is returned by Create when the key is taken.
	ErrAlreadyExists = errors.New("object already exists")

	// ErrConflict is returned by Update when the submitted resourceVersion
	// or UID does not match the stored object.
	ErrConflict = errors.New("object has been modified")

	// ErrInvalidObject is returned for objects without kind or name.
	ErrInvalidObject = errors.New("invalid object")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

// StorageError represents a failure of the storage backend itself.
type StorageError struct {
	Backend   string // Backend name ("memory", "sqlite")
	Operation string // Operation that failed
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("%s storage %s failed: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// result maps an operation error onto a metric label.
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyExists):
		return "conflict"
	case errors.Is(err, ErrInvalidObject):
		return "invalid"
	default:
		return "error"
	}
}
