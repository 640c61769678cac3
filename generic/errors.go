/*
errors.go - Centralized error types for the workforce engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these with the username/date/request they concern,
  so an admin can correct state by hand when no compensation exists.

ERROR CATEGORIES:
  1. Validation errors - malformed input, raised before any store mutation
  2. Store errors      - read/write/delete failures from the RecordStore
  3. Not-found errors  - updates addressing a missing record
  4. Concurrency       - version mismatch on CompareAndWrite

USAGE:
  if errors.Is(err, generic.ErrValidation) { ... 400 ... }

  var unavailable *generic.StoreUnavailableError
  if errors.As(err, &unavailable) {
      log.Printf("store down at %s", unavailable.Path)
  }

SEE ALSO:
  - reconcile/engine.go: SpanError wraps these with the failing day
  - api/handlers.go: maps categories to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input. No state has been written.
	ErrValidation = errors.New("validation failed")

	// ErrStoreUnavailable is returned when the underlying store fails a call.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound is returned when an update addresses a record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification is returned when CompareAndWrite sees a newer version.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidSpan is returned when a span's end is before its start.
	ErrInvalidSpan = errors.New("invalid span: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StoreUnavailableError records which store call failed.
type StoreUnavailableError struct {
	Op   string // read, write, delete, list
	Path string
	Err  error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes both the category and the driver error.
func (e *StoreUnavailableError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// StoreFailure classifies a raw store error. Version conflicts keep their own
// identity; everything else is reported as the store being unavailable.
func StoreFailure(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return &StoreUnavailableError{Op: op, Path: path, Err: err}
}

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Kind string // leave request, payroll record
	Key  string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.Key) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports the version seen versus the version expected.
type ConflictError struct {
	Path     string
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent modification on %s: expected version %d, found %d",
		e.Path, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrentModification }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is due to invalid client input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidSpan)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsRetryable returns true if repeating the same call may succeed. Span
// applications are idempotent per day, so retrying after a store failure
// converges to the same end state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrConcurrentModification)
}
