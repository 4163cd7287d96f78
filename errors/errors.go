// Package errors provides error handling for cadence.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// and defines the scheduler's error taxonomy. Every classified error is
// created by marking it with one of the sentinels below, so callers always
// test with errors.Is:
//
//	if errors.Is(err, errors.ErrConflict) {
//	    // pick another job id
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails

	GetReportableStackTrace = crdb.GetReportableStackTrace
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Scheduler error taxonomy.
var (
	// ErrConfiguration indicates a malformed trigger spec or job definition.
	// Surfaced synchronously at registration time.
	ErrConfiguration = New("configuration error")

	// ErrConflict indicates a job id is already taken.
	ErrConflict = New("resource conflict")

	// ErrNotFound indicates the requested job does not exist.
	ErrNotFound = New("not found")

	// ErrCorruptState indicates a stored job state could not be decoded.
	// Handled inside the job store; never returned to callers of list operations.
	ErrCorruptState = New("corrupt job state")

	// ErrExecution indicates a job callable failed or panicked.
	ErrExecution = New("job execution failed")

	// ErrStoreIO indicates a (possibly transient) persistence failure.
	ErrStoreIO = New("store i/o error")
)

// NewConfigurationError creates a configuration error with a formatted message
func NewConfigurationError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConfiguration)
}

// WrapConfiguration marks err as a configuration error and adds context
func WrapConfiguration(err error, context string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, context), ErrConfiguration)
}

// NewConflictError creates a conflict error with a formatted message
func NewConflictError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConflict)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// WrapCorruptState marks a decode failure as corrupt state
func WrapCorruptState(err error, jobID string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, "job %s has unreadable state", jobID), ErrCorruptState)
}

// WrapStoreIO marks a persistence failure as a store i/o error.
// Errors that are already classified keep their classification.
func WrapStoreIO(err error, context string) error {
	if err == nil {
		return nil
	}
	if IsAny(err, ErrConflict, ErrNotFound, ErrCorruptState) {
		return Wrap(err, context)
	}
	return Mark(Wrap(err, context), ErrStoreIO)
}

// NewExecutionError wraps a callable failure. Panics are converted to errors
// by the worker pool before reaching this function.
func NewExecutionError(cause interface{}) error {
	switch c := cause.(type) {
	case nil:
		return nil
	case error:
		return Mark(c, ErrExecution)
	default:
		return Mark(New(fmt.Sprint(c)), ErrExecution)
	}
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflictError checks if an error is or wraps ErrConflict
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsConfigurationError checks if an error is or wraps ErrConfiguration
func IsConfigurationError(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// IsStoreIOError checks if an error is or wraps ErrStoreIO
func IsStoreIOError(err error) bool {
	return err != nil && Is(err, ErrStoreIO)
}
