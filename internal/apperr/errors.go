// Package apperr defines the error taxonomy shared by the reMind service.
//
// Validation and permission failures are expected outcomes surfaced inline
// to the user. Transient failures are retried by the caller before they
// reach this layer; once retries are exhausted they are reported as a
// single terminal error.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError represents user input that violates a local rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error (including wrapped errors)
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// PermissionError represents a denied device capability (microphone, camera).
type PermissionError struct {
	Capability string
	Message    string
}

func (e PermissionError) Error() string {
	return fmt.Sprintf("permission denied for %s: %s", e.Capability, e.Message)
}

// NewPermissionError constructs PermissionError
func NewPermissionError(capability, message string) PermissionError {
	return PermissionError{Capability: capability, Message: message}
}

// IsPermissionError checks if error is PermissionError
func IsPermissionError(err error) bool {
	var pe PermissionError
	return errors.As(err, &pe)
}

// ConflictError represents a duplicate resource or an operation already in flight.
type ConflictError struct {
	Field   string
	Message string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Field, e.Message)
}

// NewConflictError constructs ConflictError
func NewConflictError(field, message string) ConflictError {
	return ConflictError{Field: field, Message: message}
}

// IsConflictError checks if error is ConflictError
func IsConflictError(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// NotFoundError represents a missing document.
type NotFoundError struct {
	Field   string
	Message string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("not found %s: %s", e.Field, e.Message)
}

// NewNotFoundError constructs NotFoundError
func NewNotFoundError(field, message string) NotFoundError {
	return NotFoundError{Field: field, Message: message}
}

// IsNotFoundError checks if error is NotFoundError
func IsNotFoundError(err error) bool {
	var ne NotFoundError
	return errors.As(err, &ne)
}

// TransientError marks a failure worth retrying: timeouts, connection
// failures and non-2xx responses from a remote store.
type TransientError struct {
	Op         string
	StatusCode int // 0 for transport-level failures
	Body       string
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient checks if error is a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
