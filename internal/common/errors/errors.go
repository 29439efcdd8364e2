// Package errors provides the standardized error taxonomy for the
// certificate request lifecycle.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Error Codes
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// ErrCodeValidation: bad input, nothing persisted.
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"
	// ErrCodeNotFound: referenced entity absent.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodePermission: actor not authorized for the entity.
	ErrCodePermission ErrorCode = "PERMISSION_DENIED"
	// ErrCodeInvalidState: precondition on the current status violated,
	// including lost state-transition races.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
	// ErrCodeSigningService: the external signing call failed or returned
	// a non-success response.
	ErrCodeSigningService ErrorCode = "SIGNING_SERVICE_ERROR"
	// ErrCodeStorage: unexpected storage-layer failure.
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"
)

// ==========================
// 2. Error Type
// ==========================

// Error is a structured application error carrying a taxonomy code.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// ==========================
// 3. Constructors
// ==========================

// NewValidationError reports input that fails field-completeness checks.
func NewValidationError(details string) *Error {
	return &Error{
		Code:      ErrCodeValidation,
		Message:   "request payload validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError reports an absent entity.
func NewNotFoundError(resource, id string) *Error {
	return &Error{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPermissionError reports an actor acting on an entity it does not own
// or a non-admin invoking an admin operation.
func NewPermissionError(details string) *Error {
	return &Error{
		Code:      ErrCodePermission,
		Message:   "operation not permitted for actor",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidStateError reports a status precondition violation. Callers may
// re-read but must not retry the transition.
func NewInvalidStateError(requestID, currentStatus string) *Error {
	return &Error{
		Code:      ErrCodeInvalidState,
		Message:   "request is not pending",
		Details:   fmt.Sprintf("requestId: %s, status: %s", requestID, currentStatus),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSigningServiceError wraps a failed external signing call. Retryable:
// the engine has not mutated any state, so the caller may safely retry.
func NewSigningServiceError(err error) *Error {
	return &Error{
		Code:      ErrCodeSigningService,
		Message:   "signing service call failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewStorageError wraps an unexpected database failure.
func NewStorageError(op string, err error) *Error {
	return &Error{
		Code:      ErrCodeStorage,
		Message:   "storage operation failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 4. Predicates
// ==========================

// CodeOf extracts the taxonomy code from err, or "" if err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

func IsValidation(err error) bool   { return IsCode(err, ErrCodeValidation) }
func IsNotFound(err error) bool     { return IsCode(err, ErrCodeNotFound) }
func IsPermission(err error) bool   { return IsCode(err, ErrCodePermission) }
func IsInvalidState(err error) bool { return IsCode(err, ErrCodeInvalidState) }
func IsSigningError(err error) bool { return IsCode(err, ErrCodeSigningService) }
func IsStorageError(err error) bool { return IsCode(err, ErrCodeStorage) }
