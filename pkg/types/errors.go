package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeTransition ErrorType = "transition"
	ErrorTypeIntegrity  ErrorType = "integrity"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeExternal   ErrorType = "external"
)

// CoreError represents a structured error in the referral core
type CoreError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *CoreError {
	return &CoreError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewTransitionError creates a new workflow transition error
func NewTransitionError(code, message string, details map[string]interface{}) *CoreError {
	return &CoreError{
		Type:    ErrorTypeTransition,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewIntegrityError creates a new integrity error
func NewIntegrityError(code, message string, cause error) *CoreError {
	return &CoreError{
		Type:    ErrorTypeIntegrity,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConflictError creates a new concurrency conflict error
func NewConflictError(code, message string) *CoreError {
	return &CoreError{
		Type:    ErrorTypeConflict,
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *CoreError {
	return &CoreError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *CoreError {
	return &CoreError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewExternalError creates a new external collaborator error
func NewExternalError(code, message string, cause error) *CoreError {
	return &CoreError{
		Type:    ErrorTypeExternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common error codes
const (
	ErrCodeInvalidInput            = "INVALID_INPUT"
	ErrCodeNotFound                = "NOT_FOUND"
	ErrCodeConflict                = "CONFLICT"
	ErrCodeInternalError           = "INTERNAL_ERROR"
	ErrCodeStorageFailure          = "STORAGE_FAILURE"
	ErrCodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	ErrCodeInvalidStateTransition  = "INVALID_STATE_TRANSITION"
	ErrCodeUnknownStatus           = "UNKNOWN_STATUS"
	ErrCodeReasonRequired          = "REASON_REQUIRED"
	ErrCodeInvalidKeyLength        = "INVALID_KEY_LENGTH"
	ErrCodeIntegrityFailure        = "INTEGRITY_FAILURE"
	ErrCodeChecksumMismatch        = "CHECKSUM_MISMATCH"
	ErrCodePackageExpired          = "PACKAGE_EXPIRED"
)

// IsCode reports whether err is a CoreError carrying the given code.
func IsCode(err error, code string) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
