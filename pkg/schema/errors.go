package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeDecryption        = "DECRYPTION_ERROR"
	ErrCodeCorruptedSecret   = "CORRUPTED_SECRET"
	ErrCodeImport            = "IMPORT_ERROR"
	ErrCodeCapacityExceeded  = "CAPACITY_EXCEEDED"
	ErrCodeExpired           = "EXPIRED"
	ErrCodeResource          = "RESOURCE_ERROR"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeOAuth             = "OAUTH_ERROR"
	ErrCodeActionUnavailable = "ACTION_UNAVAILABLE"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeConflict          = "CONFLICT"
)

// SealboxError is the structured error type for all sealbox operations.
type SealboxError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *SealboxError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SealboxError) Unwrap() error {
	return e.Cause
}

// NewError creates a new SealboxError.
func NewError(code, message string) *SealboxError {
	return &SealboxError{Code: code, Message: message}
}

// NewErrorf creates a new SealboxError with a formatted message.
func NewErrorf(code, format string, args ...any) *SealboxError {
	return &SealboxError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *SealboxError) WithCause(err error) *SealboxError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *SealboxError) WithDetails(details map[string]any) *SealboxError {
	e.Details = details
	return e
}

// CodeOf returns the error code of err, or ErrCodeExecution when err is not
// a SealboxError.
func CodeOf(err error) string {
	var se *SealboxError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeExecution
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code string) bool {
	var se *SealboxError
	return errors.As(err, &se) && se.Code == code
}
