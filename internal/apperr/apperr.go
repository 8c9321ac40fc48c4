// Package apperr defines the error taxonomy shared by the tracker gateway,
// the selection flow and the webhook dispatcher.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies a relay error.
type Code string

const (
	// CodeNotFound indicates the requested record is absent in the tracker.
	CodeNotFound Code = "NOT_FOUND"
	// CodeAuth indicates the tracker rejected our credentials (401/403).
	CodeAuth Code = "AUTH"
	// CodeTransport indicates a network or timeout failure reaching the tracker.
	CodeTransport Code = "TRANSPORT"
	// CodeValidation indicates malformed user input, e.g. a selection index
	// that no longer matches a presented option list.
	CodeValidation Code = "VALIDATION"
)

// Error is a classified relay error.
type Error struct {
	Code    Code
	Message string
	// Status carries the HTTP status for Auth errors so callers can
	// distinguish unauthorized (401) from forbidden (403).
	Status int
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NotFound creates a not-found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// Auth creates an auth error carrying the HTTP status (401 or 403).
func Auth(status int, msg string) *Error {
	return &Error{Code: CodeAuth, Status: status, Message: msg}
}

// Transport creates a transport error.
func Transport(msg string, cause error) *Error {
	return &Error{Code: CodeTransport, Message: msg, Cause: cause}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// IsCode reports whether err (or anything it wraps) carries the given code.
func IsCode(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf extracts the code from err, or returns defaultCode when err is not
// a classified error.
func CodeOf(err error, defaultCode Code) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return defaultCode
}
