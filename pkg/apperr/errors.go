package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category in client-facing responses
type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeUnauthenticated Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodePayloadTooLarge Code = "PAYLOAD_TOO_LARGE"
	CodeRateLimited     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal        Code = "INTERNAL_SERVER_ERROR"
)

// Error is an operational error with a client-visible code and HTTP status.
// The wrapped cause is kept for logging and is never sent to clients.
type Error struct {
	Code    Code
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with an explicit code and status
func New(code Code, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Validation creates a 400 validation error
func Validation(message string) *Error {
	return New(CodeValidation, http.StatusBadRequest, message)
}

// Unauthenticated creates a 401 error
func Unauthenticated(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(CodeUnauthenticated, http.StatusUnauthorized, message)
}

// Forbidden creates a 403 error
func Forbidden(message string) *Error {
	if message == "" {
		message = "Forbidden access"
	}
	return New(CodeForbidden, http.StatusForbidden, message)
}

// NotFound creates a 404 error for a named resource
func NotFound(resource string) *Error {
	return New(CodeNotFound, http.StatusNotFound, resource+" not found")
}

// Conflict creates a 409 error
func Conflict(message string) *Error {
	return New(CodeConflict, http.StatusConflict, message)
}

// PayloadTooLarge creates a 413 error
func PayloadTooLarge(message string) *Error {
	if message == "" {
		message = "Request payload too large"
	}
	return New(CodePayloadTooLarge, http.StatusRequestEntityTooLarge, message)
}

// RateLimited creates a 429 error
func RateLimited(message string) *Error {
	if message == "" {
		message = "Too many requests"
	}
	return New(CodeRateLimited, http.StatusTooManyRequests, message)
}

// Internal wraps an unexpected failure. The cause is preserved for logging
// but clients only ever see the generic message.
func Internal(err error) *Error {
	return &Error{
		Code:    CodeInternal,
		Status:  http.StatusInternalServerError,
		Message: "Internal server error",
		Err:     err,
	}
}

// Wrap attaches a cause to e without changing what the client sees
func (e *Error) Wrap(err error) *Error {
	return &Error{Code: e.Code, Status: e.Status, Message: e.Message, Err: err}
}

// Coerce returns err as *Error, folding anything untyped into Internal
func Coerce(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsCode reports whether err carries the given code
func IsCode(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
