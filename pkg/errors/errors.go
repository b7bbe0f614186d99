package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies the failure class exposed to callers. Codes are stable:
// clients branch on them, so new failure modes get new codes rather than
// reusing an existing one with a different meaning.
type Code string

const (
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeInvalidRequest      Code = "INVALID_REQUEST"
	CodeBlocked             Code = "BLOCKED"
	CodeUpstreamFetchFailed Code = "UPSTREAM_FETCH_FAILED"
	CodePayloadTooLarge     Code = "PAYLOAD_TOO_LARGE"
	CodeDecodeFailed        Code = "DECODE_FAILED"
	CodeInfraUnavailable    Code = "INFRASTRUCTURE_UNAVAILABLE"
	CodeInternal            Code = "INTERNAL"
)

// Error represents a structured error with additional context
type Error struct {
	Code    Code
	Message string
	Cause   error
	Details map[string]any
}

// New creates a new structured error
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithCause adds the underlying cause to the error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value any) *Error {
	e.Details[key] = value
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is; two Errors match when their codes match
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// RetryAfterSeconds returns the retry hint carried by a RATE_LIMITED
// error, or 0 when none is present.
func (e *Error) RetryAfterSeconds() int {
	if v, ok := e.Details["retryAfterSeconds"].(int); ok {
		return v
	}
	return 0
}

// HTTPStatusCode returns the appropriate HTTP status code for the error code
func (e *Error) HTTPStatusCode() int {
	switch e.Code {
	case CodeRateLimited:
		return 429
	case CodeInvalidRequest:
		return 400
	case CodeBlocked:
		return 403
	case CodeUpstreamFetchFailed:
		return 502
	case CodePayloadTooLarge:
		return 413
	case CodeDecodeFailed:
		return 422
	case CodeInfraUnavailable:
		return 503
	default:
		return 500
	}
}

// CodeOf extracts the Code from any error, defaulting to INTERNAL for
// errors that did not originate in this package.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// As is a convenience re-export of errors.As
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is a convenience re-export of errors.Is
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
