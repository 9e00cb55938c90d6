package storage

import (
	"errors"
	"fmt"
)

// Canonical backend error codes. Adapters map their transport's failures onto
// these once, at the boundary; nothing above the boundary parses error
// strings.
const (
	CodeInvalid     = 400
	CodeForbidden   = 403
	CodeNotFound    = 404
	CodeConflict    = 409
	CodeTooLarge    = 413
	CodeThrottled   = 429
	CodeInternal    = 500
	CodeUnavailable = 503
	CodeTimeout     = 504
)

// Error carries the backend's structured (code, message) pair. It is
// constructed exactly once at the backend adapter and travels unmodified up
// through the retry loop to caller policy callbacks.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d", e.Code)
}

// NewError builds a structured backend error.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError unwraps err to the structured backend error, if it carries one.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsTransient reports whether err looks retryable: throttling, timeouts, and
// server-side failures. Validation and size-limit failures are permanent.
func IsTransient(err error) bool {
	be, ok := AsError(err)
	if !ok {
		return false
	}
	return be.Code == CodeThrottled || be.Code >= 500
}
