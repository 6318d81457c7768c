// Package resolveerr provides structured error types for resolver and
// preprocessor failures. Error preserves error chains and supports
// errors.Is/As while remaining a plain, serializable struct.
package resolveerr

import (
	"errors"
	"fmt"
)

// Error represents a structured resolution failure that preserves message
// and causal context while still implementing the standard error interface.
// Errors may be nested via Cause to retain diagnostics across resolver chain
// hops.
type Error struct {
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying error, enabling error chains with errors.Is/As.
	Cause *Error
}

// New constructs an Error with the provided message.
func New(message string) *Error {
	if message == "" {
		message = "resolution error"
	}
	return &Error{Message: message}
}

// NewWithCause constructs an Error that wraps an underlying error. The cause
// is converted into an Error chain of messages so it survives serialization;
// errors.As finds *Error at each level through Unwrap, but errors.Is does
// not match the original cause value once it has been converted.
func NewWithCause(message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into an Error chain.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats according to a format specifier and returns the string as an Error.
func Errorf(format string, args ...any) *Error {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying error to support errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
