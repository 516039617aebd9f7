package channels

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failed platform operation for logs, metrics and
// retry decisions.
type ErrorCode string

const (
	// ErrCodeConnection indicates network or connection-related failures
	ErrCodeConnection ErrorCode = "CONNECTION_ERROR"

	// ErrCodeAuthentication indicates a rejected or revoked token
	ErrCodeAuthentication ErrorCode = "AUTH_ERROR"

	// ErrCodeRateLimit indicates the platform throttled the call
	ErrCodeRateLimit ErrorCode = "RATE_LIMIT_ERROR"

	// ErrCodeInvalidInput indicates a message the platform refused, such as
	// oversize text or malformed blocks
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrCodeNotFound indicates a missing channel or message
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeTimeout indicates an operation timed out
	ErrCodeTimeout ErrorCode = "TIMEOUT_ERROR"

	// ErrCodeInternal indicates an unexpected internal error
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

	// ErrCodeConfig indicates a configuration error
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"
)

// Error is a platform failure with a code and the operation that hit it.
type Error struct {
	Code ErrorCode

	// Op is the platform call, e.g. "chat.postMessage".
	Op string

	Message string
	Err     error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.Op != "" {
		prefix += " " + e.Op
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error, allowing errors.Is and errors.As to work.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithOp records the platform call that failed.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// IsRetryable reports whether the failure is transient.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrCodeRateLimit, ErrCodeTimeout, ErrCodeConnection:
		return true
	default:
		return false
	}
}

// ErrConnection creates a connection error.
func ErrConnection(message string, err error) *Error {
	return NewError(ErrCodeConnection, message, err)
}

// ErrAuthentication creates an authentication error.
func ErrAuthentication(message string, err error) *Error {
	return NewError(ErrCodeAuthentication, message, err)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string, err error) *Error {
	return NewError(ErrCodeRateLimit, message, err)
}

// ErrInvalidInput creates an invalid input error.
func ErrInvalidInput(message string, err error) *Error {
	return NewError(ErrCodeInvalidInput, message, err)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string, err error) *Error {
	return NewError(ErrCodeNotFound, message, err)
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string, err error) *Error {
	return NewError(ErrCodeTimeout, message, err)
}

// ErrInternal creates an internal error.
func ErrInternal(message string, err error) *Error {
	return NewError(ErrCodeInternal, message, err)
}

// ErrConfig creates a configuration error.
func ErrConfig(message string, err error) *Error {
	return NewError(ErrCodeConfig, message, err)
}

// GetErrorCode extracts the ErrorCode from err, or ErrCodeInternal when err
// is not a channel Error.
func GetErrorCode(err error) ErrorCode {
	var chErr *Error
	if errors.As(err, &chErr) {
		return chErr.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether err wraps a transient channel Error.
func IsRetryable(err error) bool {
	var chErr *Error
	if errors.As(err, &chErr) {
		return chErr.IsRetryable()
	}
	return false
}
