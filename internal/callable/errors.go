package callable

import (
	"errors"
	"net/http"
)

// Code is the status carried in a callable error response
type Code string

// Error codes surfaced to callers
const (
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInternal           Code = "INTERNAL"
)

// HTTPStatus maps a code to the status used by the callable protocol
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument, CodeFailedPrecondition:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is the only error type returned to callers
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a callable error with the given code and message
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// InvalidArgument reports malformed or missing input
func InvalidArgument(message string) *Error {
	return NewError(CodeInvalidArgument, message)
}

// Unauthenticated reports a call without a verified identity
func Unauthenticated(message string) *Error {
	return NewError(CodeUnauthenticated, message)
}

// FailedPrecondition reports missing configuration or credentials
func FailedPrecondition(message string) *Error {
	return NewError(CodeFailedPrecondition, message)
}

// NotFound reports a valid request with no matching data
func NotFound(message string) *Error {
	return NewError(CodeNotFound, message)
}

// Internal wraps any other failure; message is what the caller sees
func Internal(message string, err error) *Error {
	return &Error{Code: CodeInternal, Message: message, Err: err}
}

// AsError converts err into a callable error, defaulting to INTERNAL
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	msg := err.Error()
	if msg == "" {
		msg = "An unexpected error occurred"
	}
	return Internal(msg, err)
}

// CodeOf returns the callable code of err, or "" for nil
func CodeOf(err error) Code {
	if ce := AsError(err); ce != nil {
		return ce.Code
	}
	return ""
}
