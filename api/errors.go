// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Status taxonomy shared by every hioload-mem package. Operations return a
// structured *Error carrying one ErrorCode; callers classify failures with
// errors.Is against the sentinel values or with CodeOf.

package api

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeAlreadyExists
	ErrCodeUnavailable
	ErrCodeNotFound
	ErrCodeInternal
	ErrCodeUnsupported
)

var codeNames = [...]string{
	ErrCodeOK:              "OK",
	ErrCodeInvalidArgument: "INVALID_ARGUMENT",
	ErrCodeAlreadyExists:   "ALREADY_EXISTS",
	ErrCodeUnavailable:     "UNAVAILABLE",
	ErrCodeNotFound:        "NOT_FOUND",
	ErrCodeInternal:        "INTERNAL",
	ErrCodeUnsupported:     "UNSUPPORTED",
}

func (c ErrorCode) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
	return codeNames[c]
}

// Sentinels for errors.Is matching. Each matches any *Error with the same code.
var (
	ErrInvalidArgument = &Error{Code: ErrCodeInvalidArgument, Message: "invalid argument"}
	ErrAlreadyExists   = &Error{Code: ErrCodeAlreadyExists, Message: "resource already exists"}
	ErrUnavailable     = &Error{Code: ErrCodeUnavailable, Message: "resource unavailable"}
	ErrNotFound        = &Error{Code: ErrCodeNotFound, Message: "resource not found"}
	ErrInternal        = &Error{Code: ErrCodeInternal, Message: "internal error"}
	ErrUnsupported     = &Error{Code: ErrCodeUnsupported, Message: "operation not supported"}
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Errorf creates a structured error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the ErrorCode from err. nil maps to ErrCodeOK and errors
// outside the taxonomy map to ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
