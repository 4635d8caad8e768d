// Package apperr carries user-facing error codes from the scorer's edges (uploads, account
// forms, the length gate) to whichever surface reports them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation       = "validation"
	CodeTooShort         = "too_short"
	CodeTooLarge         = "too_large"
	CodeUnsupportedType  = "unsupported_type"
	CodeExtractionFailed = "extraction_failed"
	CodeUnauthorized     = "unauthorized"
	CodeConflict         = "conflict"
	CodeNotFound         = "not_found"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Message returns the user-facing text for err. Errors without a code get a generic message
// so internal details do not leak to callers.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func StatusForCode(code string) int {
	switch code {
	case CodeValidation, CodeTooShort:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeUnsupportedType:
		return http.StatusUnsupportedMediaType
	case CodeExtractionFailed:
		return http.StatusUnprocessableEntity
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Is(err error, code string) bool {
	return CodeOf(err) == code
}
