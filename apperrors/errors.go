package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies pipeline and API failures.
type Kind string

const (
	KindDecode     Kind = "decode"
	KindTranscode  Kind = "transcode"
	KindNetwork    Kind = "network"
	KindBackend    Kind = "backend"
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

// Error is a classified application error.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewDecodeError reports an image that could not be decoded at all.
func NewDecodeError(message string, cause error) *Error {
	return &Error{
		Kind:       KindDecode,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewTranscodeError reports a failed PNG re-encode of a decodable image.
func NewTranscodeError(message string, cause error) *Error {
	return &Error{
		Kind:       KindTranscode,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewNetworkError reports a request that never produced a response.
func NewNetworkError(message string, cause error) *Error {
	return &Error{
		Kind:       KindNetwork,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewBackendError reports a non-2xx response from the detection service.
func NewBackendError(message string, cause error) *Error {
	return &Error{
		Kind:       KindBackend,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewValidationError reports malformed input or a malformed service payload.
func NewValidationError(message string, cause error) *Error {
	return &Error{
		Kind:       KindValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewNotFoundError reports a missing record or resource.
func NewNotFoundError(message string, cause error) *Error {
	return &Error{
		Kind:       KindNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Cause:      cause,
	}
}

// NewInternalError reports an unexpected server-side failure.
func NewInternalError(message string, cause error) *Error {
	return &Error{
		Kind:       KindInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err (or anything it wraps) has the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// StatusCode extracts an HTTP status from err, defaulting to 500.
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
