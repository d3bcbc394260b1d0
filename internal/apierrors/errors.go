// Package apierrors defines the error kinds raised by handlers and services and their
// mapping to HTTP status codes. Kinds are assigned where a failure is detected and
// must survive wrapping so the boundary layer can report them faithfully.
package apierrors

import (
	"errors"
	"net/http"
)

// Kind classifies a failure
type Kind int

const (
	// KindInternal covers store, signer, and outbound transport failures
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for a kind
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error with a user-facing message
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err under kind with a user-facing message
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// BadRequest creates a KindBadRequest error
func BadRequest(message string) *Error { return New(KindBadRequest, message) }

// Unauthorized creates a KindUnauthorized error
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

// Forbidden creates a KindForbidden error
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// NotFound creates a KindNotFound error
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Internal wraps err as a KindInternal error
func Internal(message string, err error) *Error { return Wrap(KindInternal, message, err) }

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Message returns the user-facing message for err. Unclassified errors get a
// generic message so internal details are not leaked.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error"
}
