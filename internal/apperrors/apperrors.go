// README: Classified application errors mapped onto HTTP statuses.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind mirrors the error codes the mobile clients already understand.
type Kind string

const (
	Unauthenticated    Kind = "unauthenticated"
	PermissionDenied   Kind = "permission-denied"
	InvalidArgument    Kind = "invalid-argument"
	NotFound           Kind = "not-found"
	FailedPrecondition Kind = "failed-precondition"
	Internal           Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies a downstream failure while keeping the original message
// attached for diagnostics.
func Wrap(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the classification of err, or Internal for unclassified
// errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// MessageOf returns the human-readable message of a classified error, or a
// generic message for unclassified ones so internal details never leak to
// clients.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "an internal error occurred"
}

// HTTPStatus maps an error classification to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Unauthenticated:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case FailedPrecondition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
