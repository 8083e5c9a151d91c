package reservation

import (
	"errors"
	"fmt"

	"github.com/iliyamo/lot-reservation/internal/model"
)

// Kind classifies an engine failure.  The API layer maps kinds to status
// codes; the message is shown to the user as is.
type Kind string

const (
	KindNotFound              Kind = "NOT_FOUND"
	KindForbidden             Kind = "FORBIDDEN"
	KindInvalidRange          Kind = "INVALID_RANGE"
	KindConflict              Kind = "CONFLICT"
	KindInvalidTransition     Kind = "INVALID_TRANSITION"
	KindDependencyUnavailable Kind = "DEPENDENCY_UNAVAILABLE"
)

// Error is returned by every engine operation that rejects a request.
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

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict)
// works regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is.
var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrInvalidRange          = &Error{Kind: KindInvalidRange}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrInvalidTransition     = &Error{Kind: KindInvalidTransition}
	ErrDependencyUnavailable = &Error{Kind: KindDependencyUnavailable}
)

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func wrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// rangeError maps a date range construction failure to InvalidRange.
func rangeError(err error) *Error {
	if errors.Is(err, model.ErrRangeTooLong) {
		return wrapError(KindInvalidRange, fmt.Sprintf("Date range must not exceed %d days", model.MaxRangeDays), err)
	}
	return wrapError(KindInvalidRange, "End date must not be before start date", err)
}

// KindOf returns the kind of err, or "" when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the user-facing message carried by err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
