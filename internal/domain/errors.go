package domain

import (
	"errors"
	"fmt"
)

// Kind is the machine-checkable class of a failure.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindUnauthenticated   Kind = "unauthenticated"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindCapacity          Kind = "capacity_error"
	KindUpstream          Kind = "upstream_failure"
	KindInvalidCode       Kind = "invalid_or_expired_code"
	KindRateLimited       Kind = "rate_limited"
)

// Store sentinels. Persistence implementations return these and the
// lifecycle services translate them into an Error with a user-facing message.
var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrCapacityExceeded       = errors.New("capacity exceeded")
	ErrDuplicate              = errors.New("duplicate")
)

// ErrSelfBooking is returned when a provider tries to book their own service.
var ErrSelfBooking = &Error{Kind: KindForbidden, Message: "you cannot book your own service"}

// Error carries a Kind, a human-readable message and an optional cause.
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

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func Unauthenticated(format string, args ...any) *Error {
	return newError(KindUnauthenticated, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return newError(KindInvalidTransition, format, args...)
}

func Capacity(format string, args ...any) *Error {
	return newError(KindCapacity, format, args...)
}

func RateLimited(format string, args ...any) *Error {
	return newError(KindRateLimited, format, args...)
}

// InvalidCode is the single answer for a missing, mismatched or expired one-time code.
func InvalidCode() *Error {
	return &Error{Kind: KindInvalidCode, Message: "invalid or expired code"}
}

// Upstream wraps a collaborator failure.
func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// KindOf returns the Kind of err, or an empty Kind for unclassified errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// StoreError translates a persistence error into the taxonomy. what names the
// entity for NotFound messages.
func StoreError(err error, what string) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return &Error{Kind: KindNotFound, Message: what + " not found", Err: err}
	case errors.Is(err, ErrConcurrentModification):
		return &Error{Kind: KindConflict, Message: what + " was modified concurrently, retry", Err: err}
	case errors.Is(err, ErrCapacityExceeded):
		return &Error{Kind: KindCapacity, Message: "not enough capacity", Err: err}
	case errors.Is(err, ErrDuplicate):
		return &Error{Kind: KindConflict, Message: what + " already exists", Err: err}
	}
	return Upstream("storage unavailable", err)
}
