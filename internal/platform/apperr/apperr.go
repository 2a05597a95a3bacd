// Package apperr defines the error taxonomy shared by the access-lifecycle services.
// Services return *Error values; transports map Kind to their own status codes.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. Every kind except Unavailable is a business-rule outcome.
type Kind string

const (
	KindForbidden        Kind = "Forbidden"
	KindNotFound         Kind = "NotFound"
	KindInvalidState     Kind = "InvalidState"
	KindExpired          Kind = "Expired"
	KindConflict         Kind = "Conflict"
	KindLastOwnerDenied  Kind = "LastOwnerDenied"
	KindSelfActionDenied Kind = "SelfActionDenied"
	KindActorMismatch    Kind = "ActorMismatch"
	KindInvalidArgument  Kind = "InvalidArgument"
	// KindUnavailable covers store and connectivity failures. It is the only retryable kind.
	KindUnavailable Kind = "Unavailable"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrForbidden        = &Error{Kind: KindForbidden, Reason: "forbidden"}
	ErrNotFound         = &Error{Kind: KindNotFound, Reason: "not found"}
	ErrInvalidState     = &Error{Kind: KindInvalidState, Reason: "invalid state"}
	ErrExpired          = &Error{Kind: KindExpired, Reason: "expired"}
	ErrConflict         = &Error{Kind: KindConflict, Reason: "conflict"}
	ErrLastOwnerDenied  = &Error{Kind: KindLastOwnerDenied, Reason: "organization must keep at least one owner"}
	ErrSelfActionDenied = &Error{Kind: KindSelfActionDenied, Reason: "cannot perform this action on yourself"}
	ErrActorMismatch    = &Error{Kind: KindActorMismatch, Reason: "actor does not match the intended recipient"}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument, Reason: "invalid argument"}
	ErrUnavailable      = &Error{Kind: KindUnavailable, Reason: "temporarily unavailable; retry"}
)

// Error is a classified failure with a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the caller may retry the operation unchanged.
func (e *Error) Retryable() bool { return e.Kind == KindUnavailable }

// New returns an *Error of the given kind with a formatted reason.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Forbidden returns a KindForbidden error.
func Forbidden(format string, args ...any) *Error { return New(KindForbidden, format, args...) }

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) *Error { return New(KindNotFound, format, args...) }

// InvalidState returns a KindInvalidState error.
func InvalidState(format string, args ...any) *Error { return New(KindInvalidState, format, args...) }

// Expired returns a KindExpired error.
func Expired(format string, args ...any) *Error { return New(KindExpired, format, args...) }

// Conflict returns a KindConflict error.
func Conflict(format string, args ...any) *Error { return New(KindConflict, format, args...) }

// InvalidArgument returns a KindInvalidArgument error.
func InvalidArgument(format string, args ...any) *Error {
	return New(KindInvalidArgument, format, args...)
}

// Unavailable wraps a store or connectivity failure as a retryable error.
func Unavailable(cause error, format string, args ...any) *Error {
	e := New(KindUnavailable, format, args...)
	e.cause = cause
	return e
}

// KindOf returns the Kind of err. Untyped errors are treated as store failures (Unavailable).
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// ReasonOf returns the human-readable reason carried by err.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ErrUnavailable.Reason
}

// Classify returns err unchanged when it is already an *Error and wraps anything else as Unavailable.
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Unavailable(err, "%s failed; retry", op)
}
