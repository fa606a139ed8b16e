package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for callers.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindValidation      ErrorKind = "validation"
	KindForbidden       ErrorKind = "forbidden"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindConflict        ErrorKind = "conflict"
	KindUpstreamModel   ErrorKind = "upstream_model"
	KindPersistence     ErrorKind = "persistence"
)

// Error is a classified error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClientFault reports whether the error was caused by the request itself.
func (e *Error) ClientFault() bool {
	switch e.Kind {
	case KindUpstreamModel, KindPersistence:
		return false
	}
	return true
}

// NotFound returns a not-found error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation returns a validation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Forbidden returns a role-gate rejection.
func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated returns an identity failure.
func Unauthenticated(format string, args ...any) error {
	return &Error{Kind: KindUnauthenticated, Message: fmt.Sprintf(format, args...)}
}

// Conflict returns a concurrency rejection.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// UpstreamModel wraps a failed assessment model call.
func UpstreamModel(err error, msg string) error {
	return &Error{Kind: KindUpstreamModel, Message: msg, Err: err}
}

// Persistence wraps a storage failure.
func Persistence(err error, msg string) error {
	return &Error{Kind: KindPersistence, Message: msg, Err: err}
}

// KindOf returns the kind of err, or "" if err is not classified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
