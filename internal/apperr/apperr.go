// Package apperr defines the error kinds surfaced by the lobby, session,
// and hub managers. The route layer maps kinds to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies a category of failure.
type Kind string

const (
	NotFound                Kind = "not_found"
	AccessDenied            Kind = "access_denied"
	NotJoinable             Kind = "not_joinable"
	CapacityExceeded        Kind = "capacity_exceeded"
	SessionLimitReached     Kind = "session_limit_reached"
	CodeGenerationExhausted Kind = "code_generation_exhausted"
	GuestsNotAllowed        Kind = "guests_not_allowed"
	CapacityRejected        Kind = "capacity_rejected"
)

// Error carries a kind plus a human-readable reason.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, or "" if err carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
