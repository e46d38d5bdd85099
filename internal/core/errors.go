package core

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way the API reports it. Cryptographic and
// structural failures all collapse into KindUnauthorized; the true cause is
// only ever logged server-side.
type Kind int

const (
	KindBadRequest Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindUnavailable
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not found"
	case KindUnavailable:
		return "service unavailable"
	default:
		return "internal error"
	}
}

// Error is the service-wide error type. Message is safe to show to clients;
// the wrapped error carries the detail that stays in the server log.
type Error struct {
	Kind    Kind
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

// E builds an Error from a kind, a client-safe message and optional detail
// errors to wrap.
func E(kind Kind, message string, wrap ...error) *Error {
	e := &Error{Kind: kind, Message: message}
	if len(wrap) > 0 {
		e.Err = errors.Join(wrap...)
	}
	return e
}

// Errorf is E with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from an error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ClientMessage returns the message that may be exposed to a caller. For
// errors outside our taxonomy it hides the detail entirely.
func ClientMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return KindInternal.String()
}
