// Package errors defines the failure kinds surfaced by identity providers.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a provider failure so callers can tell a bad response from a
// transient network problem.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindMalformedResponse  Kind = "malformed_response"
	KindIncompleteResponse Kind = "incomplete_response"
	KindTransport          Kind = "transport"
	KindRejected           Kind = "rejected"
	KindInvalidRequest     Kind = "invalid_request"
	KindUnsupported        Kind = "unsupported"
)

var (
	ErrUnexpectedAuthResponse = errors.New("unexpected auth response")
	ErrTokenNotFound          = errors.New("access token and expires not found")
	ErrCodeMissing            = errors.New("authorization code missing")
	ErrStateMismatch          = errors.New("oauth state mismatch")
	ErrNotAuthenticated       = errors.New("session is not authenticated")
	ErrStatusNotUpdated       = errors.New("status not updated")
	ErrRedirectURIRequired    = errors.New("redirect uri is required")
	ErrMessageRequired        = errors.New("status message is required")
	ErrSessionNotFound        = errors.New("session not found")
)

// Error is a classified failure. Op names the provider step that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a classified error wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf returns a classified error with a formatted message and no cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrapf returns a classified error with a formatted message wrapping err.
func Wrapf(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsMalformed(err error) bool   { return KindOf(err) == KindMalformedResponse }
func IsIncomplete(err error) bool  { return KindOf(err) == KindIncompleteResponse }
func IsTransport(err error) bool   { return KindOf(err) == KindTransport }
func IsRejected(err error) bool    { return KindOf(err) == KindRejected }
func IsInvalid(err error) bool     { return KindOf(err) == KindInvalidRequest }
func IsUnsupported(err error) bool { return KindOf(err) == KindUnsupported }
