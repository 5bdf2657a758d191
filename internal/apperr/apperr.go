// Package apperr defines the request pipeline's error taxonomy. Every
// failure a handler can surface to a client is classified by Kind; any
// error that carries no Kind is treated as internal and rendered as an
// opaque 500. Wrapped causes stay attached for server-side logging and
// never reach response bodies.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP status mapping.
type Kind int

const (
	// KindInternal is the catch-all for unclassified failures (500).
	KindInternal Kind = iota

	// KindAuth means the request carried no valid identity (401).
	KindAuth

	// KindValidation means the request body was malformed or incomplete (400).
	KindValidation

	// KindTooLarge means an attachment exceeded the size ceiling (413).
	KindTooLarge

	// KindNotFound means a referenced record does not exist (404).
	KindNotFound

	// KindQuota means the user's daily message limit is exhausted (429).
	KindQuota

	// KindUpstreamEmpty means the model returned an empty answer (502).
	KindUpstreamEmpty
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindTooLarge:
		return "too_large"
	case KindNotFound:
		return "not_found"
	case KindQuota:
		return "quota_exceeded"
	case KindUpstreamEmpty:
		return "upstream_empty"
	default:
		return "internal"
	}
}

// HTTPStatus returns the response status code for this kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindAuth:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindNotFound:
		return http.StatusNotFound
	case KindQuota:
		return http.StatusTooManyRequests
	case KindUpstreamEmpty:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified pipeline error. Msg is safe to show to clients;
// Err is the internal cause and must only be logged.
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

// New creates a classified error with a client-safe message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a classified error with a formatted client-safe message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a classification and client-safe message to an
// internal cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors
// report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-safe message for an error chain.
// Unclassified errors get an opaque message so internals never leak.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}
