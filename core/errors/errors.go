// Package errors defines the dispatch error taxonomy: the fixed set of
// result kinds a predicate or handler can short-circuit with, each
// carrying an HTTP-equivalent status, an optional message, and optional
// structured data.
package errors

import "fmt"

// Kind identifies one of the five taxonomy members.
type Kind string

const (
	KindBadRequest          Kind = "bad_request"
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not_found"
	KindInternalServerError Kind = "internal_server_error"
)

// statusOf maps each taxonomy kind to its HTTP-equivalent status code.
var statusOf = map[Kind]int{
	KindBadRequest:          400,
	KindUnauthorized:        401,
	KindForbidden:           403,
	KindNotFound:            404,
	KindInternalServerError: 500,
}

// DispatchError is the single error type every predicate, handler, and DI
// resolution failure surfaces. The dispatcher pattern-matches on Kind to
// build the wire response (spec §7); it never uses panics for control flow.
type DispatchError struct {
	Kind    Kind
	Message string
	Data    any
	Cause   error
}

func (e *DispatchError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// Status returns the HTTP-equivalent status code for this error's kind.
func (e *DispatchError) Status() int {
	if s, ok := statusOf[e.Kind]; ok {
		return s
	}
	return 500
}

// New builds a DispatchError of the given kind with a message.
func New(kind Kind, message string) *DispatchError {
	return &DispatchError{Kind: kind, Message: message}
}

// NewWithData builds a DispatchError carrying a structured data payload.
func NewWithData(kind Kind, message string, data any) *DispatchError {
	return &DispatchError{Kind: kind, Message: message, Data: data}
}

// Wrap builds an InternalServerError DispatchError around an underlying
// cause, used for unexpected failures surfaced from handlers, predicates,
// and DI resolution (spec §7).
func Wrap(cause error, message string) *DispatchError {
	return &DispatchError{Kind: KindInternalServerError, Message: message, Cause: cause}
}

func BadRequest(message string) *DispatchError   { return New(KindBadRequest, message) }
func Unauthorized(message string) *DispatchError { return New(KindUnauthorized, message) }
func Forbidden(message string) *DispatchError    { return New(KindForbidden, message) }
func NotFound(message string) *DispatchError     { return New(KindNotFound, message) }
func InternalServerError(message string) *DispatchError {
	return New(KindInternalServerError, message)
}

// ResolutionError reports a DI resolution failure with the failing
// parameter name attached (spec §7: "errors inside DI resolution are
// reported with the failing parameter name and surface as
// InternalServerError").
func ResolutionError(param string, cause error) *DispatchError {
	return Wrap(cause, fmt.Sprintf("failed to resolve parameter %q", param))
}

// As reports whether err is a *DispatchError, unwrapping standard wrap
// chains, mirroring stdlib errors.As without requiring the caller to
// import the target type separately.
func As(err error) (*DispatchError, bool) {
	for err != nil {
		if de, ok := err.(*DispatchError); ok {
			return de, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
