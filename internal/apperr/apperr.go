// Package apperr defines the error taxonomy shared by both gateway services.
// Every failure a handler can report maps onto one Kind, and every Kind
// renders as the same JSON envelope: {"error": message, ...details}.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindBadRequest Kind = "bad_request"
	KindNotFound   Kind = "not_found"
	KindUpstream   Kind = "upstream_error"
	KindInternal   Kind = "internal_error"
)

// Error is a classified failure carrying the HTTP status it renders with
// and any extra envelope fields.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Details map[string]any
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

// With adds an envelope field and returns the same error.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Envelope returns the JSON body for this error. The "error" key always
// holds the message; details never override it.
func (e *Error) Envelope() map[string]any {
	body := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		body[k] = v
	}
	body["error"] = e.Message
	return body
}

// BadRequest reports missing or invalid caller input.
func BadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing bucket, object or record.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// Upstream reports a non-2xx backend response. The status mirrors the
// backend's and the backend body is kept under "details".
func Upstream(message string, status int, body string) *Error {
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	e := &Error{Kind: KindUpstream, Status: status, Message: message}
	return e.With("status", status).With("details", body)
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *Error {
	e := &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: message, Err: err}
	if err != nil {
		e.With("message", err.Error())
	}
	return e
}

// From classifies any error. Unclassified errors become Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal server error", err)
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
