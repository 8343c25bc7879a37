package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every *Error unwraps to exactly one of them.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrRejected     = errors.New("request rejected")
	ErrTransient    = errors.New("transient failure")
)

// Error is a failed API call. Message is the server-provided text when the
// response carried one.
type Error struct {
	Status  int
	Message string
	Kind    error
	cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
	case e.cause != nil:
		return fmt.Sprintf("api: %v: %v", e.Kind, e.cause)
	case e.Status != 0:
		return fmt.Sprintf("api: status %d", e.Status)
	default:
		return "api: " + e.Kind.Error()
	}
}

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= 500, status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return ErrTransient
	default:
		return ErrRejected
	}
}

func transient(cause error) *Error {
	return &Error{Kind: ErrTransient, cause: cause}
}

// Message returns the server-provided message carried by err, or fallback.
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
