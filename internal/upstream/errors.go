package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors classifying upstream failures. Every *Error matches exactly one.
var (
	ErrUnavailable = errors.New("upstream service unavailable")
	ErrNotFound    = errors.New("upstream resource not found")
	ErrBadRequest  = errors.New("upstream rejected request")
	ErrForbidden   = errors.New("upstream forbade request")
)

// ErrUnexpectedFormat marks a 2xx response whose body did not have the expected shape.
// It is always reported with kind ErrUnavailable.
var ErrUnexpectedFormat = errors.New("unexpected response format")

// Error describes a failed upstream call.
type Error struct {
	Service    string // "pools" or "matches"
	Op         string
	StatusCode int    // 0 when no response was received
	Message    string // upstream response body, trimmed
	Kind       error  // one of the sentinels above
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Kind)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool {
	return e != nil && target == e.Kind
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// kindForStatus maps a non-2xx status to its error kind.
func kindForStatus(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrUnavailable
	}
}

// MessageOf returns the upstream message carried by err, if any.
func MessageOf(err error) string {
	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr.Message
	}
	return ""
}
