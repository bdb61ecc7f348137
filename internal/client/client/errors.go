package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork matches every store failure.
	ErrNetwork = errors.New("network error")

	ErrUnavailable  = errors.New("server unavailable")
	ErrNotFound     = errors.New("not found")
	ErrServer       = errors.New("server error")
	ErrRejected     = errors.New("request rejected")
	ErrUnauthorized = errors.New("unauthorized")
	ErrDecode       = errors.New("malformed response")
)

// RequestError describes a failed store call. It matches ErrNetwork, its Kind
// (one of the sentinels above) and, when set, the underlying Cause.
type RequestError struct {
	Op         string
	StatusCode int
	Kind       error
	Cause      error
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RequestError) Is(target error) bool {
	return target == ErrNetwork
}

func (e *RequestError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// IsTransient reports whether retrying the same request may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrServer)
}

func kindForStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrUnauthorized
	case code >= 500:
		return ErrServer
	default:
		return ErrRejected
	}
}
