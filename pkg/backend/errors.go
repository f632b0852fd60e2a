package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies backend failures.
type Kind int

const (
	// KindTransport covers network failures and 5xx responses.
	KindTransport Kind = iota + 1
	// KindAuthRequired covers 401 and 403 responses.
	KindAuthRequired
	// KindNotFound covers 404 responses.
	KindNotFound
	// KindClient covers the remaining 4xx responses.
	KindClient
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuthRequired:
		return "auth required"
	case KindNotFound:
		return "not found"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

// Error is returned by backend operations.
type Error struct {
	Kind   Kind
	Status int
	Op     string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("backend: %s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// StatusError classifies an HTTP status. Statuses below 400 return nil.
func StatusError(op string, status int, err error) error {
	var kind Kind
	switch {
	case status < http.StatusBadRequest:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuthRequired
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status < http.StatusInternalServerError:
		kind = KindClient
	default:
		kind = KindTransport
	}
	return &Error{Kind: kind, Status: status, Op: op, Err: err}
}

// TransportError wraps a failure that never produced a response.
func TransportError(op string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// KindOf returns the kind of err. Errors that are not backend errors are
// treated as transport failures; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindTransport
}

// IsNotFound reports whether err is a 404-class failure.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

// IsAuthRequired reports whether err asks for authentication.
func IsAuthRequired(err error) bool { return err != nil && KindOf(err) == KindAuthRequired }

// IsTransport reports whether err is a retryable transport failure.
func IsTransport(err error) bool { return err != nil && KindOf(err) == KindTransport }
