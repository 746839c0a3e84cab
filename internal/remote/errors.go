package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a remote failure by where it came from
type Kind int

const (
	// KindRequest is a generic rejection of the request
	KindRequest Kind = iota

	// KindConnection means the endpoint or connection is unusable
	KindConnection

	// KindPermission is an authorization failure
	KindPermission

	// KindQuery is an error raised while evaluating the statement
	KindQuery
)

// String returns the kind name used in logs
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindPermission:
		return "permission"
	case KindQuery:
		return "query"
	default:
		return "request"
	}
}

// Error is the typed failure reported by a Session
type Error struct {
	Kind Kind

	// Code is the endpoint's error code, when it reports one
	Code string

	Message string

	// Retryable is set when the endpoint itself flags the failure as transient
	Retryable bool

	// RetryAdvised is set on permission failures the endpoint suggests retrying
	RetryAdvised bool

	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s error %s: %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a remote Error from err's chain
func AsError(err error) (*Error, bool) {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr, true
	}
	return nil, false
}

// IsConnectionError reports whether err is a connection-class remote failure
func IsConnectionError(err error) bool {
	remoteErr, ok := AsError(err)
	return ok && remoteErr.Kind == KindConnection
}
