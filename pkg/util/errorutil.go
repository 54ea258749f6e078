package util

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies client-visible failure modes.
type ErrorKind string

const (
	// KindAuthExpired means the access token was rejected. Recovered
	// transparently via refresh-and-retry; surfaced only when that fails.
	KindAuthExpired ErrorKind = "AUTH_EXPIRED"
	// KindAuthInvalid means the refresh token is missing or rejected. Fatal
	// for the session.
	KindAuthInvalid ErrorKind = "AUTH_INVALID"
	// KindValidationRejected means the server refused the payload.
	KindValidationRejected ErrorKind = "VALIDATION_REJECTED"
	// KindNotFound means the resource does not exist.
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindNetworkUnavailable means the request never reached the server.
	KindNetworkUnavailable ErrorKind = "NETWORK_UNAVAILABLE"
	// KindMalformedPush means a live notification frame failed to parse.
	KindMalformedPush ErrorKind = "MALFORMED_PUSH"
	// KindPersistence means durable client storage failed; non-fatal.
	KindPersistence ErrorKind = "PERSISTENCE_FAILED"
	// KindInternal covers everything else.
	KindInternal ErrorKind = "INTERNAL"
)

// ClientError standardizes application errors.
type ClientError struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// NewClientError constructs a ClientError.
func NewClientError(kind ErrorKind, message string, status int) *ClientError {
	return &ClientError{Kind: kind, Message: message, HTTPStatus: status}
}

func NewAuthExpired(message string) error {
	return NewClientError(KindAuthExpired, message, http.StatusUnauthorized)
}

func NewAuthInvalid(message string) error {
	return NewClientError(KindAuthInvalid, message, http.StatusUnauthorized)
}

func NewValidationRejected(message string) error {
	return NewClientError(KindValidationRejected, message, http.StatusBadRequest)
}

func NewNotFound(resource string) error {
	return NewClientError(KindNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewNetworkUnavailable(operation string, err error) error {
	return &ClientError{
		Kind:    KindNetworkUnavailable,
		Message: fmt.Sprintf("request failed: %s", operation),
		Err:     err,
	}
}

func NewMalformedPush(err error) error {
	return &ClientError{Kind: KindMalformedPush, Message: "malformed notification frame", Err: err}
}

func NewPersistenceError(err error) error {
	return &ClientError{Kind: KindPersistence, Message: "client storage unavailable", Err: err}
}

// FromStatus maps an HTTP response status to the client taxonomy. The
// refresh gate has already absorbed the recoverable auth case by the time
// this runs, so a remaining 401 means the session could not be repaired and
// a 403 means the server refused the action outright.
func FromStatus(status int, detail string) error {
	if detail == "" {
		detail = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized:
		return NewClientError(KindAuthExpired, detail, status)
	case status == http.StatusForbidden:
		return NewClientError(KindValidationRejected, detail, status)
	case status == http.StatusNotFound:
		return NewClientError(KindNotFound, detail, status)
	case status >= 400 && status < 500:
		return NewClientError(KindValidationRejected, detail, status)
	default:
		return NewClientError(KindInternal, detail, status)
	}
}

// KindOf extracts the kind from an error chain, KindInternal if absent.
func KindOf(err error) ErrorKind {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Kind == kind
}

// Retriable reports whether the user may usefully re-trigger the action.
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindNetworkUnavailable, KindInternal:
		return true
	default:
		return false
	}
}
