package api

import (
	"errors"
	"fmt"
	"net/http"

	"misl/internal/model"
)

// Error classes. Every error returned by Client matches exactly one of them
// with errors.Is.
var (
	ErrAccessDenied       = errors.New("access denied")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("entry conflict")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNetworkUnavailable = errors.New("network unavailable")
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Op     string
	Status int
	Body   model.ErrorBody
}

func (e *StatusError) Error() string {
	msg := e.Body.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Body.Reason != "" {
		return fmt.Sprintf("%s: %d %s (%s)", e.Op, e.Status, msg, e.Body.Reason)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, msg)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized, e.Status == http.StatusForbidden, e.Status == http.StatusNotFound:
		return ErrAccessDenied
	case e.Status == http.StatusBadGateway, e.Status == http.StatusGatewayTimeout:
		// A proxy answered but the list server did not.
		return ErrNetworkUnavailable
	case e.Status >= 500:
		return ErrStorageUnavailable
	case isConflictReason(e.Body.Reason):
		return ErrConflict
	default:
		return ErrValidation
	}
}

func isConflictReason(reason string) bool {
	switch reason {
	case "ItemNotFound", "ItemDataMismatch", "InvalidListType":
		return true
	}
	return false
}

// NetworkError wraps a transport failure; no answer was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	return []error{ErrNetworkUnavailable, e.Err}
}
