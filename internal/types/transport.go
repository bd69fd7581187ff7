package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Method is the HTTP verb handed to a Transport.
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodDelete Method = http.MethodDelete
)

// TransportErrorKind classifies the failure modes a Transport must distinguish.
type TransportErrorKind int

const (
	Timeout TransportErrorKind = iota + 1
	ConnectionFailed
	HTTPError
	AuthRejected
)

var TransportErrorText = map[TransportErrorKind]string{
	Timeout:          "timeout",
	ConnectionFailed: "connection_failed",
	HTTPError:        "http_error",
	AuthRejected:     "auth_rejected",
}

// TransportError is the only error type a Transport returns for expected failures.
// Status and Body are set for HTTPError and AuthRejected.
type TransportError struct {
	Kind   TransportErrorKind
	Status int
	Body   []byte
	Err    error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case HTTPError, AuthRejected:
		return fmt.Sprintf("%s: status %d", TransportErrorText[e.Kind], e.Status)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", TransportErrorText[e.Kind], e.Err)
		}
		return TransportErrorText[e.Kind]
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewStatusError maps a non-2xx status to AuthRejected (401/403) or HTTPError.
func NewStatusError(status int, body []byte) *TransportError {
	kind := HTTPError
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		kind = AuthRejected
	}
	return &TransportError{Kind: kind, Status: status, Body: body}
}

// AsTransportError reports whether err carries a *TransportError.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
