package backend

import (
	"fmt"
	"net/http"
	"time"
)

type Kind string

const (
	KindNetwork     Kind = "network"
	KindAuth        Kind = "auth"
	KindRateLimited Kind = "rate_limited"
	KindBadRequest  Kind = "bad_request"
	KindServerError Kind = "server_error"
	KindProtocol    Kind = "protocol"
)

// Error is the single error shape the backend client surfaces. The raw
// backend body never leaves this package.
type Error struct {
	Kind       Kind
	HTTPStatus int
	Retryable  bool
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("backend %s (HTTP %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("backend %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	case status >= 400:
		return KindBadRequest
	default:
		return KindProtocol
	}
}

func statusError(status int, message string, retryAfter time.Duration) *Error {
	kind := classifyStatus(status)
	return &Error{
		Kind:       kind,
		HTTPStatus: status,
		Retryable:  kind == KindRateLimited || kind == KindServerError,
		RetryAfter: retryAfter,
		Message:    message,
	}
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Retryable: true, Message: err.Error(), Err: err}
}

func protocolError(format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Message: fmt.Sprintf(format, args...)}
}
