package dune

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindNotFound       ErrorKind = "not_found"
	KindRateLimited    ErrorKind = "rate_limited"
	KindClient         ErrorKind = "client"
	KindServer         ErrorKind = "server"
	KindTransport      ErrorKind = "transport"
	KindDecode         ErrorKind = "decode"
)

var (
	ErrAuthentication = errors.New("dune: authentication failed")
	ErrNotFound       = errors.New("dune: resource not found")
	ErrRateLimited    = errors.New("dune: rate limited")
	ErrClient         = errors.New("dune: request rejected")
	ErrServer         = errors.New("dune: server error")
	ErrTransport      = errors.New("dune: transport error")
	ErrDecode         = errors.New("dune: malformed response")
)

var sentinelByKind = map[ErrorKind]error{
	KindAuthentication: ErrAuthentication,
	KindNotFound:       ErrNotFound,
	KindRateLimited:    ErrRateLimited,
	KindClient:         ErrClient,
	KindServer:         ErrServer,
	KindTransport:      ErrTransport,
	KindDecode:         ErrDecode,
}

// RemoteRequestError is returned by every Client operation that reached, or
// tried to reach, the remote API. StatusCode is zero when no response arrived.
type RemoteRequestError struct {
	Operation  string
	StatusCode int
	Body       string
	Kind       ErrorKind
	Err        error
}

func (e *RemoteRequestError) Error() string {
	switch {
	case e.Kind == KindDecode:
		return fmt.Sprintf("%s response invalid status=%d: %v", e.Operation, e.StatusCode, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s request failed status=%d body=%s", e.Operation, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Operation, e.Err)
	default:
		return fmt.Sprintf("%s request failed: %s", e.Operation, e.Kind)
	}
}

func (e *RemoteRequestError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind, so callers can write
// errors.Is(err, dune.ErrAuthentication).
func (e *RemoteRequestError) Is(target error) bool {
	sentinel, ok := sentinelByKind[e.Kind]
	return ok && sentinel == target
}

func KindOf(err error) ErrorKind {
	var remoteErr *RemoteRequestError
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind
	}
	return ""
}

// IsRetryable reports whether repeating the same request may succeed.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindServer, KindTransport:
		return true
	default:
		return false
	}
}

func newStatusError(operation string, statusCode int, body []byte) *RemoteRequestError {
	return &RemoteRequestError{
		Operation:  operation,
		StatusCode: statusCode,
		Body:       strings.TrimSpace(string(body)),
		Kind:       classifyStatus(statusCode),
	}
}

func classifyStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return KindAuthentication
	case statusCode == http.StatusNotFound:
		return KindNotFound
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case statusCode >= 500:
		return KindServer
	default:
		return KindClient
	}
}
