package transport

import "errors"

// Domain errors for the command transport.
var (
	// ErrThrottled is returned when the cloud answers 429 or no admission
	// token could be obtained in time. Retry after a backoff.
	ErrThrottled = errors.New("transport: throttled")

	// ErrAuthentication is returned when the cloud rejects the tokens (401/403).
	ErrAuthentication = errors.New("transport: authentication rejected")

	// ErrRequestFailed is returned for any other non-2xx status.
	ErrRequestFailed = errors.New("transport: request failed")

	// ErrTransport is returned for network level failures (DNS, connect, timeout).
	ErrTransport = errors.New("transport: network failure")

	// ErrEncode is returned when the request body cannot be marshalled.
	ErrEncode = errors.New("transport: encoding request body")
)
