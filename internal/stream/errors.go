package stream

import "errors"

// Domain errors for the stream connection.
var (
	// ErrStreamClosed is returned by Listen when the socket closes and
	// reconnecting is disabled.
	ErrStreamClosed = errors.New("stream: connection closed")

	// ErrAuthentication is returned when the endpoint rejects the tokens.
	ErrAuthentication = errors.New("stream: authentication rejected")

	// ErrAlreadyListening is returned when Listen is called twice on one Conn.
	ErrAlreadyListening = errors.New("stream: already listening")

	// ErrConnClosed is returned when Listen is called after Close.
	ErrConnClosed = errors.New("stream: connection has been closed")
)
