package relay

import "errors"

var (
	// ErrNotCommandTopic is returned for messages outside the command tree.
	ErrNotCommandTopic = errors.New("relay: not a command topic")

	// ErrInvalidCommand is returned when a command body is not a JSON object.
	ErrInvalidCommand = errors.New("relay: command body must be a JSON object")
)
