package admission

import "errors"

// Domain errors for the admission controller.
var (
	// ErrTimeout is returned when TakeBlocking gives up waiting for tokens.
	ErrTimeout = errors.New("admission: timed out waiting for tokens")

	// ErrInvalidRequest is returned for n <= 0 or n larger than the bucket.
	ErrInvalidRequest = errors.New("admission: invalid token request")
)
