package mirror

import "errors"

// Domain errors for the synchronization engine.
var (
	// ErrUnknownEvent is recorded for an unrecognised pushEventType.
	ErrUnknownEvent = errors.New("mirror: unknown event type")

	// ErrKindConflict is returned when an added entity reuses the id of an
	// entity of another kind. The graph should be rebuilt from a snapshot.
	ErrKindConflict = errors.New("mirror: id conflicts with another entity kind")

	// ErrMalformedEnvelope is returned when a push message cannot be decoded.
	ErrMalformedEnvelope = errors.New("mirror: malformed event envelope")

	// ErrMalformedEvent is recorded for a single event that cannot be decoded.
	ErrMalformedEvent = errors.New("mirror: malformed event")

	// ErrInvalidSnapshot is returned when a snapshot has no usable home.
	ErrInvalidSnapshot = errors.New("mirror: invalid snapshot")
)
