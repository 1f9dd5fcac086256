package model

import "errors"

// Domain errors for the model package.
var (
	// ErrValidation is returned when a payload does not satisfy the entity
	// schema, is not a JSON object, or tries to change an id.
	ErrValidation = errors.New("model: validation failed")

	// ErrIDConflict is returned when an id is already used by an entity of
	// another kind.
	ErrIDConflict = errors.New("model: id used by another entity kind")

	// ErrNoHome is returned when a patch targets the home before a snapshot
	// has been loaded.
	ErrNoHome = errors.New("model: no home loaded")
)
