package entity

import "errors"

var (
	// ErrNotFound is returned when no item in the current snapshot matches
	// the requested category and identifier.
	ErrNotFound = errors.New("entity: not found")

	// ErrUnsupportedAction is returned when the category does not accept
	// the requested action.
	ErrUnsupportedAction = errors.New("entity: unsupported action")

	// ErrInvalidCommand is returned for malformed command arguments.
	ErrInvalidCommand = errors.New("entity: invalid command")
)
