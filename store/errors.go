package store

import "errors"

var (
	// ErrEmptyIdentifier is returned when a service identifier is blank.
	ErrEmptyIdentifier = errors.New("service identifier must not be empty")
)
