package storage

import "errors"

// Sentinel errors for the storage package.
var (
	// ErrKeyRequired is returned when Get or Set is called with an empty key.
	ErrKeyRequired = errors.New("storage key is required")

	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("storage key not found")
)
