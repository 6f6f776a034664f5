package sessions

import "errors"

// Sentinel errors for the sessions package.
var (
	// ErrEmptySnapshot is returned when a snapshot file exists but has no content.
	ErrEmptySnapshot = errors.New("empty snapshot file")

	// ErrNotDirectory is returned by Watch when the target is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)
