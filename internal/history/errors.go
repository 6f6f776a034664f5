package history

import "errors"

// ErrSessionRequired is returned by Record when the sample has no session ID.
var ErrSessionRequired = errors.New("session id is required")
