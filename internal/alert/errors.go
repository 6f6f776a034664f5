package alert

import "errors"

// ErrNoOutput is returned by Bell when it has nowhere to ring.
var ErrNoOutput = errors.New("no output writer")
