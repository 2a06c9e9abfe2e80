package lock

import "errors"

// Sentinel kinds for lock errors.
var (
	ErrLocked  = errors.New("lock is held by another run")
	ErrNotHeld = errors.New("lock is no longer held")
)
