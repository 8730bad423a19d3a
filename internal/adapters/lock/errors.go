package lock

import "errors"

var (
	// ErrLocked is returned by TryLock when another holder owns the key.
	ErrLocked = errors.New("lock already held")
	// ErrNotHeld is returned by a redis release whose token no longer matches.
	ErrNotHeld = errors.New("lock no longer held")
)
