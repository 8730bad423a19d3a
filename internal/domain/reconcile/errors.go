package reconcile

import "errors"

var (
	// ErrListPending aborts a run before any item is touched.
	ErrListPending = errors.New("list pending submissions failed")

	// ErrSyncInProgress is returned when another run holds the run lock.
	ErrSyncInProgress = errors.New("sync already in progress")
)
