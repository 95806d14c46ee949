package coordinator

import "errors"

// Domain errors for the sync coordinator.
var (
	// ErrUpdateFailed wraps a failed poll. The previous snapshot stays valid.
	ErrUpdateFailed = errors.New("coordinator: update failed")

	// ErrStopped is returned by Poll after Shutdown.
	ErrStopped = errors.New("coordinator: stopped")

	// ErrNoLister is returned by New when no item source is configured.
	ErrNoLister = errors.New("coordinator: item lister is required")
)
