package manager

import "errors"

var (
	ErrNotCheckedOut  = errors.New("manager: document is not checked out")
	ErrCheckedOut     = errors.New("manager: document is already checked out")
	ErrStopped        = errors.New("manager: stopped")
	ErrSyncInProgress = errors.New("manager: sync in progress")

	// ErrInvalidated is returned by every call after a fatal transform or
	// apply error. The manager must be discarded and the document checked
	// out again.
	ErrInvalidated = errors.New("manager: state invalidated")
)
