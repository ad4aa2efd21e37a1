package epoch

import "errors"

// Sentinel errors for epoch operations.
var (
	// ErrNoActiveEpoch is returned by Seal when no epoch is currently open.
	ErrNoActiveEpoch = errors.New("no active epoch to seal")
)
