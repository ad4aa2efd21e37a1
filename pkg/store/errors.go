package store

import "errors"

// Sentinel errors for object-store operations.
var (
	// ErrObjectNotFound is returned when the store answers a read with a
	// non-200 status, the IPFS HTTP API's way of saying a path or CID
	// doesn't resolve.
	ErrObjectNotFound = errors.New("object not found in store")

	// ErrAddFailed is returned when the store rejects an add (upload).
	ErrAddFailed = errors.New("store rejected add")
)
