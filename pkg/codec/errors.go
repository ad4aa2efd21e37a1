package codec

import "errors"

// Sentinel errors for codec operations.
var (
	// ErrInvalidSignatureLength is returned when a signature does not
	// decode to exactly 65 bytes (r, s, v).
	ErrInvalidSignatureLength = errors.New("signature must be 65 bytes")

	// ErrMissingSignature is returned when a document has no non-empty
	// "sig" field to verify.
	ErrMissingSignature = errors.New("document has no sig field")
)
