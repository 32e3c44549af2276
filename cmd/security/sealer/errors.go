package sealer

import "errors"

// Public, stable errors for callers.
var (
	ErrKeyMissing  = errors.New("credential key missing")
	ErrKeyTooShort = errors.New("credential key too short")
	ErrNotSealed   = errors.New("data is not sealed")
	ErrOpen        = errors.New("sealed data could not be opened")
)
