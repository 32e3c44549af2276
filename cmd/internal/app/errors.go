package app

import "errors"

// ErrConfig is returned for invalid runtime configuration.
var ErrConfig = errors.New("invalid config")
