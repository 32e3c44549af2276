package authapi

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected is returned when a 2xx response carries success:false.
	ErrRejected = errors.New("authapi: request rejected")

	// ErrMalformedResponse is returned when a response body cannot be decoded or lacks required fields.
	ErrMalformedResponse = errors.New("authapi: malformed response")
)

// StatusError represents a non-2xx HTTP response from the backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is a StatusError with the given status code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == code
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not a StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
