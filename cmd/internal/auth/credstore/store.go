// Package credstore persists the client's session credentials: the access token, the refresh
// token and the cached user profile. Each key is independently readable and deletable; clearing
// all three is the complete logout operation.
//
// Every backend writes a Put batch atomically, so a reader never observes a rotated access
// token paired with a stale refresh token.
package credstore

import (
	"context"
	"errors"
)

// Key names one persisted credential.
type Key string

const (
	// KeyAccessToken is the short-lived bearer token.
	KeyAccessToken Key = "access_token"
	// KeyRefreshToken is the long-lived token used to obtain new access tokens.
	KeyRefreshToken Key = "refresh_token"
	// KeyUser is the cached user profile (JSON).
	KeyUser Key = "user"
)

// AllKeys lists every key a Store holds.
var AllKeys = []Key{KeyAccessToken, KeyRefreshToken, KeyUser}

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("credstore: closed")

	// ErrSealed is returned when persisted data is sealed and no key was configured.
	ErrSealed = errors.New("credstore: credentials are sealed; set FRONTDESK_CREDENTIAL_KEY")

	// ErrCorrupt is returned when the persisted document cannot be decoded or opened.
	ErrCorrupt = errors.New("credstore: credentials document is unreadable")
)

// Store abstracts credential persistence.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key Key) (value string, ok bool, err error)

	// Put writes all given values in one atomic step.
	Put(ctx context.Context, values map[Key]string) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...Key) error

	// Close releases backend resources. Stores that do not own their client treat it as a no-op.
	Close() error
}

// Clear removes every credential from s.
func Clear(ctx context.Context, s Store) error {
	return s.Delete(ctx, AllKeys...)
}
