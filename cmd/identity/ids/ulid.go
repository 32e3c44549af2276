// Package ids provides ULID generation for client-side records (notifications, connection attempts).
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a new ULID string (26 chars) stamped with now.
// IDs minted within the same millisecond are strictly increasing, so two notifications
// received back to back never collide and sort in arrival order.
func New(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Time extracts the millisecond timestamp encoded in a ULID string.
func Time(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
