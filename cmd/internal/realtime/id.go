package realtime

import (
	"time"

	"frontdesk/cmd/identity/ids"
)

// newConnID returns a ULID identifying one connection attempt in logs.
func newConnID(now time.Time) string {
	id, err := ids.New(now)
	if err != nil {
		return now.UTC().Format("20060102T150405.000")
	}
	return id
}
