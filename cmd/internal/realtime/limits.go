package realtime

import "time"

const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Outbound frames queued per connection before new frames are dropped.
	sendQueueSize = 64

	// Inbox depth of the event loop.
	inboxSize = 128
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultReconnectDelay    = 5 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultDialTimeout       = 10 * time.Second
)
