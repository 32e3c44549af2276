// Package realtime keeps the hotel push socket open for an authenticated Session.
//
// A Channel is a state machine (disconnected, connecting, connected) driven by a single event
// loop. Socket callbacks (opened, message, closed, errored), caller commands and timer
// expirations are all delivered to that loop, so no state is shared between goroutines except
// the read-only View.
//
// On connect the subscription set is derived from the user's role. A ping is sent on every
// heartbeat interval. An unexpected close schedules exactly one reconnect after a fixed delay,
// and the timer re-checks that the Session is still authenticated before dialing.
package realtime
