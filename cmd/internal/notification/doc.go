// Package notification holds the notifications received over the realtime channel.
//
// A Sink is a bounded, newest-first list with read/unread state. It is the only owner of the
// list; the realtime channel appends and UIs read and mark. Alerters (desktop popup, terminal
// bell) are best effort and never fail an Add.
package notification
