// Package v1 defines the hotel push protocol spoken over the realtime socket.
//
// Frames are single JSON objects discriminated by "type". The package is shared by the
// realtime client and the test push server so both sides agree on the wire shape.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type constants (wire-stable).
const (
	// TypeSubscribe asks the server to start fanning out a channel (client -> server).
	TypeSubscribe = "subscribe"
	// TypeUnsubscribe stops a channel (client -> server).
	TypeUnsubscribe = "unsubscribe"
	// TypePing is the client heartbeat (client -> server).
	TypePing = "ping"

	// TypeNotification carries a pushed event for a channel (server -> client).
	TypeNotification = "notification"
	// TypeSubscribed acknowledges a subscribe (server -> client).
	TypeSubscribed = "subscribed"
	// TypeUnsubscribed acknowledges an unsubscribe (server -> client).
	TypeUnsubscribed = "unsubscribed"
	// TypePong answers a ping (server -> client).
	TypePong = "pong"
	// TypeBookingConfirmed is a flat booking event without a data object (server -> client).
	TypeBookingConfirmed = "booking_confirmed"
)

// Message is the wire frame. Only the fields relevant to Type are populated.
type Message struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`

	Timestamp Timestamp `json:"timestamp,omitzero"`

	// booking_confirmed fields.
	BookingReference string     `json:"booking_reference,omitempty"`
	GuestName        string     `json:"guest_name,omitempty"`
	RoomNumber       FlexString `json:"room_number,omitempty"`
}

// NotificationData is the conventional shape of Message.Data for notification frames.
// Servers may send more fields; they are preserved in the raw Data.
type NotificationData struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	Message  string `json:"message,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// Validate performs structural validation of an inbound frame.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Type) == "" {
		return errors.New("missing field: type")
	}
	switch m.Type {
	case TypeSubscribe, TypeUnsubscribe, TypeSubscribed, TypeUnsubscribed:
		if strings.TrimSpace(m.Channel) == "" {
			return fmt.Errorf("%s: missing field: channel", m.Type)
		}
	}
	return nil
}

// Decode parses a single frame.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, err
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Subscribe builds a subscribe frame.
func Subscribe(channel string) Message { return Message{Type: TypeSubscribe, Channel: channel} }

// Unsubscribe builds an unsubscribe frame.
func Unsubscribe(channel string) Message { return Message{Type: TypeUnsubscribe, Channel: channel} }

// Ping builds a heartbeat frame.
func Ping() Message { return Message{Type: TypePing} }

// Timestamp accepts the formats the hotel backend emits: RFC 3339, zone-less ISO 8601 and MySQL
// DATETIME (local time), RFC 1123, and unix seconds or milliseconds. Any other value decodes to
// the zero time; the timestamp never makes a frame undecodable.
type Timestamp struct {
	time.Time
}

// localLayouts carry no zone and are read in local time.
var localLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	t.Time = parseTimestamp(strings.TrimSpace(string(b)))
	return nil
}

func parseTimestamp(s string) time.Time {
	if s == "" || s == "null" {
		return time.Time{}
	}
	if s[0] != '"' {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromUnix(n)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromUnix(int64(f))
		}
		return time.Time{}
	}

	raw, err := strconv.Unquote(s)
	if err != nil {
		return time.Time{}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range zonedLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return ts
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return fromUnix(n)
	}
	return time.Time{}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func fromUnix(n int64) time.Time {
	// Anything past year 33658 in seconds is a millisecond value.
	if n > 1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

// FlexString accepts a JSON string or number (PHP backends are loose about room numbers and IDs).
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*f = ""
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = FlexString(v)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("flex string: %w", err)
		}
		*f = FlexString(n.String())
	}
	return nil
}

// String returns the plain value.
func (f FlexString) String() string { return string(f) }
