package realtime

import (
	"encoding/json"
	"strings"

	"frontdesk/cmd/internal/notification"
	v1 "frontdesk/contracts/realtime/v1"
)

const (
	bookingTitle    = "Booking Confirmed"
	bookingPriority = "high"
)

func (c *Channel) dispatch(m v1.Message) {
	c.metrics.frame(m.Type)

	switch m.Type {
	case v1.TypeNotification:
		n := c.sink.Add(notificationFrom(m))
		c.log.Debug("realtime.notification", "id", n.ID, "channel", n.Channel, "type", n.Type)
	case v1.TypeBookingConfirmed:
		n := c.sink.Add(bookingNotification(m))
		c.log.Debug("realtime.notification", "id", n.ID, "channel", n.Channel, "type", n.Type)
	case v1.TypeSubscribed:
		if m.Channel != "" {
			c.acked[m.Channel] = struct{}{}
		}
	case v1.TypeUnsubscribed:
		delete(c.acked, m.Channel)
	case v1.TypePong:
		c.awaitingPong = false
		c.pong.stop()
	default:
		c.log.Debug("realtime.frame.unknown", "conn_id", c.connID, "type", m.Type)
	}
}

// notificationFrom maps a notification frame. Data is usually a NotificationData object;
// a bare JSON string is taken as the message text.
func notificationFrom(m v1.Message) notification.Notification {
	n := notification.Notification{
		Type:      v1.TypeNotification,
		Channel:   m.Channel,
		Timestamp: m.Timestamp.Time,
		Data:      m.Data,
	}
	if len(m.Data) == 0 {
		return n
	}

	var d v1.NotificationData
	if err := json.Unmarshal(m.Data, &d); err == nil {
		if d.Type != "" {
			n.Type = d.Type
		}
		n.Title = d.Title
		n.Message = d.Message
		n.Priority = d.Priority
		return n
	}
	var s string
	if json.Unmarshal(m.Data, &s) == nil {
		n.Message = s
	}
	return n
}

type bookingData struct {
	BookingReference string `json:"booking_reference"`
	GuestName        string `json:"guest_name,omitempty"`
	RoomNumber       string `json:"room_number,omitempty"`
}

// bookingNotification synthesizes the entry shown for a booking_confirmed frame.
func bookingNotification(m v1.Message) notification.Notification {
	ref := strings.TrimSpace(m.BookingReference)
	guest := strings.TrimSpace(m.GuestName)
	room := strings.TrimSpace(m.RoomNumber.String())

	var b strings.Builder
	b.WriteString("Booking ")
	b.WriteString(ref)
	b.WriteString(" confirmed")
	if guest != "" {
		b.WriteString(" for ")
		b.WriteString(guest)
	}
	if room != "" {
		b.WriteString(" (Room ")
		b.WriteString(room)
		b.WriteString(")")
	}

	data, _ := json.Marshal(bookingData{BookingReference: ref, GuestName: guest, RoomNumber: room})
	return notification.Notification{
		Type:      v1.TypeBookingConfirmed,
		Title:     bookingTitle,
		Message:   b.String(),
		Priority:  bookingPriority,
		Channel:   m.Channel,
		Timestamp: m.Timestamp.Time,
		Data:      data,
	}
}
