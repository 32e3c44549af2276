package v1

import "strings"

// Channel names. ChannelAdmin is subscribed by every authenticated staff member.
const (
	ChannelAdmin        = "admin"
	ChannelReception    = "reception"
	ChannelHousekeeping = "housekeeping"
	ChannelMaintenance  = "maintenance"
)

var roleChannels = map[string]string{
	"reception":    ChannelReception,
	"housekeeping": ChannelHousekeeping,
	"maintenance":  ChannelMaintenance,
}

// ChannelsForRole returns the subscription set for a staff role: always admin, plus the
// role's own channel when the role has one. The result is ordered with admin first.
func ChannelsForRole(role string) []string {
	out := []string{ChannelAdmin}
	if ch, ok := roleChannels[strings.ToLower(strings.TrimSpace(role))]; ok {
		out = append(out, ch)
	}
	return out
}
