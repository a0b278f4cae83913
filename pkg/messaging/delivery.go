package messaging

import (
	"strings"
	"time"
)

// DeliveryChannel selects how a human participant receives messages.
type DeliveryChannel string

const (
	ChannelStreaming DeliveryChannel = "streaming"
	ChannelBuffered  DeliveryChannel = "buffered"
	ChannelCustom    DeliveryChannel = "custom"
)

// MeetingNotifications controls which meeting messages stream to a
// human participant.
type MeetingNotifications string

const (
	MeetingNotifyAll      MeetingNotifications = "all"
	MeetingNotifyTargeted MeetingNotifications = "targeted"
	MeetingNotifyNone     MeetingNotifications = "none"
)

// DeliveryPreferences governs how one human participant receives
// messages.
type DeliveryPreferences struct {
	Channel              DeliveryChannel
	StreamingEnabled     bool
	BufferMessages       bool
	BufferTimeout        time.Duration
	MeetingNotifications MeetingNotifications
	CustomHandler        func(*Message)
	Name                 string
}

// DefaultDeliveryPreferences returns the streaming-by-default settings a
// human participant gets when none are specified.
func DefaultDeliveryPreferences() DeliveryPreferences {
	p := DeliveryPreferences{
		Channel:              ChannelStreaming,
		MeetingNotifications: MeetingNotifyAll,
		BufferTimeout:        2 * time.Second,
	}
	p.Normalize()
	return p
}

// Normalize enforces the channel/streaming invariant (spec §4.5:
// "channel = 'buffered' forces streaming_enabled = false and
// buffer_messages = true; channel = 'streaming' forces
// streaming_enabled = true").
func (p *DeliveryPreferences) Normalize() {
	switch p.Channel {
	case ChannelBuffered:
		p.StreamingEnabled = false
		p.BufferMessages = true
	case ChannelStreaming:
		p.StreamingEnabled = true
	}
}

// ShouldStreamMeetingMessage decides whether a meeting message should be
// streamed to this human, given the message's recipient id (if
// targeted) and the human's own id/name.
func (p DeliveryPreferences) ShouldStreamMeetingMessage(recipientID, humanID, messageText string) bool {
	switch p.MeetingNotifications {
	case MeetingNotifyNone:
		return false
	case MeetingNotifyTargeted:
		if recipientID != "" && recipientID == humanID {
			return true
		}
		if p.Name != "" && strings.Contains(strings.ToLower(messageText), strings.ToLower(p.Name)) {
			return true
		}
		return false
	default:
		return true
	}
}
