package messaging

import (
	"time"

	"github.com/a2aproject/a2a-go/a2a"
)

// Type classifies how a Message reached its destination.
type Type string

const (
	TypeDirect           Type = "DIRECT"
	TypeMeetingBroadcast Type = "MEETING_BROADCAST"
	TypeBuiltin          Type = "BUILTIN"
)

// Message is one piece of cross-agent communication. Content wraps the
// a2a.Message wire representation (text/file/data parts); the rest is
// routing metadata a2a.Message itself doesn't model: who sent it and
// under what class, who (or what meeting) it was addressed to, and
// which of the three delivery shapes it took.
type Message struct {
	SenderID       string
	SenderKlass    string
	RecipientID    string
	RecipientKlass string
	MeetingID      string
	Type           Type
	Content        *a2a.Message
	CreatedAt      time.Time
}

// NewTextMessage builds a plain direct text message from senderID.
func NewTextMessage(senderID, text string) *Message {
	return &Message{
		SenderID:  senderID,
		Type:      TypeDirect,
		Content:   a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: text}),
		CreatedAt: time.Now(),
	}
}

// NewDirectMessage builds a text message fully addressed between two
// agents.
func NewDirectMessage(senderID, senderKlass, recipientID, recipientKlass, text string) *Message {
	m := NewTextMessage(senderID, text)
	m.SenderKlass = senderKlass
	m.RecipientID = recipientID
	m.RecipientKlass = recipientKlass
	return m
}

// NewMeetingMessage builds a text message addressed to a meeting rather
// than a single recipient.
func NewMeetingMessage(senderID, senderKlass, meetingID, text string) *Message {
	m := NewTextMessage(senderID, text)
	m.SenderKlass = senderKlass
	m.MeetingID = meetingID
	m.Type = TypeMeetingBroadcast
	return m
}

// NewBuiltinMessage builds a message originating from the runtime itself
// rather than from any agent (e.g. a system notice).
func NewBuiltinMessage(text string) *Message {
	m := NewTextMessage("", text)
	m.Type = TypeBuiltin
	return m
}

// Text returns the concatenation of every text part in the message.
func (m *Message) Text() string {
	if m.Content == nil {
		return ""
	}
	var out string
	for _, part := range m.Content.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			out += tp.Text
		}
	}
	return out
}
