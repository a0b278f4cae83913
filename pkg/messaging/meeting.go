package messaging

import (
	"sync"

	"github.com/google/uuid"
)

// HumanParticipant is implemented by participants that carry per-human
// delivery preferences. BroadcastSay consults it to decide which
// attendees see a meeting Say streamed to them in real time.
type HumanParticipant interface {
	Participant
	DeliveryPrefs() DeliveryPreferences
}

// Meeting is a multi-party conversation created by an AI agent via the
// CreateMeeting operation. The owner's channel is reused as the
// meeting's broadcast channel; attendees are tracked separately so
// Broadcast can fan out to everyone but the sender.
type Meeting struct {
	ID        string
	OwnerID   string
	Channel   *Channel
	Attendees map[string]bool

	mu sync.Mutex
}

// NewMeeting creates a meeting owned by ownerID, using channel as its
// broadcast channel.
func NewMeeting(id, ownerID string, channel *Channel) *Meeting {
	return &Meeting{ID: id, OwnerID: ownerID, Channel: channel, Attendees: make(map[string]bool)}
}

// Invite adds attendeeID to the meeting. Callers are responsible for
// also recording the membership in the owner's owned_meetings and the
// attendee's joined_meetings.
func (m *Meeting) Invite(attendeeID string, participant Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attendees[attendeeID] = true
	m.Channel.AddParticipant(participant)
}

// Broadcast fans a message out to every attendee except senderID.
func (m *Meeting) Broadcast(message *Message, senderID string) {
	m.Channel.Send(message, senderID)
}

func (m *Meeting) nextStreamID(senderID string) string {
	return m.ID + "-" + senderID + "-say-" + uuid.New().String()
}

// BroadcastSay delivers one Say directed at this meeting: every
// attendee receives the final message through the normal channel send
// (CompleteStream's own delivery), and the subset of human attendees
// whose DeliveryPreferences pass ShouldStreamMeetingMessage for this
// text also see it mirrored through StreamStart/StreamChunk/
// StreamComplete, so a human watching the meeting live sees the Say as
// it lands rather than only once CompleteStream runs.
func (m *Meeting) BroadcastSay(senderID, senderKlass, message string) {
	m.mu.Lock()
	attendees := make([]string, 0, len(m.Attendees))
	for id := range m.Attendees {
		attendees = append(attendees, id)
	}
	m.mu.Unlock()

	allowed := make(map[string]bool)
	for _, id := range attendees {
		p, ok := m.Channel.GetParticipant(id)
		if !ok {
			continue
		}
		human, ok := p.(HumanParticipant)
		if !ok {
			continue
		}
		if human.DeliveryPrefs().ShouldStreamMeetingMessage("", id, message) {
			allowed[id] = true
		}
	}

	streamID := m.nextStreamID(senderID)
	m.Channel.StartStreamFiltered(streamID, senderID, senderKlass, allowed)
	_ = m.Channel.StreamChunk(streamID, message)
	_ = m.Channel.CompleteStream(streamID, NewMeetingMessage(senderID, senderKlass, m.ID, message), senderID)
}

// Registry is the per-program lookup of meetings by id.
type Registry struct {
	mu       sync.Mutex
	meetings map[string]*Meeting
}

// NewRegistry returns an empty meeting registry.
func NewRegistry() *Registry {
	return &Registry{meetings: make(map[string]*Meeting)}
}

// Create registers a new meeting.
func (r *Registry) Create(m *Meeting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meetings[m.ID] = m
}

// Get looks up a meeting by id.
func (r *Registry) Get(id string) (*Meeting, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[id]
	return m, ok
}
