package messaging

import (
	"fmt"
	"sort"
	"sync"
)

// Participant is anything a Channel can deliver a Message to — an AI
// agent, a human, or an MCP collaborator.
type Participant interface {
	ID() string
	Deliver(msg *Message)
}

// StreamEvent is one of StreamStart/StreamChunk/StreamComplete, carried
// to stream observers with per-human target filtering. AllowedRecipients,
// when non-nil, restricts delivery to observers whose TargetHumanID is a
// key in the map (used for meeting fan-out, where more than one human
// may be allowed to see a stream); nil means unrestricted by this field,
// falling back to the single-recipient RecipientID check.
type StreamEvent struct {
	Kind              string // "start", "chunk", "complete"
	StreamID          string
	SenderID          string
	SenderKlass       string
	RecipientID       string
	RecipientKlass    string
	Chunk             string
	FinalMessage      *Message
	AllowedRecipients map[string]bool
}

// StreamObserver receives StreamEvents; TargetHumanID, when non-empty,
// restricts delivery to events whose RecipientID matches it (or whose
// AllowedRecipients includes it), and to events with no target at all.
type StreamObserver struct {
	TargetHumanID string
	Notify        func(StreamEvent)
}

// MessageObserver is notified of every message sent on a channel, in
// subscription order.
type MessageObserver func(msg *Message, senderID string)

// streamMeta is what a Channel remembers about a stream between
// StartStream and CompleteStream, so every event for that stream carries
// consistent filtering information even though only StartStream's
// caller knows the recipient.
type streamMeta struct {
	recipientID string
	allowed     map[string]bool
}

// Channel is the destination of a send: a direct peer-to-peer channel
// or a meeting's broadcast channel.
type Channel struct {
	ID string

	mu               sync.Mutex
	participants     map[string]Participant
	messageObservers []MessageObserver
	streamObservers  []StreamObserver
	activeStreams    map[string]streamMeta
}

// NewChannel returns a channel seeded with participants.
func NewChannel(id string, participants ...Participant) *Channel {
	c := &Channel{
		ID:            id,
		participants:  make(map[string]Participant),
		activeStreams: make(map[string]streamMeta),
	}
	for _, p := range participants {
		c.participants[p.ID()] = p
	}
	return c
}

// Send delivers message to every participant other than senderID and
// notifies every message observer, in subscription order.
func (c *Channel) Send(message *Message, senderID string) {
	c.mu.Lock()
	targets := make([]Participant, 0, len(c.participants))
	for id, p := range c.participants {
		if id != senderID {
			targets = append(targets, p)
		}
	}
	// Deterministic delivery order for reproducible tests/checkpointing.
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID() < targets[j].ID() })
	observers := append([]MessageObserver{}, c.messageObservers...)
	c.mu.Unlock()

	for _, p := range targets {
		p.Deliver(message)
	}
	for _, obs := range observers {
		obs(message, senderID)
	}
}

// AddParticipant adds or replaces a participant.
func (c *Channel) AddParticipant(p Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participants[p.ID()] = p
}

// RemoveParticipant removes a participant by id.
func (c *Channel) RemoveParticipant(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.participants, id)
}

// GetParticipant looks up a participant by id.
func (c *Channel) GetParticipant(id string) (Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.participants[id]
	return p, ok
}

// AddMessageObserver subscribes fn; duplicate function values cannot be
// detected (Go has no function equality), so the spec's
// idempotent-duplicate-subscription guarantee is honored at the
// call-site layer (program.go subscribes each observer at most once per
// identity it tracks) rather than here.
func (c *Channel) AddMessageObserver(fn MessageObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageObservers = append(c.messageObservers, fn)
}

// AddStreamObserver subscribes a stream observer.
func (c *Channel) AddStreamObserver(obs StreamObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamObservers = append(c.streamObservers, obs)
}

// StartStream emits a StreamStart to every matching observer and
// activates streamID for a single recipient.
func (c *Channel) StartStream(streamID, senderID, senderKlass, recipientID, recipientKlass string) string {
	return c.startStream(streamID, senderID, senderKlass, recipientID, recipientKlass, nil)
}

// StartStreamFiltered behaves like StartStream but restricts delivery to
// stream observers whose TargetHumanID is a key of allowed — the
// per-human meeting delivery preference case, where more than one human
// may be watching the same stream and others must not see it. A nil or
// empty allowed means no observer with a TargetHumanID sees the stream.
func (c *Channel) StartStreamFiltered(streamID, senderID, senderKlass string, allowed map[string]bool) string {
	if allowed == nil {
		allowed = map[string]bool{}
	}
	return c.startStream(streamID, senderID, senderKlass, "", "", allowed)
}

func (c *Channel) startStream(streamID, senderID, senderKlass, recipientID, recipientKlass string, allowed map[string]bool) string {
	meta := streamMeta{recipientID: recipientID, allowed: allowed}
	c.mu.Lock()
	c.activeStreams[streamID] = meta
	c.mu.Unlock()

	c.notifyStream(StreamEvent{
		Kind: "start", StreamID: streamID, SenderID: senderID, SenderKlass: senderKlass,
		RecipientID: recipientID, RecipientKlass: recipientKlass, AllowedRecipients: allowed,
	})
	return streamID
}

// StreamChunk emits a StreamChunk for an active stream, carrying the
// same recipient filtering the stream was started with.
func (c *Channel) StreamChunk(streamID, chunk string) error {
	meta, ok := c.streamMeta(streamID)
	if !ok {
		return fmt.Errorf("messaging: stream %q is not active", streamID)
	}
	c.notifyStream(StreamEvent{
		Kind: "chunk", StreamID: streamID, Chunk: chunk,
		RecipientID: meta.recipientID, AllowedRecipients: meta.allowed,
	})
	return nil
}

// CompleteStream emits StreamComplete, delivers finalMessage as a normal
// send, and deactivates the stream.
func (c *Channel) CompleteStream(streamID string, finalMessage *Message, senderID string) error {
	meta, ok := c.streamMeta(streamID)
	if !ok {
		return fmt.Errorf("messaging: stream %q is not active", streamID)
	}
	c.notifyStream(StreamEvent{
		Kind: "complete", StreamID: streamID, FinalMessage: finalMessage,
		RecipientID: meta.recipientID, AllowedRecipients: meta.allowed,
	})

	c.mu.Lock()
	delete(c.activeStreams, streamID)
	c.mu.Unlock()

	c.Send(finalMessage, senderID)
	return nil
}

func (c *Channel) streamMeta(streamID string) (streamMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.activeStreams[streamID]
	return m, ok
}

func (c *Channel) notifyStream(evt StreamEvent) {
	c.mu.Lock()
	observers := append([]StreamObserver{}, c.streamObservers...)
	c.mu.Unlock()

	for _, obs := range observers {
		if obs.TargetHumanID == "" {
			obs.Notify(evt)
			continue
		}
		if evt.AllowedRecipients != nil {
			if evt.AllowedRecipients[obs.TargetHumanID] {
				obs.Notify(evt)
			}
			continue
		}
		if evt.RecipientID != "" && evt.RecipientID != obs.TargetHumanID {
			continue
		}
		obs.Notify(evt)
	}
}
