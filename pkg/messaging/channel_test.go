package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeParticipant struct {
	id       string
	received []*Message
}

func (p *fakeParticipant) ID() string { return p.id }
func (p *fakeParticipant) Deliver(msg *Message) {
	p.received = append(p.received, msg)
}

func TestChannelSendSkipsSender(t *testing.T) {
	alice := &fakeParticipant{id: "alice"}
	bob := &fakeParticipant{id: "bob"}
	ch := NewChannel("c1", alice, bob)

	ch.Send(NewTextMessage("alice", "hi"), "alice")

	assert.Empty(t, alice.received, "sender must not receive its own message")
	require.Len(t, bob.received, 1)
	assert.Equal(t, "hi", bob.received[0].Text())
}

func TestChannelMessageObserversNotifiedInOrder(t *testing.T) {
	ch := NewChannel("c1")
	var order []int
	ch.AddMessageObserver(func(msg *Message, sender string) { order = append(order, 1) })
	ch.AddMessageObserver(func(msg *Message, sender string) { order = append(order, 2) })

	ch.Send(NewTextMessage("alice", "hi"), "alice")
	assert.Equal(t, []int{1, 2}, order)
}

func TestChannelStreamLifecycle(t *testing.T) {
	ch := NewChannel("c1")
	var kinds []string
	ch.AddStreamObserver(StreamObserver{Notify: func(evt StreamEvent) { kinds = append(kinds, evt.Kind) }})

	ch.StartStream("s1", "alice", "", "", "")
	require.NoError(t, ch.StreamChunk("s1", "hello "))
	require.NoError(t, ch.StreamChunk("s1", "world"))
	require.NoError(t, ch.CompleteStream("s1", NewTextMessage("alice", "hello world"), "alice"))

	assert.Equal(t, []string{"start", "chunk", "chunk", "complete"}, kinds)
}

func TestChannelStreamChunkOnInvalidIDFails(t *testing.T) {
	ch := NewChannel("c1")
	err := ch.StreamChunk("missing", "x")
	assert.Error(t, err)
}

func TestChannelStreamObserverFiltersByTargetHuman(t *testing.T) {
	ch := NewChannel("c1")
	var aliceEvents, bobEvents []StreamEvent
	ch.AddStreamObserver(StreamObserver{TargetHumanID: "alice", Notify: func(e StreamEvent) { aliceEvents = append(aliceEvents, e) }})
	ch.AddStreamObserver(StreamObserver{TargetHumanID: "bob", Notify: func(e StreamEvent) { bobEvents = append(bobEvents, e) }})

	ch.StartStream("s1", "agent", "", "alice", "")
	require.NoError(t, ch.StreamChunk("s1", "for alice only"))

	assert.Len(t, aliceEvents, 2) // start + chunk
	assert.Empty(t, bobEvents, "bob's observer must not see a stream targeted at alice")
}

func TestChannelStreamObserverWithNoTargetSeesEverything(t *testing.T) {
	ch := NewChannel("c1")
	var events []StreamEvent
	ch.AddStreamObserver(StreamObserver{Notify: func(e StreamEvent) { events = append(events, e) }})

	ch.StartStream("s1", "agent", "", "alice", "")
	assert.Len(t, events, 1)
}
