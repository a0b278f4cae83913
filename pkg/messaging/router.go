package messaging

import (
	"context"
	"fmt"
	"sync"
)

// AgentDirectory resolves agent/klass identities the router needs but
// doesn't own — implemented by pkg/program's Program, kept as an
// interface here so messaging never imports program (program imports
// messaging, not the other way around).
type AgentDirectory interface {
	// ResolveAgent returns the participant for an agent id.
	ResolveAgent(id string) (Participant, bool)
	// ResolveKlassID returns the id of a live agent registered under a
	// class name, used for qualified cross-agent playbook calls.
	ResolveKlassID(klass string) (string, bool)
	// InvokeRemotePlaybook runs name on the agent identified by id and
	// returns its result; only AI agents support this.
	InvokeRemotePlaybook(ctx context.Context, id, name string, args []any, kwargs map[string]any) (any, error)
}

// Router implements Program.route_message plus the cross-agent
// playbook-call seam dispatch.Router needs: direct/meeting routing and
// qualified-name resolution.
type Router struct {
	Directory AgentDirectory
	Meetings  *Registry

	// OnNewChannel, when set, runs once for every channel the router
	// creates — the hook a program uses to attach its event-bus
	// observers before any traffic flows.
	OnNewChannel func(*Channel)

	mu       sync.Mutex
	channels map[string]*Channel
}

// NewRouter builds a router over directory and the program's meeting
// registry.
func NewRouter(directory AgentDirectory, meetings *Registry) *Router {
	return &Router{Directory: directory, Meetings: meetings, channels: make(map[string]*Channel)}
}

// RouteMessage resolves sender/recipient, finds or creates the direct
// channel between them, and sends. A non-empty meetingID instead
// broadcasts content through that meeting.
func (r *Router) RouteMessage(senderID, recipientID string, content *Message, meetingID string) error {
	if meetingID != "" {
		meeting, ok := r.Meetings.Get(meetingID)
		if !ok {
			return fmt.Errorf("messaging: unknown meeting %q", meetingID)
		}
		meeting.Broadcast(content, senderID)
		return nil
	}

	if _, ok := r.Directory.ResolveAgent(senderID); !ok {
		return fmt.Errorf("messaging: unknown sender %q", senderID)
	}
	recipient, ok := r.Directory.ResolveAgent(recipientID)
	if !ok {
		return fmt.Errorf("messaging: unknown recipient %q", recipientID)
	}

	channel := r.directChannel(senderID, recipientID, recipient)
	channel.Send(content, senderID)
	return nil
}

// Channel returns (creating if necessary) the direct channel between
// two participants, so a host can subscribe stream/message observers
// before the first message ever flows between them.
func (r *Router) Channel(senderID, recipientID string) (*Channel, error) {
	recipient, ok := r.Directory.ResolveAgent(recipientID)
	if !ok {
		return nil, fmt.Errorf("messaging: unknown recipient %q", recipientID)
	}
	return r.directChannel(senderID, recipientID, recipient), nil
}

func (r *Router) directChannel(senderID, recipientID string, recipient Participant) *Channel {
	key := channelKey(senderID, recipientID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[key]; ok {
		return ch
	}
	parts := []Participant{recipient}
	if sender, ok := r.Directory.ResolveAgent(senderID); ok {
		parts = append(parts, sender)
	}
	ch := NewChannel(key, parts...)
	r.channels[key] = ch
	if r.OnNewChannel != nil {
		r.OnNewChannel(ch)
	}
	return ch
}

func channelKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

// CallRemotePlaybook implements dispatch.Router: resolves a peer class
// to its live agent id, invokes the playbook there over messaging, and
// awaits the result.
func (r *Router) CallRemotePlaybook(ctx context.Context, agentKlass, playbookName string, args []any, kwargs map[string]any) (any, error) {
	id, ok := r.Directory.ResolveKlassID(agentKlass)
	if !ok {
		return nil, fmt.Errorf("messaging: no live agent of class %q", agentKlass)
	}
	return r.Directory.InvokeRemotePlaybook(ctx, id, playbookName, args, kwargs)
}
