package program

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kadirpekel/playbooks/pkg/dispatch"
	"github.com/kadirpekel/playbooks/pkg/messaging"
)

// meetingTargetPrefix addresses a Say at a meeting rather than a single
// participant: Say("meeting:standup-1", "...") broadcasts through the
// meeting registered under id "standup-1".
const meetingTargetPrefix = "meeting:"

func isHumanTarget(target string) bool {
	lower := strings.ToLower(target)
	return lower == "human" || lower == "user"
}

// channelSink implements dispatch.MessageSink for one AI agent, turning
// its captured Say directives into real channel/meeting/peer-agent
// traffic. A direct human target streams live, using
// dispatch.OriginFromContext to find the human who triggered the
// current turn (falling back to the program's default human when the
// turn wasn't triggered by any inbound message, e.g. a proactive
// trigger fire); every other target is delivered as a single send once
// the full Say text is known.
type channelSink struct {
	program *Program
	agentID string

	mu      sync.Mutex
	streams map[string]*messaging.Channel
}

func newChannelSink(p *Program, agentID string) *channelSink {
	return &channelSink{program: p, agentID: agentID, streams: make(map[string]*messaging.Channel)}
}

func (s *channelSink) agentKlass() string {
	if a, ok := s.program.Agent(s.agentID); ok {
		return a.Klass()
	}
	return ""
}

func (s *channelSink) humanKlass(id string) string {
	if a, ok := s.program.Agent(id); ok {
		return a.Klass()
	}
	return ""
}

// resolveHumanID finds the human a "human"/"user" Say target refers to:
// whoever's message is driving the current turn, or the program's
// default human if the turn has no originating sender.
func (s *channelSink) resolveHumanID(ctx context.Context) (string, bool) {
	if id, ok := dispatch.OriginFromContext(ctx); ok {
		if agent, ok := s.program.Agent(id); ok && agent.Kind() == KindHuman {
			return id, true
		}
	}
	return s.program.defaultHumanID()
}

func (s *channelSink) nextStreamID(humanID string) string {
	return s.agentID + "-" + humanID + "-say-" + uuid.New().String()
}

// IsStreamable reports true only for a direct human target: meeting and
// peer-agent Says are delivered in one shot, once the full text is
// known, rather than mirrored chunk by chunk.
func (s *channelSink) IsStreamable(ctx context.Context, target string) bool {
	if !isHumanTarget(target) {
		return false
	}
	_, ok := s.resolveHumanID(ctx)
	return ok
}

func (s *channelSink) StartStream(ctx context.Context, target string) string {
	if !isHumanTarget(target) {
		return ""
	}
	humanID, ok := s.resolveHumanID(ctx)
	if !ok {
		return ""
	}
	ch, err := s.program.Router.Channel(s.agentID, humanID)
	if err != nil {
		return ""
	}
	streamID := s.nextStreamID(humanID)
	ch.StartStream(streamID, s.agentID, s.agentKlass(), humanID, s.humanKlass(humanID))

	s.mu.Lock()
	s.streams[streamID] = ch
	s.mu.Unlock()
	return streamID
}

func (s *channelSink) StreamChunk(ctx context.Context, streamID, chunk string) {
	if streamID == "" {
		return
	}
	s.mu.Lock()
	ch, ok := s.streams[streamID]
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = ch.StreamChunk(streamID, chunk)
}

func (s *channelSink) FinishStream(ctx context.Context, streamID, target, message string) {
	if streamID != "" {
		s.mu.Lock()
		ch, ok := s.streams[streamID]
		delete(s.streams, streamID)
		s.mu.Unlock()
		if ok {
			humanID, _ := s.resolveHumanID(ctx)
			final := messaging.NewDirectMessage(s.agentID, s.agentKlass(), humanID, s.humanKlass(humanID), message)
			_ = ch.CompleteStream(streamID, final, s.agentID)
			return
		}
	}
	s.deliverOnce(ctx, target, message)
}

// deliverOnce sends one completed Say to its destination without any
// streaming: a human target gets a direct channel send, a meeting
// target fans out through Meeting.BroadcastSay (which applies per-human
// streaming preferences of its own), and anything else is resolved as a
// peer agent class name and routed as a normal cross-agent message.
func (s *channelSink) deliverOnce(ctx context.Context, target, message string) {
	switch {
	case isHumanTarget(target):
		humanID, ok := s.resolveHumanID(ctx)
		if !ok {
			return
		}
		ch, err := s.program.Router.Channel(s.agentID, humanID)
		if err != nil {
			return
		}
		ch.Send(messaging.NewDirectMessage(s.agentID, s.agentKlass(), humanID, s.humanKlass(humanID), message), s.agentID)

	case strings.HasPrefix(target, meetingTargetPrefix):
		id := strings.TrimPrefix(target, meetingTargetPrefix)
		meeting, ok := s.program.Meetings.Get(id)
		if !ok {
			return
		}
		meeting.BroadcastSay(s.agentID, s.agentKlass(), message)

	default:
		if peerID, ok := s.program.ResolveKlassID(target); ok {
			_ = s.program.RouteMessage(s.agentID, peerID, message, "")
		}
	}
}
