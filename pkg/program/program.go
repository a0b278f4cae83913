package program

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/playbooks/pkg/callstack"
	"github.com/kadirpekel/playbooks/pkg/checkpoint"
	"github.com/kadirpekel/playbooks/pkg/dispatch"
	"github.com/kadirpekel/playbooks/pkg/messaging"
	"github.com/kadirpekel/playbooks/pkg/pbasm"
	"github.com/kadirpekel/playbooks/pkg/promptbuilder"
	"github.com/kadirpekel/playbooks/pkg/registry"
)

// firstAgentID is where live agent id assignment starts, by convention.
const firstAgentID = 1000

// reservedHumanID names the person operating a session from outside the
// program's own id space; it is never assigned to a live agent.
const reservedHumanID = "human"

// defaultHumanKlass is the class a program implicitly gets when it
// declares no Human agent at all.
const defaultHumanKlass = "User"

// ProgramLoadError reports why a compiled program failed initialize().
type ProgramLoadError struct {
	Reason string
}

func (e *ProgramLoadError) Error() string { return "program: load failed: " + e.Reason }

// LLMCallerFactory builds the dispatch.LLMCaller one AI agent's
// dispatcher uses, given the live Program (so the factory can read peer
// descriptors via Program.OtherAgentDescriptors) and the agent's own
// id/klass. The concrete provider-backed implementation lives outside
// this package; this package only defines the seam.
type LLMCallerFactory func(p *Program, agentID, agentKlass string) dispatch.LLMCaller

// Program owns every agent class and live agent instance in one
// session, plus the messaging and checkpoint infrastructure they share.
type Program struct {
	SessionID string
	Compiled  *pbasm.Program

	Bus                *messaging.EventBus
	Router             *messaging.Router
	Meetings           *messaging.Registry
	Checkpoints        *checkpoint.Coordinator
	CheckpointProvider checkpoint.Provider

	dispatchCfg dispatch.Config
	llmFactory  LLMCallerFactory

	agents *registry.BaseRegistry[Agent]

	mu           sync.Mutex
	nextID       int
	klassFirst   map[string]string
	aiRun        []*AIAgent
	defaultHuman string
}

// NewProgram compiles a program from its PBASM definition and runs
// initialize(): instantiate every declared agent class, then publish
// AgentsChanged.
func NewProgram(sessionID string, compiled *pbasm.Program, provider checkpoint.Provider, llmFactory LLMCallerFactory, cfg dispatch.Config) (*Program, error) {
	p := &Program{
		SessionID:          sessionID,
		Compiled:           compiled,
		Bus:                messaging.NewEventBus(sessionID, nil),
		Meetings:           messaging.NewRegistry(),
		CheckpointProvider: provider,
		dispatchCfg:        cfg,
		llmFactory:         llmFactory,
		agents:             registry.NewBaseRegistry[Agent](),
		klassFirst:         make(map[string]string),
		nextID:             firstAgentID,
	}
	if provider != nil {
		p.Checkpoints = checkpoint.NewCoordinator(sessionID, provider)
	}
	p.Router = messaging.NewRouter(p, p.Meetings)
	p.Router.OnNewChannel = p.observeChannel

	if err := p.initialize(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Program) nextAgentID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("%d", p.nextID)
	p.nextID++
	return id
}

// initialize instantiates every declared agent class once, plus a
// default "User:Human" agent when the program declares no Human class
// at all.
func (p *Program) initialize() error {
	hasAI, hasHuman := false, false
	for _, k := range p.Compiled.Agents {
		switch k.Kind {
		case pbasm.KindAI:
			hasAI = true
		case pbasm.KindHuman:
			hasHuman = true
		}
	}
	if !hasAI {
		return &ProgramLoadError{Reason: "at least one AI agent class is required"}
	}

	for _, klass := range p.Compiled.Agents {
		if _, err := p.instantiate(klass); err != nil {
			return err
		}
	}
	if !hasHuman {
		def := pbasm.AgentKlass{Name: defaultHumanKlass, Kind: pbasm.KindHuman, Description: "the person operating this session"}
		if _, err := p.instantiate(def); err != nil {
			return err
		}
	}

	p.Bus.Publish(messaging.Event{Class: "AgentsChanged", Payload: p.AgentIDs()})
	return nil
}

func (p *Program) instantiate(klass pbasm.AgentKlass) (Agent, error) {
	return p.instantiateAs(p.nextAgentID(), klass)
}

// instantiateAs builds a live agent under a caller-chosen id — the
// normal path assigns the next sequential id; restore reuses the id a
// prior run recorded so cross-agent references in restored state stay
// valid.
func (p *Program) instantiateAs(id string, klass pbasm.AgentKlass) (Agent, error) {
	var agent Agent
	switch klass.Kind {
	case pbasm.KindAI:
		state := callstack.New()
		reg := dispatch.NewMapRegistry()
		for _, pb := range klass.Playbooks {
			reg.Register(pbasmToPlaybook(pb))
		}
		var llm dispatch.LLMCaller
		if p.llmFactory != nil {
			llm = p.llmFactory(p, id, klass.Name)
		}
		sink := newChannelSink(p, id)
		dispatcher := dispatch.NewDispatcher(klass.Name, state, reg, llm, p.Router, sink, p.Bus, p.dispatchCfg)
		var ckptMgr *checkpoint.Manager
		if p.CheckpointProvider != nil {
			ckptMgr = checkpoint.NewManager(id, p.CheckpointProvider, 0)
		}
		agent = NewAIAgent(id, klass, dispatcher, ckptMgr, p.Bus, p)
	case pbasm.KindHuman:
		agent = NewHumanAgent(id, klass.Name, klass.Description)
		p.mu.Lock()
		if p.defaultHuman == "" {
			p.defaultHuman = id
		}
		p.mu.Unlock()
	case pbasm.KindMCP:
		return nil, &ProgramLoadError{Reason: fmt.Sprintf("agent class %q: MCP agents are constructed by a host via pkg/mcpbridge, not declared in PBASM", klass.Name)}
	default:
		return nil, &ProgramLoadError{Reason: fmt.Sprintf("agent class %q: unknown kind %q", klass.Name, klass.Kind)}
	}

	if err := p.agents.Register(id, agent); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if _, ok := p.klassFirst[klass.Name]; !ok {
		p.klassFirst[klass.Name] = id
	}
	if ai, ok := agent.(*AIAgent); ok {
		p.aiRun = append(p.aiRun, ai)
	}
	p.mu.Unlock()

	return agent, nil
}

// CreateAgent instantiates one more live instance of a declared class at
// runtime.
func (p *Program) CreateAgent(klass string) (Agent, error) {
	def, ok := p.Compiled.Find(klass)
	if !ok {
		return nil, fmt.Errorf("program: unknown agent class %q", klass)
	}
	return p.instantiate(*def)
}

// defaultHumanID returns the first Human agent instantiated for this
// program, the fallback destination for a "human"/"user" Say whose
// turn wasn't triggered by any particular sender.
func (p *Program) defaultHumanID() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.defaultHuman, p.defaultHuman != ""
}

// observeChannel mirrors a channel's message and stream traffic onto
// the program's event bus, the observability spine external hosts
// subscribe to. Delivery itself still flows through the channel; the
// bus only carries the trace.
func (p *Program) observeChannel(ch *messaging.Channel) {
	ch.AddMessageObserver(func(msg *messaging.Message, senderID string) {
		p.Bus.Publish(messaging.Event{Class: "MessageSent", Payload: msg})
	})
	ch.AddStreamObserver(messaging.StreamObserver{Notify: func(evt messaging.StreamEvent) {
		var class string
		switch evt.Kind {
		case "start":
			class = "StreamStart"
		case "chunk":
			class = "StreamChunk"
		default:
			class = "StreamComplete"
		}
		p.Bus.Publish(messaging.Event{Class: class, Payload: evt})
	}})
}

// CreateMeeting registers a new meeting owned by ownerID, with a fresh
// channel under the meeting id (owner as its first participant) as the
// meeting's broadcast channel, then joins each invitee.
func (p *Program) CreateMeeting(id, ownerID string, inviteeIDs ...string) (*messaging.Meeting, error) {
	owner, ok := p.agents.Get(ownerID)
	if !ok {
		return nil, fmt.Errorf("program: unknown meeting owner %q", ownerID)
	}
	channel := messaging.NewChannel(id, owner)
	p.observeChannel(channel)
	meeting := messaging.NewMeeting(id, ownerID, channel)
	p.Meetings.Create(meeting)
	p.Bus.Publish(messaging.Event{Class: "MeetingCreated", Payload: id})

	for _, inviteeID := range inviteeIDs {
		if err := p.JoinMeeting(id, inviteeID); err != nil {
			return meeting, err
		}
	}
	return meeting, nil
}

// JoinMeeting adds attendeeID to the meeting registered under id.
func (p *Program) JoinMeeting(id, attendeeID string) error {
	meeting, ok := p.Meetings.Get(id)
	if !ok {
		return fmt.Errorf("program: unknown meeting %q", id)
	}
	attendee, ok := p.agents.Get(attendeeID)
	if !ok {
		return fmt.Errorf("program: unknown agent %q", attendeeID)
	}
	meeting.Invite(attendeeID, attendee)
	p.Bus.Publish(messaging.Event{Class: "MeetingJoined", Payload: map[string]any{"meeting": id, "attendee": attendeeID}})
	return nil
}

// Begin starts every AI agent's main loop and waits for them all to
// finish, or for ctx to be cancelled. The first agent error cancels
// the rest, mirroring the teacher's errgroup.WithContext fan-out
// (pkg/agent/workflowagent/parallel.go's runParallel).
func (p *Program) Begin(ctx context.Context) error {
	p.mu.Lock()
	agents := append([]*AIAgent{}, p.aiRun...)
	p.mu.Unlock()

	errGroup, runCtx := errgroup.WithContext(ctx)
	for _, a := range agents {
		a := a
		errGroup.Go(func() error {
			if err := a.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return errGroup.Wait()
}

// RouteMessage resolves sender/recipient and sends content through the
// shared router.
func (p *Program) RouteMessage(senderID, recipientID, content, meetingID string) error {
	return p.Router.RouteMessage(senderID, recipientID, messaging.NewTextMessage(senderID, content), meetingID)
}

// Restore loads the latest program checkpoint for this session and
// replays each agent's latest personal checkpoint into the live agents,
// reconstructing any recorded agent that no longer exists from the
// class name its checkpoint metadata carries. Agents whose call stack
// comes back non-empty resume from their suspended frame the next time
// Begin runs them. Returns nil when no program checkpoint exists;
// Restored counts the agents whose state actually replayed.
func (p *Program) Restore(ctx context.Context) (*checkpoint.RestoreResult, error) {
	if p.Checkpoints == nil {
		return nil, nil
	}
	result, err := p.Checkpoints.Restore(ctx)
	if err != nil || result == nil {
		return result, err
	}

	restored := 0
	for agentID, ck := range result.AgentCheckpoints {
		ai, ok := p.AIAgentByID(agentID)
		if !ok {
			ai, ok = p.reconstructAgent(agentID, ck)
			if !ok {
				continue
			}
		}
		ai.State.RestoreSnapshot(ck.ExecutionState)
		restored++
	}
	result.Restored = restored
	return result, nil
}

// reconstructAgent rebuilds a live AI agent for a checkpoint whose id
// no longer exists, using the class name recorded in the checkpoint's
// metadata (spec restore step: "reconstruct the agent using its
// recorded klass").
func (p *Program) reconstructAgent(agentID string, ck *checkpoint.Checkpoint) (*AIAgent, bool) {
	klassName, _ := ck.Metadata["klass"].(string)
	if klassName == "" {
		return nil, false
	}
	def, found := p.Compiled.Find(klassName)
	if !found || def.Kind != pbasm.KindAI {
		return nil, false
	}

	p.mu.Lock()
	if n, err := strconv.Atoi(agentID); err == nil && n >= p.nextID {
		p.nextID = n + 1
	}
	p.mu.Unlock()

	agent, err := p.instantiateAs(agentID, *def)
	if err != nil {
		return nil, false
	}
	ai, ok := agent.(*AIAgent)
	return ai, ok
}

// AgentIDs implements checkpoint.AgentLister.
func (p *Program) AgentIDs() []string {
	ids := make([]string, 0, p.agents.Count())
	for _, a := range p.agents.List() {
		ids = append(ids, a.ID())
	}
	sort.Strings(ids)
	return ids
}

// Agent returns the live agent registered under id, regardless of kind.
// Unlike ResolveAgent (which answers messaging's narrower Participant
// seam), this returns the full program.Agent discovery surface, which
// an LLMCaller implementation needs to read playbook bodies/triggers.
func (p *Program) Agent(id string) (Agent, bool) {
	return p.agents.Get(id)
}

// AIAgentByID returns the live AI agent registered under id, or
// ok=false if id names no agent or names a non-AI agent.
func (p *Program) AIAgentByID(id string) (*AIAgent, bool) {
	agent, ok := p.agents.Get(id)
	if !ok {
		return nil, false
	}
	ai, ok := agent.(*AIAgent)
	return ai, ok
}

// ResolveAgent implements messaging.AgentDirectory.
func (p *Program) ResolveAgent(id string) (messaging.Participant, bool) {
	agent, ok := p.agents.Get(id)
	if !ok {
		return nil, false
	}
	return agent, true
}

// ResolveKlassID implements messaging.AgentDirectory: returns the first
// live instance of klass, the convention a qualified playbook call
// resolves against.
func (p *Program) ResolveKlassID(klass string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.klassFirst[klass]
	return id, ok
}

// InvokeRemotePlaybook implements messaging.AgentDirectory: only AI
// agents support being called into.
func (p *Program) InvokeRemotePlaybook(ctx context.Context, id, name string, args []any, kwargs map[string]any) (any, error) {
	agent, ok := p.agents.Get(id)
	if !ok {
		return nil, fmt.Errorf("program: unknown agent %q", id)
	}
	ai, ok := agent.(*AIAgent)
	if !ok {
		return nil, fmt.Errorf("program: agent %q (kind %s) does not execute playbooks", id, agent.Kind())
	}
	return ai.Call(ctx, name, args, kwargs)
}

// Descriptor summarizes one agent for the prompt builder's "this agent"
// / "other agents" messages.
func (p *Program) Descriptor(agent Agent) promptbuilder.AgentDescriptor {
	return promptbuilder.AgentDescriptor{
		Klass:       agent.Klass(),
		Description: agent.Description(),
		Playbooks:   agent.Playbooks(),
	}
}

// OtherAgentDescriptors returns every live agent's descriptor except
// excludeID's own, sorted by id for deterministic prompts.
func (p *Program) OtherAgentDescriptors(excludeID string) []promptbuilder.AgentDescriptor {
	all := p.agents.List()
	sort.Slice(all, func(i, j int) bool { return all[i].ID() < all[j].ID() })

	out := make([]promptbuilder.AgentDescriptor, 0, len(all))
	for _, a := range all {
		if a.ID() == excludeID {
			continue
		}
		out = append(out, p.Descriptor(a))
	}
	return out
}

func pbasmToPlaybook(pb pbasm.Playbook) *dispatch.Playbook {
	body := pb.Steps
	if pb.Code != "" {
		body += "\n\n```python\n" + pb.Code + "\n```"
	}
	return &dispatch.Playbook{Name: pb.Name, Kind: dispatch.KindMarkdown, Body: body}
}
