package program

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kadirpekel/playbooks/pkg/callstack"
	"github.com/kadirpekel/playbooks/pkg/checkpoint"
	"github.com/kadirpekel/playbooks/pkg/dispatch"
	"github.com/kadirpekel/playbooks/pkg/messaging"
	"github.com/kadirpekel/playbooks/pkg/pbasm"
	"github.com/kadirpekel/playbooks/pkg/promptbuilder"
)

// callRequest is one peer's synchronous execute_playbook call into this
// agent, carried over a channel so the call never mutates State from
// outside the owning goroutine.
type callRequest struct {
	ctx    context.Context
	name   string
	args   []any
	kwargs map[string]any
	reply  chan callReply
}

type callReply struct {
	result any
	err    error
}

// AIAgent is the only agent kind that runs the interpreter loop: it owns
// its execution state, dispatcher, and inbox, and drives itself to
// completion in its own goroutine.
type AIAgent struct {
	id          string
	klass       string
	description string
	triggers    map[string][]string
	signatures  []promptbuilder.PlaybookSignature

	Inbox      *messaging.AsyncMessageQueue
	State      *callstack.State
	Dispatcher *dispatch.Dispatcher
	Checkpoint *checkpoint.Manager
	Events     *messaging.EventBus
	Program    *Program

	calls chan *callRequest

	mu       sync.Mutex
	finished bool
}

// NewAIAgent wires one AI agent's execution state, dispatcher, and inbox
// around the playbooks declared for klass in the compiled program.
func NewAIAgent(id string, klass pbasm.AgentKlass, dispatcher *dispatch.Dispatcher, ckpt *checkpoint.Manager, events *messaging.EventBus, prog *Program) *AIAgent {
	triggers := make(map[string][]string, len(klass.Playbooks))
	sigs := make([]promptbuilder.PlaybookSignature, 0, len(klass.Playbooks))
	for _, pb := range klass.Playbooks {
		triggers[pb.Name] = pb.Triggers
		sigs = append(sigs, promptbuilder.PlaybookSignature{
			Name:          pb.Name,
			ArgsSignature: pb.ArgsSignature,
			ReturnType:    pb.ReturnType,
		})
	}
	return &AIAgent{
		id:          id,
		klass:       klass.Name,
		description: klass.Description,
		triggers:    triggers,
		signatures:  sigs,
		Inbox:       messaging.NewAsyncMessageQueue(),
		State:       dispatcher.State,
		Dispatcher:  dispatcher,
		Checkpoint:  ckpt,
		Events:      events,
		Program:     prog,
		calls:       make(chan *callRequest),
	}
}

// PlaybookBody returns the markdown/code source registered for name,
// for an LLMCaller to render as the prompt's AGENT_INSTRUCTIONS.
func (a *AIAgent) PlaybookBody(name string) (string, bool) {
	pb, ok := a.Dispatcher.Registry.Get(name)
	if !ok {
		return "", false
	}
	return pb.Body, true
}

// TriggerList flattens every declared playbook's trigger phrases into
// "Playbook: trigger1, trigger2" lines for the prompt's optional
// trigger-instructions message.
func (a *AIAgent) TriggerList() []string {
	lines := make([]string, 0, len(a.signatures))
	for _, sig := range a.signatures {
		trigs := a.triggers[sig.Name]
		if len(trigs) == 0 {
			continue
		}
		lines = append(lines, sig.Name+": "+strings.Join(trigs, ", "))
	}
	return lines
}

func (a *AIAgent) ID() string                                   { return a.id }
func (a *AIAgent) Klass() string                                { return a.klass }
func (a *AIAgent) Kind() Kind                                   { return KindAI }
func (a *AIAgent) Description() string                          { return a.description }
func (a *AIAgent) Playbooks() []promptbuilder.PlaybookSignature { return a.signatures }

// Deliver queues msg for this agent's main loop to observe; the loop is
// the only reader, keeping State mutation confined to one goroutine.
func (a *AIAgent) Deliver(msg *messaging.Message) {
	_ = a.Inbox.Put(msg, false)
}

// Finished reports whether this agent's main loop has returned.
func (a *AIAgent) Finished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finished
}

// Call sends a synchronous execute_playbook request into this agent's
// own loop goroutine and waits for the reply. This is how
// Program.InvokeRemotePlaybook reaches an AI agent without ever
// mutating its State from the caller's goroutine.
func (a *AIAgent) Call(ctx context.Context, name string, args []any, kwargs map[string]any) (any, error) {
	req := &callRequest{ctx: ctx, name: name, args: args, kwargs: kwargs, reply: make(chan callReply, 1)}
	select {
	case a.calls <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case rep := <-req.reply:
		return rep.result, rep.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run drives this agent's main loop until it finishes or ctx is
// cancelled: await a message or trigger, select a playbook, dispatch,
// post-execute. A frame already on the call stack (left by a prior
// Suspended result, e.g. after a checkpoint restore) is resumed before
// anything new is awaited.
func (a *AIAgent) Run(ctx context.Context) error {
	inboxCtx, cancelInbox := context.WithCancel(ctx)
	defer cancelInbox()

	inboxCh := make(chan *messaging.Message)
	go a.pumpInbox(inboxCtx, inboxCh)

	if a.State.CallStack.Peek() != nil {
		done, err := a.resumeLoop(ctx, "")
		if err != nil {
			return err
		}
		if done {
			a.markFinished()
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-a.calls:
			a.serveCall(req)

		case msg, ok := <-inboxCh:
			if !ok {
				return nil
			}
			done, err := a.handleMessage(ctx, msg)
			if err != nil {
				return err
			}
			if done {
				a.markFinished()
				return nil
			}
		}
	}
}

func (a *AIAgent) serveCall(req *callRequest) {
	result, err := a.Dispatcher.ExecutePlaybook(req.ctx, req.name, req.args, req.kwargs)
	if suspended, ok := err.(*dispatch.Suspended); ok {
		// The callee yielded mid-call; chained cross-agent suspension has
		// no resumable handle here, so the caller sees a failed call
		// instead (a documented scope simplification).
		req.reply <- callReply{err: fmt.Errorf("program: remote playbook %q suspended mid-call: %w", req.name, suspended)}
		return
	}
	req.reply <- callReply{result: result, err: err}
}

func (a *AIAgent) markFinished() {
	a.mu.Lock()
	a.finished = true
	a.mu.Unlock()
}

// pumpInbox forwards blocking Inbox.Get reads onto a channel so Run's
// select can multiplex them against cross-agent calls.
func (a *AIAgent) pumpInbox(ctx context.Context, out chan<- *messaging.Message) {
	defer close(out)
	for {
		msg, err := a.Inbox.Get(ctx, nil)
		if err != nil {
			return
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage drives one inbound-message turn. A frame left suspended
// by a prior Yield is resumed with the message attached as its awaited
// input; otherwise the playbook whose triggers match msg's text is
// dispatched, replying to msg's sender with whatever the playbook
// returns. No trigger match is a no-op turn, not a failure.
func (a *AIAgent) handleMessage(ctx context.Context, msg *messaging.Message) (done bool, err error) {
	ctx = dispatch.WithOrigin(ctx, msg.SenderID)

	if a.State.CallStack.Peek() != nil {
		a.State.CallStack.AddLLMMessage(callstack.NewLLMMessage(callstack.MessageKindUserInput, msg.Text()))
		return a.resumeLoop(ctx, msg.SenderID)
	}

	name, ok := a.selectPlaybook(msg.Text())
	if !ok {
		return false, nil
	}
	return a.dispatchAndCheckpoint(ctx, name, []any{msg.Text()}, nil, msg.SenderID)
}

// postReply routes a playbook's return value back to the sender whose
// message triggered it. A nil result or an unset replyTo (e.g. a
// proactive trigger fire with no inbound sender) is a no-op.
func (a *AIAgent) postReply(replyTo string, result any) {
	if a.Program == nil || replyTo == "" || result == nil {
		return
	}
	text, ok := result.(string)
	if !ok {
		text = fmt.Sprintf("%v", result)
	}
	_ = a.Program.RouteMessage(a.id, replyTo, text, "")
}

// resumeLoop continues a frame left on the call stack by a prior
// Suspended result, routing the playbook's eventual return value back to
// replyTo (empty for a restore-time resume with no awaiting sender).
func (a *AIAgent) resumeLoop(ctx context.Context, replyTo string) (done bool, err error) {
	result, err := a.Dispatcher.Resume(ctx)
	if suspended, ok := err.(*dispatch.Suspended); ok {
		return a.handleSuspension(ctx, suspended)
	}
	if err != nil {
		return true, err
	}
	a.postReply(replyTo, result)
	return a.afterDispatch(ctx)
}

// selectPlaybook matches text against every declared playbook's trigger
// phrases; first match in declaration order wins (declaration order is
// the simplest deterministic tie-break).
func (a *AIAgent) selectPlaybook(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, sig := range a.signatures {
		for _, trig := range a.triggers[sig.Name] {
			if trig == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(trig)) {
				return sig.Name, true
			}
		}
	}
	return "", false
}

func (a *AIAgent) dispatchAndCheckpoint(ctx context.Context, name string, args []any, kwargs map[string]any, replyTo string) (done bool, err error) {
	result, err := a.Dispatcher.ExecutePlaybook(ctx, name, args, kwargs)
	if suspended, ok := err.(*dispatch.Suspended); ok {
		return a.handleSuspension(ctx, suspended)
	}
	if err != nil {
		return true, err
	}
	a.postReply(replyTo, result)
	return a.afterDispatch(ctx)
}

// handleSuspension saves a checkpoint before resurfacing a Yield/exit
// suspension; callers must persist a checkpoint before surfacing a
// Suspended result.
func (a *AIAgent) handleSuspension(ctx context.Context, suspended *dispatch.Suspended) (done bool, err error) {
	a.saveCheckpoint(ctx, "suspend")
	if suspended.Result != nil && suspended.Result.ExitProgram {
		return true, nil
	}
	return false, nil
}

func (a *AIAgent) afterDispatch(ctx context.Context) (done bool, err error) {
	a.saveCheckpoint(ctx, "complete")
	return false, nil
}

func (a *AIAgent) saveCheckpoint(ctx context.Context, statement string) {
	if a.Checkpoint == nil {
		return
	}
	frame := a.State.CallStack.Peek()
	var locals map[string]any
	if frame != nil {
		locals = frame.Locals
	}
	_, _ = a.Checkpoint.SaveCheckpoint(ctx, checkpoint.Snapshot{
		Statement:      statement,
		Namespace:      locals,
		ExecutionState: a.State.Snapshot(),
		Extra:          map[string]any{"klass": a.klass},
	})
	if a.Program != nil && a.Program.Checkpoints != nil {
		_, _ = a.Program.Checkpoints.SaveProgramCheckpoint(ctx, a.Program)
	}
}
