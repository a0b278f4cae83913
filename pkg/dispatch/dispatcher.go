package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/kadirpekel/playbooks/pkg/callstack"
	"github.com/kadirpekel/playbooks/pkg/interpreter"
	"github.com/kadirpekel/playbooks/pkg/messaging"
)

// Config carries the thresholds dispatch needs that don't belong to any
// single playbook call.
type Config struct {
	ArtifactResultThreshold int
	VariableThreshold       int
	Compression             callstack.CompressionConfig
}

// Dispatcher executes playbooks for one agent: resolving names, pushing
// and popping call-stack frames, driving the markdown execution loop,
// and applying post-execute bookkeeping.
type Dispatcher struct {
	AgentKlass string
	State      *callstack.State
	Registry   Registry
	LLM        LLMCaller
	Router     Router
	Sink       MessageSink
	Events     *messaging.EventBus

	cfg     Config
	counter int64
}

// NewDispatcher builds a dispatcher for one agent. sink and events may
// be nil (a headless dispatcher neither delivers Says anywhere nor
// publishes events, which existing tests rely on).
func NewDispatcher(agentKlass string, state *callstack.State, registry Registry, llm LLMCaller, router Router, sink MessageSink, events *messaging.EventBus, cfg Config) *Dispatcher {
	return &Dispatcher{
		AgentKlass: agentKlass,
		State:      state,
		Registry:   registry,
		LLM:        llm,
		Router:     router,
		Sink:       sink,
		Events:     events,
		cfg:        cfg,
	}
}

// nextExecutionID assigns the next monotonically increasing id used to
// gate I/P-frame emission.
func (d *Dispatcher) nextExecutionID() int {
	return int(atomic.AddInt64(&d.counter, 1))
}

// publish is a nil-safe shorthand for Events.Publish.
func (d *Dispatcher) publish(class string, payload any) {
	if d.Events == nil {
		return
	}
	d.Events.Publish(messaging.Event{Class: class, Payload: payload})
}

// ExecutePlaybook resolves name (local or "OtherAgentKlass.Foo") and
// runs it, returning the playbook's result after post-execute
// bookkeeping has run.
func (d *Dispatcher) ExecutePlaybook(ctx context.Context, name string, args []any, kwargs map[string]any) (any, error) {
	if klass, local, ok := splitQualified(name); ok && klass != d.AgentKlass {
		if d.Router == nil {
			return nil, fmt.Errorf("dispatch: no router configured for cross-agent call %q", name)
		}
		return d.Router.CallRemotePlaybook(ctx, klass, local, args, kwargs)
	}

	local := name
	if _, l, ok := splitQualified(name); ok {
		local = l
	}

	pb, ok := d.Registry.Get(local)
	if !ok {
		return nil, &ErrPlaybookNotFound{Name: name}
	}

	locals := bindArgs(pb, args, kwargs)
	frame := callstack.NewFrame(pb.Name, locals)
	d.State.PushFrame(frame)
	d.publish("PlaybookStart", pb.Name)
	d.publish("CallStackPush", pb.Name)

	var result any
	var err error
	switch pb.Kind {
	case KindPython:
		result, err = pb.Run(ctx, args, kwargs)
	default:
		result, err = d.runMarkdown(ctx, pb, frame)
	}

	if suspended, ok := err.(*Suspended); ok {
		// The playbook yielded mid-execution; its frame stays on the call
		// stack so resuming continues from the same instruction pointer.
		// No post-execute bookkeeping runs until it actually finishes.
		return nil, suspended
	}

	poppedFrame, popErr := d.State.PopFrame()
	if popErr != nil {
		return nil, popErr
	}
	d.publish("CallStackPop", pb.Name)
	d.publish("PlaybookEnd", pb.Name)

	return d.postExecute(poppedFrame, pb, result, err)
}

func splitQualified(name string) (klass, local string, ok bool) {
	dot := strings.IndexByte(name, '.')
	if dot < 0 {
		return "", name, false
	}
	return name[:dot], name[dot+1:], true
}

func bindArgs(pb *Playbook, args []any, kwargs map[string]any) map[string]any {
	locals := make(map[string]any, len(kwargs)+len(args))
	for k, v := range kwargs {
		locals[k] = v
	}
	for i, v := range args {
		locals[fmt.Sprintf("arg%d", i)] = v
	}
	return locals
}

// Resume continues the playbook whose frame a prior Suspended result left
// on top of the call stack, once the agent's awaited message or trigger
// has arrived. It is a caller error to call Resume with no frame on the
// stack.
func (d *Dispatcher) Resume(ctx context.Context) (any, error) {
	frame := d.State.CallStack.Peek()
	if frame == nil {
		return nil, fmt.Errorf("dispatch: resume with no suspended playbook frame")
	}
	pb, ok := d.Registry.Get(frame.IP.PlaybookName)
	if !ok {
		return nil, &ErrPlaybookNotFound{Name: frame.IP.PlaybookName}
	}

	result, err := d.runMarkdown(ctx, pb, frame)
	if suspended, ok := err.(*Suspended); ok {
		return nil, suspended
	}

	poppedFrame, popErr := d.State.PopFrame()
	if popErr != nil {
		return nil, popErr
	}
	d.publish("CallStackPop", pb.Name)
	d.publish("PlaybookEnd", pb.Name)
	return d.postExecute(poppedFrame, pb, result, err)
}

// runMarkdown drives one markdown playbook's LLM-interpreted execution
// loop: stream completion chunks into the interpreter, apply captured
// directives, and either continue (another LLM call) or stop once a
// continuation flag or terminal error is reached. Captured Say
// directives are mirrored to their destination as they are generated
// (human targets, via sayBridge's real-time stream) and once the
// statement completes (every target, via applyResult).
func (d *Dispatcher) runMarkdown(ctx context.Context, pb *Playbook, frame *callstack.Frame) (any, error) {
	// A syntax or runtime failure in one LLM call's generated code
	// terminates that call and surfaces as an execution-result message on
	// the next prompt; the playbook is not unwound, so the model gets a
	// chance to self-correct. A model that fails this many turns in a row
	// is not going to recover, and the failure propagates to the caller.
	const maxConsecutiveErrors = 3
	consecutiveErrors := 0

	for {
		executionID := d.nextExecutionID()

		stream, err := d.LLM.StreamCompletion(ctx, executionID, d.State, frame)
		if err != nil {
			return nil, err
		}

		ns := interpreter.NewNamespace(frame, nil, frame.Locals, &invokerAdapter{d: d})
		exec := interpreter.NewExecutor(ns)
		bridge := newSayBridge(ctx, d.Sink)

		var result *interpreter.ExecutionResult
		var execErr error
		for chunk := range stream {
			text := interpreter.StripFences(chunk.Text)
			result, execErr = exec.Feed(ctx, text, bridge)
			if execErr != nil || result.Continuations() > 0 {
				break
			}
		}
		// Discard whatever the provider is still streaming once execution
		// stopped early; leaving the channel unread would strand its relay
		// goroutine until the session's context ends.
		for range stream {
		}

		if result == nil {
			result = interpreter.NewExecutionResult()
		}
		if execErr == nil && result.Continuations() == 0 {
			execErr = exec.Finish()
		}

		// Directives captured before a failure still count.
		d.applyResult(ctx, frame, result, bridge)

		errMsg := ""
		if execErr != nil {
			errMsg = execErr.Error()
		} else if result.WaitForAgentInput &&
			strings.TrimSpace(result.WaitForAgentTarget) == "meeting current" &&
			frame.MeetingID == "" {
			errMsg = `Yield("meeting current") outside any meeting`
		}
		if errMsg != "" {
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				if execErr != nil {
					return nil, execErr
				}
				return nil, fmt.Errorf("dispatch: %s", errMsg)
			}
			frame.AddMessage(callstack.NewLLMMessage(callstack.MessageKindExecutionResult, "ERROR: "+errMsg))
			continue
		}
		consecutiveErrors = 0

		switch {
		case result.WaitForUserInput, result.WaitForAgentInput, result.ExitProgram:
			return nil, &Suspended{Result: result}
		case result.PlaybookFinished:
			return result.ReturnValue, nil
		}
		// No continuation flag and no error: the LLM call ended without a
		// capture directive that stops the loop (e.g. pure narration); ask
		// it to continue.
	}
}

// Suspended signals that a markdown playbook's execution loop stopped
// mid-flight waiting on a user, a peer agent, or program exit; it is not
// a failure and callers must persist a checkpoint before surfacing it.
type Suspended struct {
	Result *interpreter.ExecutionResult
}

func (s *Suspended) Error() string {
	switch {
	case s.Result.ExitProgram:
		return "execution suspended: exit requested"
	case s.Result.WaitForAgentInput:
		return "execution suspended: waiting on " + s.Result.WaitForAgentTarget
	default:
		return "execution suspended: waiting on user input"
	}
}

// applyResult folds one LLM call's captured directives into durable
// state: instruction pointer advance, variables (with artifact
// auto-conversion), artifacts, and session log messages. Each captured
// Say is also delivered to its destination through bridge/Sink, in
// addition to being recorded on the frame's own message log.
func (d *Dispatcher) applyResult(ctx context.Context, frame *callstack.Frame, result *interpreter.ExecutionResult, bridge *sayBridge) {
	for _, step := range result.Steps {
		ip := callstack.InstructionPointer{
			PlaybookName:     step.PlaybookName,
			LineNumber:       step.LineNumber,
			SourceLineNumber: step.SourceLineNumber,
			Step:             step.Type,
		}
		_ = d.State.CallStack.AdvanceInstructionPointer(ip)
		d.publish("LineExecuted", ip)
	}
	for name, value := range result.Vars {
		d.State.SetVariable(name, value, d.cfg.VariableThreshold)
		d.publish("VariableUpdate", map[string]any{"name": name, "value": value})
	}
	for _, a := range result.Artifacts {
		d.State.Artifacts.Save(a.Name, a.Summary, a.Content)
		d.publish("ArtifactCreated", a.Name)
	}
	for _, step := range result.Steps {
		d.publish("StepExecuted", step)
	}
	for _, msg := range result.Messages {
		frame.AddMessage(callstack.NewLLMMessage(callstack.MessageKindAssistantResponse, msg.Message))
		// The channel the Say lands on publishes the MessageSent trace.
		d.deliverSay(ctx, bridge, msg.Target, msg.Message)
	}
}

// deliverSay hands one executed Say directive to Sink: if the real-time
// bridge already opened (and finished) a stream for this target, that
// stream is completed with the final text; otherwise the directive is
// delivered as a fresh single send, matching the cases where no stream
// was ever detected (e.g. a target whose delivery isn't streamable, or
// a malformed statement the incremental scanner missed).
func (d *Dispatcher) deliverSay(ctx context.Context, bridge *sayBridge, target, message string) {
	if d.Sink == nil {
		return
	}
	if bridge != nil {
		if id := bridge.take(target); id != "" {
			d.Sink.FinishStream(ctx, id, target, message)
			return
		}
	}
	d.Sink.FinishStream(ctx, "", target, message)
}

// invokerAdapter lets the interpreter call back into this dispatcher for
// playbook-call expressions without the interpreter package depending on
// dispatch (avoiding an import cycle: dispatch already imports
// interpreter).
type invokerAdapter struct {
	d *Dispatcher
}

func (a *invokerAdapter) InvokePlaybook(ctx context.Context, name string, args []any, kwargs map[string]any) (any, error) {
	return a.d.ExecutePlaybook(ctx, name, args, kwargs)
}
