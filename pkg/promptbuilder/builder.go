package promptbuilder

import (
	"strings"

	"github.com/kadirpekel/playbooks/pkg/callstack"
)

// Builder assembles one LLM request: preamble, other-agents/this-agent
// messages, trigger instructions, then the compacted call-stack
// history, in a staged build-then-compact pipeline that returns a
// plain message list rather than mutating shared state.
type Builder struct {
	Compressor CompressionSettings
	compactor  *LLMContextCompactor
}

// CompressionSettings names the I-frame/P-frame policy this builder
// applies; it is an alias of callstack.CompressionConfig. The per-agent
// execution counter the caller advances between calls travels
// separately, in BuildInput.ExecutionID.
type CompressionSettings = callstack.CompressionConfig

// NewBuilder returns a prompt builder for one agent.
func NewBuilder(cfg CompressionSettings) *Builder {
	return &Builder{Compressor: cfg, compactor: NewLLMContextCompactor()}
}

// BuildInput carries everything one prompt-assembly call needs.
type BuildInput struct {
	PreambleTemplate  string
	AgentInstructions string
	Instruction       string

	OtherAgents []AgentDescriptor
	Self        AgentDescriptor
	Triggers    []string

	State       *callstack.State
	ExecutionID int

	// No artifact threshold is carried here: Locals/SelfState values
	// already carry the "Artifact: ..." sentinel produced by
	// State.SetVariable — the builder only renders it, it never decides
	// when to convert.
}

// Build renders the full message list for one LLM call. It also
// appends the freshly built state message onto State's call stack
// (recording the user-instruction message before compacting), so the
// next call's safe-window search can find it.
func (b *Builder) Build(in BuildInput) []PromptMessage {
	frame := in.State.CallStack.Peek()

	executionID := in.ExecutionID
	dict, frameType := in.State.GetStateForLLM(&executionID, b.Compressor)

	agentInstructions := in.AgentInstructions
	if frameType != callstack.FrameTypeI {
		// Already implied via prior history: the last I-frame message
		// still carries them.
		agentInstructions = ""
	}

	prefix := BuildContextPrefix(contextPrefixInputFrom(in.State, frame))
	preamble := RenderPreamble(in.PreambleTemplate, agentInstructions, in.Instruction, prefix)

	messages := make([]PromptMessage, 0, 4)
	messages = append(messages, PromptMessage{Role: RoleSystem, Content: preamble})

	if content, ok := OtherAgentsMessage(in.OtherAgents); ok {
		messages = append(messages, PromptMessage{Role: RoleSystem, Content: content})
	}
	messages = append(messages, PromptMessage{Role: RoleSystem, Content: ThisAgentMessage(in.Self)})
	if content, ok := TriggerInstructionsMessage(in.Triggers); ok {
		messages = append(messages, PromptMessage{Role: RoleSystem, Content: content})
	}

	userContent := in.Instruction
	if label, body, ok := StateBlock(dict, frameType, frame); ok {
		userContent = userContent + "\n\n" + label + ":\n```json\n" + body + "\n```"
	}
	stateMsg := callstack.NewLLMMessage(callstack.MessageKindUserInput, userContent)
	stateMsg.FrameType = frameType
	in.State.CallStack.AddLLMMessage(stateMsg)

	compacted := b.compactor.Compact(in.State.CallStack.TopLevelMessages(), in.State.CallStack.Frames())
	for _, m := range compacted {
		messages = append(messages, PromptMessage{
			Role:    roleForKind(m.Kind),
			Content: m.Content,
			Cached:  m.Cached,
		})
	}

	return messages
}

// roleForKind maps an LLMMessage's kind to a chat role: the model's own
// prior output is the only assistant-role content, everything else
// (user prompts, execution results, artifact loads, agent chatter) is
// fed back as user-role context.
func roleForKind(kind callstack.MessageKind) string {
	if kind == callstack.MessageKindAssistantResponse {
		return RoleAssistant
	}
	return RoleUser
}

func contextPrefixInputFrom(state *callstack.State, frame *callstack.Frame) ContextPrefixInput {
	selfState := make(map[string]any)
	for k, v := range state.Variables.All() {
		if strings.HasPrefix(k, "_") {
			continue
		}
		selfState[k] = v
	}

	var locals map[string]any
	if frame != nil {
		locals = frame.Locals
	}

	return ContextPrefixInput{
		OwnedMeetings:  state.OwnedMeetings(),
		JoinedMeetings: state.JoinedMeetings(),
		AllAgents:      state.KnownAgents(),
		Locals:         locals,
		SelfState:      selfState,
	}
}
