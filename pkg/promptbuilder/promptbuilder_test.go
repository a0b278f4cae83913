package promptbuilder

import (
	"testing"

	"github.com/kadirpekel/playbooks/pkg/callstack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPreamble(t *testing.T) {
	tmpl := "Instructions: {{AGENT_INSTRUCTIONS}}\nTask: {{INSTRUCTION}}\n{{CONTEXT_PREFIX}}"
	got := RenderPreamble(tmpl, "be helpful", "do the thing", "x = 1\n")
	assert.Equal(t, "Instructions: be helpful\nTask: do the thing\nx = 1\n", got)
}

func TestOtherAgentsMessageEmpty(t *testing.T) {
	_, ok := OtherAgentsMessage(nil)
	assert.False(t, ok)
}

func TestOtherAgentsMessageRenders(t *testing.T) {
	content, ok := OtherAgentsMessage([]AgentDescriptor{
		{Klass: "Billing", Description: "handles invoices", Playbooks: []PlaybookSignature{
			{Name: "Charge", ArgsSignature: "amount: float", ReturnType: "bool"},
		}},
	})
	require.True(t, ok)
	assert.Contains(t, content, "Billing: handles invoices")
	assert.Contains(t, content, "Charge(amount: float) -> bool")
}

func TestTriggerInstructionsMessageEmpty(t *testing.T) {
	_, ok := TriggerInstructionsMessage(nil)
	assert.False(t, ok)
}

func TestStateBlockFullIsLabeledCurrentState(t *testing.T) {
	frame := callstack.NewFrame("Foo", nil)
	label, body, ok := StateBlock(map[string]any{"variables": map[string]any{}}, callstack.FrameTypeI, frame)
	require.True(t, ok)
	assert.Equal(t, "Current state", label)
	assert.Contains(t, body, "variables")
}

func TestStateBlockEmptyDeltaOmitted(t *testing.T) {
	_, _, ok := StateBlock(nil, callstack.FrameTypeP, nil)
	assert.False(t, ok)
}

func TestStateBlockDeltaLabeledStateChanges(t *testing.T) {
	label, _, ok := StateBlock(map[string]any{"changed_variables": map[string]any{"x": 1.0}}, callstack.FrameTypeP, nil)
	require.True(t, ok)
	assert.Equal(t, "State changes", label)
}

func TestStateBlockArtifactHints(t *testing.T) {
	frame := callstack.NewFrame("Foo", nil)
	frame.MarkLoaded("report")
	dict := map[string]any{
		"variables": map[string]any{
			"report": "Artifact: quarterly sales summary",
			"draft":  "Artifact: unreviewed draft",
		},
	}
	_, body, ok := StateBlock(dict, callstack.FrameTypeI, frame)
	require.True(t, ok)
	assert.Contains(t, body, `"report": "Artifact: quarterly sales summary"  // content loaded above`)
	assert.Contains(t, body, `"draft": "Artifact: unreviewed draft",  // not loaded: use LoadArtifact('$draft') to load`)
}

func TestCompactorKeepsSafeWindowAndDropsOlderUserInput(t *testing.T) {
	c := NewLLMContextCompactor()

	old := callstack.NewLLMMessage(callstack.MessageKindUserInput, "old prompt")
	old.FrameType = callstack.FrameTypeP
	oldReply := callstack.NewLLMMessage(callstack.MessageKindAssistantResponse, "old reply")

	iFrame := callstack.NewLLMMessage(callstack.MessageKindUserInput, "latest prompt with full state")
	iFrame.FrameType = callstack.FrameTypeI
	reply := callstack.NewLLMMessage(callstack.MessageKindAssistantResponse, "latest reply")

	frame := callstack.NewFrame("Foo", nil)
	frame.Messages = []*callstack.LLMMessage{old, oldReply, iFrame, reply}

	out := c.Compact(nil, []*callstack.Frame{frame})

	require.Len(t, out, 2)
	assert.Equal(t, iFrame, out[0])
	assert.Equal(t, reply, out[1])
	assert.True(t, out[1].Cached)
}

func TestCompactorIdempotent(t *testing.T) {
	c := NewLLMContextCompactor()

	execResult := callstack.NewLLMMessage(callstack.MessageKindExecutionResult, "42")
	iFrame := callstack.NewLLMMessage(callstack.MessageKindUserInput, "prompt")
	iFrame.FrameType = callstack.FrameTypeI

	frame := callstack.NewFrame("Foo", nil)
	frame.Messages = []*callstack.LLMMessage{execResult, iFrame}

	first := c.Compact(nil, []*callstack.Frame{frame})
	frame2 := callstack.NewFrame("Foo", nil)
	frame2.Messages = first
	second := c.Compact(nil, []*callstack.Frame{frame2})

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Content, second[i].Content)
	}
}

func TestCompactorMarksLastOfEachStreamCached(t *testing.T) {
	c := NewLLMContextCompactor()

	top1 := callstack.NewLLMMessage(callstack.MessageKindAgentCommunication, "hello")
	topIFrame := callstack.NewLLMMessage(callstack.MessageKindUserInput, "top level prompt")
	topIFrame.FrameType = callstack.FrameTypeI

	frameMsg := callstack.NewLLMMessage(callstack.MessageKindExecutionResult, "ok")

	frame := callstack.NewFrame("Foo", nil)
	frame.Messages = []*callstack.LLMMessage{frameMsg}

	out := c.Compact([]*callstack.LLMMessage{top1, topIFrame}, []*callstack.Frame{frame})

	require.Len(t, out, 3)
	assert.True(t, topIFrame.Cached, "last top-level message must be cache-hinted")
	assert.True(t, frameMsg.Cached, "last frame message must be cache-hinted")
}

func TestBuilderBuildOrdersMessagesAndAppendsStateMessage(t *testing.T) {
	state := callstack.New()
	state.PushFrame(callstack.NewFrame("Greet", map[string]any{"name": "Ada"}))

	b := NewBuilder(callstack.CompressionConfig{Enabled: true, Interval: 3})
	out := b.Build(BuildInput{
		PreambleTemplate:  "Be nice.\n{{AGENT_INSTRUCTIONS}}\n{{INSTRUCTION}}\n{{CONTEXT_PREFIX}}",
		AgentInstructions: "Always greet warmly.",
		Instruction:       "Say hello to the user.",
		Self:              AgentDescriptor{Klass: "Greeter", Description: "says hello"},
		Triggers:          []string{"OnGreetingNeeded"},
		State:             state,
		ExecutionID:       1,
	})

	require.True(t, len(out) >= 4)
	assert.Equal(t, RoleSystem, out[0].Role)
	assert.Contains(t, out[0].Content, "Always greet warmly.")
	assert.Contains(t, out[0].Content, "name = 'Ada'")

	assert.Contains(t, out[1].Content, "My agent")
	assert.Contains(t, out[2].Content, "Available playbook triggers")

	last := out[len(out)-1]
	assert.Equal(t, RoleUser, last.Role)
	assert.Contains(t, last.Content, "Current state")

	assert.Equal(t, 1, len(state.CallStack.Peek().Messages))
}
