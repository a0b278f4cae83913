package llms

import (
	"context"
	"fmt"

	"github.com/kadirpekel/playbooks/pkg/callstack"
	"github.com/kadirpekel/playbooks/pkg/dispatch"
	"github.com/kadirpekel/playbooks/pkg/program"
	"github.com/kadirpekel/playbooks/pkg/promptbuilder"
)

// DefaultPreambleTemplate is the built-in system-style preamble
// (spec §4.4 item 1: "loaded from a template file"). A host may supply
// its own via Caller.PreambleTemplate; this is the zero-config default,
// grounded on the three placeholders spec.md §4.4 names exactly.
const DefaultPreambleTemplate = `You are an AI agent executing a playbook. Generate Python-style code
that drives your execution using the directive primitives described
below (Step, Say, Var, SaveArtifact, Trigger, Return, Yield).

{{AGENT_INSTRUCTIONS}}

{{CONTEXT_PREFIX}}

{{INSTRUCTION}}
`

// Caller implements dispatch.LLMCaller by assembling one prompt per
// spec §4.4 (via promptbuilder.Builder, reading playbook metadata off
// Program/AIAgent) and streaming it through a Provider, converting
// Provider's Chunk stream into dispatch.LLMChunk.
type Caller struct {
	Provider         Provider
	Program          *program.Program
	AgentID          string
	PreambleTemplate string

	builder *promptbuilder.Builder
}

// NewCaller returns a Caller for one AI agent, using cfg as the
// I-frame/P-frame compression policy (spec §4.1 "I-frame/P-frame
// policy").
func NewCaller(provider Provider, prog *program.Program, agentID string, cfg callstack.CompressionConfig) *Caller {
	template := DefaultPreambleTemplate
	return &Caller{
		Provider:         provider,
		Program:          prog,
		AgentID:          agentID,
		PreambleTemplate: template,
		builder:          promptbuilder.NewBuilder(cfg),
	}
}

// StreamCompletion implements dispatch.LLMCaller.
func (c *Caller) StreamCompletion(ctx context.Context, executionID int, state *callstack.State, frame *callstack.Frame) (<-chan dispatch.LLMChunk, error) {
	ai, ok := c.Program.AIAgentByID(c.AgentID)
	if !ok {
		return nil, fmt.Errorf("llms: caller: unknown AI agent %q", c.AgentID)
	}
	agent, ok := c.Program.Agent(c.AgentID)
	if !ok {
		return nil, fmt.Errorf("llms: caller: agent %q not registered", c.AgentID)
	}

	body, _ := ai.PlaybookBody(frame.IP.PlaybookName)

	in := promptbuilder.BuildInput{
		PreambleTemplate:  c.PreambleTemplate,
		AgentInstructions: body,
		Instruction:       fmt.Sprintf("Continue executing playbook %q from step %q.", frame.IP.PlaybookName, frame.IP.LineNumber),
		OtherAgents:       c.Program.OtherAgentDescriptors(c.AgentID),
		Self:              c.Program.Descriptor(agent),
		Triggers:          ai.TriggerList(),
		State:             state,
		ExecutionID:       executionID,
	}

	messages := c.builder.Build(in)
	wire := make([]Message, len(messages))
	for i, m := range messages {
		wire[i] = Message{Role: m.Role, Content: m.Content, Cached: m.Cached}
	}

	chunks, err := c.Provider.StreamCompletion(ctx, wire)
	if err != nil {
		return nil, err
	}
	return relayWithDone(ctx, chunks), nil
}

// relayWithDone forwards chunks onto a dispatch.LLMChunk channel,
// flagging the last one Done. pkg/dispatch's runMarkdown does not read
// the flag; it consumes chunks until the channel closes.
func relayWithDone(ctx context.Context, in <-chan Chunk) <-chan dispatch.LLMChunk {
	out := make(chan dispatch.LLMChunk)
	go func() {
		defer close(out)
		var pending *Chunk
		flush := func(done bool) bool {
			if pending == nil {
				return true
			}
			select {
			case out <- dispatch.LLMChunk{Text: pending.Text, Cached: pending.Cached, Done: done}:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for chunk := range in {
			chunk := chunk
			if !flush(false) {
				return
			}
			pending = &chunk
		}
		flush(true)
	}()
	return out
}

var _ dispatch.LLMCaller = (*Caller)(nil)
