package promptbuilder

import "strings"

// PromptMessage is one entry in the final message list handed to an
// LLM provider. Role follows the usual chat convention
// (system/user/assistant); Cached threads through the prompt-cache
// hint carried by callstack.LLMMessage.Cached.
type PromptMessage struct {
	Role    string
	Content string
	Cached  bool
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PlaybookSignature is one entry in an agent's public playbook list, as
// shown to the model in the "other agents" and "this agent" messages.
type PlaybookSignature struct {
	Name          string
	ArgsSignature string
	ReturnType    string
}

func (s PlaybookSignature) String() string {
	ret := s.ReturnType
	if ret == "" {
		ret = "None"
	}
	return s.Name + "(" + s.ArgsSignature + ") -> " + ret
}

// AgentDescriptor is a compact agent summary used in both the
// "other agents" and "this agent" preamble messages.
type AgentDescriptor struct {
	Klass       string
	Description string
	Playbooks   []PlaybookSignature
}

func (a AgentDescriptor) render() string {
	var b strings.Builder
	b.WriteString(a.Klass)
	if a.Description != "" {
		b.WriteString(": ")
		b.WriteString(a.Description)
	}
	for _, pb := range a.Playbooks {
		b.WriteString("\n  - ")
		b.WriteString(pb.String())
	}
	return b.String()
}

// RenderPreamble substitutes the three fixed placeholders into the
// system-style template. agentInstructions is the
// empty string on P-frames, per the caller's I-frame gating.
func RenderPreamble(template, agentInstructions, instruction, contextPrefix string) string {
	r := strings.NewReplacer(
		"{{AGENT_INSTRUCTIONS}}", agentInstructions,
		"{{INSTRUCTION}}", instruction,
		"{{CONTEXT_PREFIX}}", contextPrefix,
	)
	return r.Replace(template)
}

// OtherAgentsMessage renders the optional "other agents" message,
// returning ok=false when there are no peers to describe.
func OtherAgentsMessage(agents []AgentDescriptor) (content string, ok bool) {
	if len(agents) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString("*Other agents*\n```md\n")
	for i, a := range agents {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(a.render())
	}
	b.WriteString("\n```")
	return b.String(), true
}

// ThisAgentMessage renders the mandatory "this agent" message: compact
// description plus public playbook signatures.
func ThisAgentMessage(self AgentDescriptor) string {
	var b strings.Builder
	b.WriteString("*My agent*\n```md\n")
	b.WriteString(self.render())
	b.WriteString("\n```")
	return b.String()
}

// TriggerInstructionsMessage renders the optional
// trigger-instructions message.
func TriggerInstructionsMessage(triggers []string) (content string, ok bool) {
	if len(triggers) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString("*Available playbook triggers*\n```md\n")
	b.WriteString(strings.Join(triggers, "\n"))
	b.WriteString("\n```")
	return b.String(), true
}
