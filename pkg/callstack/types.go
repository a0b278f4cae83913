// Package callstack holds one agent's mutable execution state: the call
// stack of playbook frames, the variable store, artifacts, and the session
// log, plus the snapshot/delta machinery used to keep the LLM's view of
// that state bounded in size.
package callstack

import "time"

// FrameType labels whether a prompt's state block carries a full snapshot
// (I-frame) or a delta against the last one shipped (P-frame).
type FrameType string

const (
	FrameTypeI FrameType = "I"
	FrameTypeP FrameType = "P"
)

// MessageKind identifies the role an LLMMessage plays in the frame's
// conversation history.
type MessageKind string

const (
	MessageKindUserInput              MessageKind = "user_input"
	MessageKindAssistantResponse      MessageKind = "assistant_response"
	MessageKindPlaybookImplementation MessageKind = "playbook_implementation"
	MessageKindArtifactLoad           MessageKind = "artifact_load"
	MessageKindExecutionResult        MessageKind = "execution_result"
	MessageKindAgentCommunication     MessageKind = "agent_communication"
)

// LLMMessage is one entry in a frame's or the top-level message buffer.
type LLMMessage struct {
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content"`
	Cached    bool        `json:"cached"`
	FrameType FrameType   `json:"frame_type,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewLLMMessage builds a message stamped with the current time.
func NewLLMMessage(kind MessageKind, content string) *LLMMessage {
	return &LLMMessage{Kind: kind, Content: content, CreatedAt: time.Now()}
}

// ToCompactMessage returns a shortened stand-in used by the compactor for
// message kinds that are safe to summarize once they leave the safe window.
// User-input and assistant-response messages compact to nil (dropped);
// everything else is returned unchanged since it already carries a small
// payload (results, artifact pointers, directives).
func (m *LLMMessage) ToCompactMessage() *LLMMessage {
	switch m.Kind {
	case MessageKindUserInput, MessageKindAssistantResponse:
		return nil
	default:
		return m
	}
}

// InstructionPointer identifies the next step to execute within a playbook.
// LineNumber uses dot-path notation ("01", "01.02", "01.02.03").
type InstructionPointer struct {
	PlaybookName     string `json:"playbook_name"`
	LineNumber       string `json:"line_number"`
	SourceLineNumber int    `json:"source_line_number"`
	Step             string `json:"step,omitempty"`
}

// StepType is the suffix encoding a step's semantics.
type StepType string

const (
	StepQueue    StepType = "QUE"
	StepExecute  StepType = "EXE"
	StepCond     StepType = "CND"
	StepElse     StepType = "ELS"
	StepLoop     StepType = "LOP"
	StepYield    StepType = "YLD"
	StepReturn   StepType = "RET"
	StepThinking StepType = "TNK"
)

// Artifact is a named, summarized piece of content stored out-of-band from
// the prompt window.
type Artifact struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Content string `json:"content"`
}

// SessionLogLevel is the severity of a session log entry.
type SessionLogLevel string

const (
	LogLevelHigh   SessionLogLevel = "HIGH"
	LogLevelMedium SessionLogLevel = "MEDIUM"
	LogLevelLow    SessionLogLevel = "LOW"
)

// SessionLogEntry is one append-only record of what the agent did.
type SessionLogEntry struct {
	Item      string          `json:"item"`
	Level     SessionLogLevel `json:"level"`
	CreatedAt time.Time       `json:"created_at"`
}
