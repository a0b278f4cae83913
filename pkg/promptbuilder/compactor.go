package promptbuilder

import "github.com/kadirpekel/playbooks/pkg/callstack"

// LLMContextCompactor bounds the flattened call-stack conversation
// before it is sent to the model. It is built on
// callstack.LLMMessage.ToCompactMessage (the per-kind summarize-or-drop
// rule) and the pattern of a dedicated compaction stage ahead of
// prompt assembly, generalized from token-budget selection to a
// safe-window rule.
//
// The compactor never sees the preamble/other-agents/this-agent/
// trigger messages the builder assembles separately — those are
// always system-role and are never subject to compaction, so "keep all
// system messages" holds structurally rather than by an explicit rule
// here.
type LLMContextCompactor struct{}

// NewLLMContextCompactor returns a compactor. It carries no state: it
// must be deterministic in (input, cache hints) alone.
func NewLLMContextCompactor() *LLMContextCompactor {
	return &LLMContextCompactor{}
}

// stream tags a message with which buffer it came from, so the last
// message of each stream can be cache-hinted independently (spec
// §4.4: "The last message in each stream ... is marked cached=true").
type stream int

const (
	streamTopLevel stream = iota
	streamFrame
)

type tagged struct {
	msg      *callstack.LLMMessage
	stream   stream
	frameIdx int // meaningful only when stream == streamFrame
}

// Compact flattens topLevel and every frame's messages (in push order,
// matching callstack.CallStack.GetLLMMessages), applies the safe-window
// rule, compacts everything before it, and re-stamps cache hints on the
// tail of each stream.
func (c *LLMContextCompactor) Compact(topLevel []*callstack.LLMMessage, frames []*callstack.Frame) []*callstack.LLMMessage {
	entries := make([]tagged, 0, len(topLevel))
	for _, m := range topLevel {
		entries = append(entries, tagged{msg: m, stream: streamTopLevel})
	}
	for i, f := range frames {
		for _, m := range f.Messages {
			entries = append(entries, tagged{msg: m, stream: streamFrame, frameIdx: i})
		}
	}

	safeFrom := safeWindowStart(entries)

	type outEntry struct {
		msg      *callstack.LLMMessage
		stream   stream
		frameIdx int
	}
	out := make([]outEntry, 0, len(entries))
	for i, e := range entries {
		if i >= safeFrom {
			out = append(out, outEntry{e.msg, e.stream, e.frameIdx})
			continue
		}
		compacted := e.msg.ToCompactMessage()
		if compacted == nil {
			continue
		}
		out = append(out, outEntry{compacted, e.stream, e.frameIdx})
	}

	// Mark the last message of the top-level stream, and of each frame
	// stream independently, as cache-eligible.
	lastTopLevel := -1
	lastPerFrame := make(map[int]int)
	for i, o := range out {
		if o.stream == streamTopLevel {
			lastTopLevel = i
		} else {
			lastPerFrame[o.frameIdx] = i
		}
	}
	if lastTopLevel >= 0 {
		out[lastTopLevel].msg.Cached = true
	}
	for _, idx := range lastPerFrame {
		out[idx].msg.Cached = true
	}

	result := make([]*callstack.LLMMessage, len(out))
	for i, o := range out {
		result[i] = o.msg
	}
	return result
}

// safeWindowStart finds the index of the last I-frame user-input
// message and returns it: everything from there on is the safe window
// and must never be compacted, since a later P-frame delta is only
// valid relative to that baseline (last_i_frame_execution_id is set
// whenever last_sent_state is non-null).
func safeWindowStart(entries []tagged) int {
	for i := len(entries) - 1; i >= 0; i-- {
		m := entries[i].msg
		if m.Kind == callstack.MessageKindUserInput && m.FrameType == callstack.FrameTypeI {
			return i
		}
	}
	return len(entries)
}
