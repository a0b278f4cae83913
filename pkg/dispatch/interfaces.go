package dispatch

import (
	"context"

	"github.com/kadirpekel/playbooks/pkg/callstack"
)

// MessageSink delivers one captured Say directive to its destination: a
// direct human target streams in real time (StartStream, then a chunk
// per OnSayChunk call, then FinishStream once the statement completes),
// while a peer agent or meeting target is delivered as a single
// completed send once the full text is known. IsStreamable reports
// which path a target takes so the caller can decide whether to drive
// the bridge incrementally at all.
type MessageSink interface {
	// IsStreamable reports whether target is delivered via real-time
	// streaming rather than a single send once the Say statement
	// executes.
	IsStreamable(ctx context.Context, target string) bool
	// StartStream opens a new stream addressed at target and returns its
	// id, or "" if no stream could be opened (e.g. no channel resolves
	// for target yet).
	StartStream(ctx context.Context, target string) string
	// StreamChunk appends chunk to the open stream streamID. A no-op if
	// streamID is empty.
	StreamChunk(ctx context.Context, streamID, chunk string)
	// FinishStream completes the delivery for one executed Say
	// directive: if streamID is non-empty it completes that stream with
	// message as the final text; otherwise it performs a single,
	// non-streamed delivery of message to target.
	FinishStream(ctx context.Context, streamID, target, message string)
}

// LLMChunk is one piece of a streamed LLM response, annotated with
// whether the provider flagged it as served from a prompt cache and
// whether it is the stream's last chunk. The dispatcher reads only Text.
type LLMChunk struct {
	Text   string
	Cached bool
	Done   bool
}

// LLMCaller is the seam into prompt assembly and the underlying
// provider adapter (pkg/llms): Dispatcher never talks to a model
// directly, it only asks for the next streamed completion given the
// agent's full execution state and the frame it is currently running.
type LLMCaller interface {
	StreamCompletion(ctx context.Context, executionID int, state *callstack.State, frame *callstack.Frame) (<-chan LLMChunk, error)
}

// Router resolves a qualified playbook name ("OtherAgentKlass.Foo") to a
// cross-agent call carried out over messaging, returning the remote
// playbook's result.
type Router interface {
	CallRemotePlaybook(ctx context.Context, agentKlass, playbookName string, args []any, kwargs map[string]any) (any, error)
}
