// Package llms provides the streaming-text-chunk LLM provider contract
// spec.md §1 treats as an external collaborator ("LLM provider HTTP
// clients ... a streaming text-chunk source with caching hints") plus
// one concrete adapter, and the glue (Caller) that turns a Provider into
// the dispatch.LLMCaller seam C3 drives its markdown execution loop
// through.
//
// Grounded on the teacher's own pkg/llms multi-provider abstraction
// (Provider interface, one implementation per vendor, a registry keyed
// by model-name prefix) trimmed to the one primitive the core actually
// needs: a streamed sequence of text chunks. Everything else the
// teacher's LLMProvider interface exposes (tool-call parsing, thinking
// blocks, input-mode negotiation) belongs to the PBASM compiler and
// agent-building layers this spec scopes out (spec.md §1).
package llms

import "context"

// Chunk is one piece of provider output, annotated with whether the
// provider's own prompt-cache marked the content it is replaying as a
// cache hit (spec §4.2 "Result object", §4.4 compaction cache hints).
type Chunk struct {
	Text   string
	Cached bool
}

// Message is one entry of the prompt this provider streams a
// completion for; it mirors promptbuilder.PromptMessage without this
// package importing promptbuilder, so Provider stays usable by callers
// that assemble prompts some other way.
type Message struct {
	Role    string
	Content string
	Cached  bool
}

// Provider streams a completion for one assembled prompt. Implementations
// wrap one vendor's HTTP/SDK client; none of them touch execution state,
// playbooks, or directives — that is the interpreter's job one layer up.
type Provider interface {
	StreamCompletion(ctx context.Context, messages []Message) (<-chan Chunk, error)
	ModelName() string
}
