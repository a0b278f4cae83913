package dispatch

import "context"

type originKey struct{}

// WithOrigin carries the id of the participant whose message is
// currently driving this agent's turn, so a Say("human"/"user", ...)
// and a playbook's eventual reply both know which channel "the
// originating channel" refers to.
func WithOrigin(ctx context.Context, senderID string) context.Context {
	return context.WithValue(ctx, originKey{}, senderID)
}

// OriginFromContext returns the sender id WithOrigin attached, if any.
func OriginFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(originKey{}).(string)
	return v, ok && v != ""
}

// sayBridge implements interpreter.SayObserver, turning the incremental
// Say-stream detector's chunk/complete callbacks into MessageSink calls.
// It tracks one open stream id per target so interleaved Says to
// different targets within the same LLM call don't cross-talk, and
// queues completed stream ids per target (FIFO) so applyResult can match
// each executed Say directive back to the stream it was mirrored
// through, instead of re-delivering it as a second, separate message.
type sayBridge struct {
	ctx    context.Context
	sink   MessageSink
	active map[string]string
	ready  []pendingStream
}

type pendingStream struct {
	target   string
	streamID string
}

func newSayBridge(ctx context.Context, sink MessageSink) *sayBridge {
	return &sayBridge{ctx: ctx, sink: sink, active: make(map[string]string)}
}

func (b *sayBridge) OnSayChunk(target, chunk string) {
	if b.sink == nil || !b.sink.IsStreamable(b.ctx, target) {
		return
	}
	id, ok := b.active[target]
	if !ok {
		id = b.sink.StartStream(b.ctx, target)
		b.active[target] = id
	}
	if id != "" {
		b.sink.StreamChunk(b.ctx, id, chunk)
	}
}

func (b *sayBridge) OnSayComplete(target string) {
	id, ok := b.active[target]
	if !ok {
		return
	}
	delete(b.active, target)
	b.ready = append(b.ready, pendingStream{target: target, streamID: id})
}

// take consumes (FIFO, per target) the stream id the bridge opened for
// target's Say, or "" if that Say was never detected by the incremental
// scanner (e.g. a malformed statement) and must be delivered as a fresh
// single send instead.
func (b *sayBridge) take(target string) string {
	for i, p := range b.ready {
		if p.target == target {
			b.ready = append(b.ready[:i], b.ready[i+1:]...)
			return p.streamID
		}
	}
	return ""
}
