package llms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/playbooks/pkg/callstack"
	"github.com/kadirpekel/playbooks/pkg/dispatch"
	"github.com/kadirpekel/playbooks/pkg/pbasm"
	"github.com/kadirpekel/playbooks/pkg/program"
)

// recordingProvider is a fake Provider that records the prompt it was
// asked to stream and replays a canned chunk script.
type recordingProvider struct {
	gotMessages []Message
	chunks      []string
}

func (p *recordingProvider) ModelName() string { return "fake-model" }

func (p *recordingProvider) StreamCompletion(ctx context.Context, messages []Message) (<-chan Chunk, error) {
	p.gotMessages = messages
	ch := make(chan Chunk, len(p.chunks))
	for _, c := range p.chunks {
		ch <- Chunk{Text: c}
	}
	close(ch)
	return ch, nil
}

func greeterProgram() *pbasm.Program {
	return &pbasm.Program{
		Agents: []pbasm.AgentKlass{
			{
				Name: "Greeter",
				Kind: pbasm.KindAI,
				Playbooks: []pbasm.Playbook{
					{Name: "SayHi", Triggers: []string{"hi"}, Steps: "Say hello back to the user."},
				},
			},
		},
	}
}

func newTestProgram(t *testing.T) *program.Program {
	t.Helper()
	prog, err := program.NewProgram("sess-llms", greeterProgram(), nil, nil, dispatch.Config{})
	require.NoError(t, err)
	return prog
}

func TestCallerStreamCompletionAssemblesPromptAndRelaysChunks(t *testing.T) {
	prog := newTestProgram(t)
	aiID, ok := prog.ResolveKlassID("Greeter")
	require.True(t, ok)

	provider := &recordingProvider{chunks: []string{"Hello", ", ", "world"}}
	compression := callstack.CompressionConfig{Enabled: true, Interval: 5}
	caller := NewCaller(provider, prog, aiID, compression)

	state := callstack.New()
	state.CallStack.Push(callstack.NewFrame("SayHi", nil))
	frame := state.CallStack.Peek()
	frame.IP.LineNumber = "01"

	out, err := caller.StreamCompletion(context.Background(), 1, state, frame)
	require.NoError(t, err)

	var got []string
	var lastDone bool
	for chunk := range out {
		got = append(got, chunk.Text)
		lastDone = chunk.Done
	}
	assert.Equal(t, []string{"Hello", ", ", "world"}, got)
	assert.True(t, lastDone, "final relayed chunk must be flagged Done")

	require.NotEmpty(t, provider.gotMessages)
	assert.Equal(t, "system", provider.gotMessages[0].Role)
	assert.Contains(t, provider.gotMessages[0].Content, "hello back to the user")
}

func TestCallerStreamCompletionUnknownAgent(t *testing.T) {
	prog := newTestProgram(t)
	provider := &recordingProvider{}
	caller := NewCaller(provider, prog, "not-a-real-id", callstack.CompressionConfig{})

	state := callstack.New()
	state.CallStack.Push(callstack.NewFrame("SayHi", nil))

	_, err := caller.StreamCompletion(context.Background(), 1, state, state.CallStack.Peek())
	require.Error(t, err)
}

var _ dispatch.LLMCaller = (*Caller)(nil)
