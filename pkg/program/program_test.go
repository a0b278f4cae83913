package program

import (
	"context"
	"testing"
	"time"

	"github.com/kadirpekel/playbooks/pkg/callstack"
	"github.com/kadirpekel/playbooks/pkg/checkpoint"
	"github.com/kadirpekel/playbooks/pkg/dispatch"
	"github.com/kadirpekel/playbooks/pkg/messaging"
	"github.com/kadirpekel/playbooks/pkg/pbasm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedLLM struct {
	chunks []string
}

func (s *scriptedLLM) StreamCompletion(ctx context.Context, executionID int, state *callstack.State, frame *callstack.Frame) (<-chan dispatch.LLMChunk, error) {
	ch := make(chan dispatch.LLMChunk, len(s.chunks))
	for _, c := range s.chunks {
		ch <- dispatch.LLMChunk{Text: c}
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
					{Name: "SayHi", Triggers: []string{"hi"}, Steps: "Say hello back."},
				},
			},
		},
	}
}

func TestNewProgramRequiresAtLeastOneAIAgent(t *testing.T) {
	compiled := &pbasm.Program{Agents: []pbasm.AgentKlass{{Name: "User", Kind: pbasm.KindHuman}}}

	_, err := NewProgram("sess", compiled, nil, nil, dispatch.Config{})
	require.Error(t, err)
	assert.IsType(t, &ProgramLoadError{}, err)
}

func TestNewProgramCreatesDefaultHumanWhenNoneDeclared(t *testing.T) {
	p, err := NewProgram("sess", greeterProgram(), nil, nil, dispatch.Config{})
	require.NoError(t, err)

	assert.Len(t, p.AgentIDs(), 2)
	_, ok := p.ResolveKlassID(defaultHumanKlass)
	assert.True(t, ok)
}

func TestNewProgramSkipsDefaultHumanWhenOneIsDeclared(t *testing.T) {
	compiled := greeterProgram()
	compiled.Agents = append(compiled.Agents, pbasm.AgentKlass{Name: "Operator", Kind: pbasm.KindHuman})

	p, err := NewProgram("sess", compiled, nil, nil, dispatch.Config{})
	require.NoError(t, err)

	assert.Len(t, p.AgentIDs(), 2)
	_, ok := p.ResolveKlassID(defaultHumanKlass)
	assert.False(t, ok, "no implicit User klass once a Human class is declared")
	_, ok = p.ResolveKlassID("Operator")
	assert.True(t, ok)
}

func TestCreateAgentAddsAnotherLiveInstanceWithoutMovingKlassFirst(t *testing.T) {
	p, err := NewProgram("sess", greeterProgram(), nil, nil, dispatch.Config{})
	require.NoError(t, err)

	firstID, _ := p.ResolveKlassID("Greeter")

	_, err = p.CreateAgent("Greeter")
	require.NoError(t, err)

	assert.Len(t, p.AgentIDs(), 3)
	stillFirstID, _ := p.ResolveKlassID("Greeter")
	assert.Equal(t, firstID, stillFirstID)
}

func TestRouteMessageDeliversToRecipientInbox(t *testing.T) {
	compiled := greeterProgram()
	compiled.Agents = append(compiled.Agents, pbasm.AgentKlass{Name: "Operator", Kind: pbasm.KindHuman})
	p, err := NewProgram("sess", compiled, nil, nil, dispatch.Config{})
	require.NoError(t, err)

	humanID, _ := p.ResolveKlassID("Operator")
	aiID, _ := p.ResolveKlassID("Greeter")

	require.NoError(t, p.RouteMessage(humanID, aiID, "hello there", ""))

	agent, ok := p.ResolveAgent(aiID)
	require.True(t, ok)
	ai := agent.(*AIAgent)
	assert.Equal(t, 1, ai.Inbox.Size())
}

func TestInvokeRemotePlaybookRunsAIAgentThroughItsOwnLoop(t *testing.T) {
	factory := func(p *Program, agentID, agentKlass string) dispatch.LLMCaller {
		return &scriptedLLM{chunks: []string{"await self.Return(\"hi there\")\n"}}
	}
	p, err := NewProgram("sess", greeterProgram(), nil, factory, dispatch.Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Begin(ctx) }()

	aiID, _ := p.ResolveKlassID("Greeter")
	result, err := p.InvokeRemotePlaybook(ctx, aiID, "SayHi", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi there", result)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Begin did not return after cancellation")
	}
}

// multiCallLLM replays a different chunk script per successive call,
// repeating the last once exhausted.
type multiCallLLM struct {
	scripts [][]string
	calls   int
}

func (s *multiCallLLM) StreamCompletion(ctx context.Context, executionID int, state *callstack.State, frame *callstack.Frame) (<-chan dispatch.LLMChunk, error) {
	idx := s.calls
	if idx >= len(s.scripts) {
		idx = len(s.scripts) - 1
	}
	s.calls++
	script := s.scripts[idx]
	ch := make(chan dispatch.LLMChunk, len(script))
	for _, c := range script {
		ch <- dispatch.LLMChunk{Text: c}
	}
	close(ch)
	return ch, nil
}

func TestAgentYieldsToUserThenResumesOnNextMessage(t *testing.T) {
	compiled := greeterProgram()
	compiled.Agents = append(compiled.Agents, pbasm.AgentKlass{Name: "Operator", Kind: pbasm.KindHuman})

	llm := &multiCallLLM{scripts: [][]string{
		{"await self.Yield(\"user\")\n"},
		{"name = \"John\"\n", "await self.Return(\"resumed\")\n"},
	}}
	factory := func(p *Program, agentID, agentKlass string) dispatch.LLMCaller { return llm }
	p, err := NewProgram("sess", compiled, nil, factory, dispatch.Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Begin(ctx) }()

	humanID, _ := p.ResolveKlassID("Operator")
	aiID, _ := p.ResolveKlassID("Greeter")
	human, _ := p.Agent(humanID)
	inbox := human.(*HumanAgent).Inbox

	require.NoError(t, p.RouteMessage(humanID, aiID, "hi", ""))
	require.NoError(t, p.RouteMessage(humanID, aiID, "John", ""))

	reply, err := inbox.Get(ctx, func(m *messaging.Message) bool { return m.Text() == "resumed" })
	require.NoError(t, err, "the resumed playbook's return value must reach the human")
	assert.Equal(t, aiID, reply.SenderID)

	ai, _ := p.AIAgentByID(aiID)
	assert.True(t, ai.State.CallStack.IsEmpty(), "the suspended frame must be gone after resume")
	resumedWithSecondLLMCall := llm.calls >= 2
	assert.True(t, resumedWithSecondLLMCall)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Begin did not return after cancellation")
	}
}

func TestProgramRestoreReplaysAgentState(t *testing.T) {
	dir := t.TempDir()
	provider, err := checkpoint.NewFilesystemProvider(dir, 0)
	require.NoError(t, err)
	ctx := context.Background()

	p1, err := NewProgram("sess-restore", greeterProgram(), provider, nil, dispatch.Config{})
	require.NoError(t, err)
	aiID, _ := p1.ResolveKlassID("Greeter")
	ai1, ok := p1.AIAgentByID(aiID)
	require.True(t, ok)

	ai1.State.Variables.Set("count", 3)
	ai1.State.Artifacts.Save("report", "summary", "full content")
	ai1.saveCheckpoint(ctx, "test")

	p2, err := NewProgram("sess-restore", greeterProgram(), provider, nil, dispatch.Config{})
	require.NoError(t, err)

	result, err := p2.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Restored)

	ai2, ok := p2.AIAgentByID(aiID)
	require.True(t, ok, "the restored agent keeps its recorded id")
	v, ok := ai2.State.Variables.Get("count")
	require.True(t, ok)
	assert.Equal(t, float64(3), v, "values come back through the JSON round trip")
	art, ok := ai2.State.Artifacts.Get("report")
	require.True(t, ok)
	assert.Equal(t, "full content", art.Content)
}

func TestOtherAgentDescriptorsExcludesSelf(t *testing.T) {
	compiled := greeterProgram()
	compiled.Agents = append(compiled.Agents, pbasm.AgentKlass{Name: "Operator", Kind: pbasm.KindHuman})
	p, err := NewProgram("sess", compiled, nil, nil, dispatch.Config{})
	require.NoError(t, err)

	aiID, _ := p.ResolveKlassID("Greeter")
	others := p.OtherAgentDescriptors(aiID)
	require.Len(t, others, 1)
	assert.Equal(t, "Operator", others[0].Klass)
}
