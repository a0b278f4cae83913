package interpreter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFrame struct {
	locals map[string]any
}

func newFakeFrame() *fakeFrame { return &fakeFrame{locals: map[string]any{}} }

func (f *fakeFrame) SetLocal(name string, value any) { f.locals[name] = value }
func (f *fakeFrame) GetLocal(name string) (any, bool) {
	v, ok := f.locals[name]
	return v, ok
}

type fakeInvoker struct {
	calls   []string
	results map[string]any
}

func (f *fakeInvoker) InvokePlaybook(ctx context.Context, name string, args []any, kwargs map[string]any) (any, error) {
	f.calls = append(f.calls, name)
	return f.results[name], nil
}

func run(t *testing.T, ns *Namespace, code string) *ExecutionResult {
	t.Helper()
	ex := NewExecutor(ns)
	res, err := ex.Feed(context.Background(), code, nil)
	require.NoError(t, err)
	require.NoError(t, ex.Finish())
	return res
}

func TestExecutorCapturesStepAndSay(t *testing.T) {
	ns := NewNamespace(newFakeFrame(), nil, nil, nil)
	res := run(t, ns, "await self.Step(\"GetOrder:01:QUE\")\nawait self.Say(\"user\", \"hi there\")\n")

	require.Len(t, res.Steps, 1)
	assert.Equal(t, "GetOrder", res.Steps[0].PlaybookName)
	assert.Equal(t, "QUE", res.Steps[0].Type)

	require.Len(t, res.Messages, 1)
	assert.Equal(t, "user", res.Messages[0].Target)
	assert.Equal(t, "hi there", res.Messages[0].Message)
}

func TestExecutorThinkingStepSetsFlag(t *testing.T) {
	ns := NewNamespace(newFakeFrame(), nil, nil, nil)
	res := run(t, ns, "await self.Step(\"GetOrder:01:TNK\")\n")
	assert.True(t, res.IsThinking)
}

func TestExecutorVarAndSelfStateAssignmentBothWriteResult(t *testing.T) {
	ns := NewNamespace(newFakeFrame(), nil, nil, nil)
	res := run(t, ns, "await self.Var(\"count\", 3)\nself.state.name = \"Ada\"\n")
	assert.Equal(t, int64(3), res.Vars["count"])
	assert.Equal(t, "Ada", res.Vars["name"])
}

func TestExecutorReturnSetsPlaybookFinished(t *testing.T) {
	ns := NewNamespace(newFakeFrame(), nil, nil, nil)
	res := run(t, ns, "await self.Return(\"done\")\n")
	assert.True(t, res.PlaybookFinished)
	assert.Equal(t, "done", res.ReturnValue)
	assert.Equal(t, 1, res.Continuations())
}

func TestExecutorYieldUserWaitsForUserInput(t *testing.T) {
	ns := NewNamespace(newFakeFrame(), nil, nil, nil)
	res := run(t, ns, "await self.Yield(\"user\")\n")
	assert.True(t, res.WaitForUserInput)
	assert.Equal(t, 1, res.Continuations())
}

func TestExecutorYieldPeerWaitsForAgentInput(t *testing.T) {
	ns := NewNamespace(newFakeFrame(), nil, nil, nil)
	res := run(t, ns, "await self.Yield(\"meeting current\")\n")
	assert.True(t, res.WaitForAgentInput)
	assert.Equal(t, "meeting current", res.WaitForAgentTarget)
}

func TestExecutorYieldExitSetsExitProgram(t *testing.T) {
	ns := NewNamespace(newFakeFrame(), nil, nil, nil)
	res := run(t, ns, "await self.Yield(\"exit\")\n")
	assert.True(t, res.ExitProgram)
}

func TestExecutorLocalsPersistAcrossFeeds(t *testing.T) {
	frame := newFakeFrame()
	ns := NewNamespace(frame, nil, nil, nil)
	ex := NewExecutor(ns)

	_, err := ex.Feed(context.Background(), "x = 42\n", nil)
	require.NoError(t, err)
	require.NoError(t, ex.Finish())

	assert.Equal(t, int64(42), frame.locals["x"])
}

func TestExecutorPlaybookCallRoutesThroughInvoker(t *testing.T) {
	invoker := &fakeInvoker{results: map[string]any{"OtherAgent.GetOrder": "order-1"}}
	ns := NewNamespace(newFakeFrame(), nil, nil, invoker)
	res := run(t, ns, "result = await OtherAgent.GetOrder(42)\n")

	require.Len(t, invoker.calls, 1)
	assert.Equal(t, "OtherAgent.GetOrder", invoker.calls[0])
	assert.Nil(t, res.ReturnValue)
	assert.Equal(t, "order-1", ns.Locals["result"])
}

type failingInvoker struct{}

func (failingInvoker) InvokePlaybook(ctx context.Context, name string, args []any, kwargs map[string]any) (any, error) {
	return nil, assert.AnError
}

func TestExecutorPlaybookCallFailureAssignsErrorString(t *testing.T) {
	ns := NewNamespace(newFakeFrame(), nil, nil, failingInvoker{})
	res := run(t, ns, "order = await Billing.Charge(10)\n")

	got, ok := ns.Locals["order"].(string)
	require.True(t, ok)
	assert.Contains(t, got, "ERROR:")
	assert.False(t, res.RuntimeError, "a failed playbook call is a result string, not an interpreter error")
}

func TestExecutorSaveArtifactRecordsArtifactAndVariable(t *testing.T) {
	ns := NewNamespace(newFakeFrame(), nil, nil, nil)
	res := run(t, ns, `await self.SaveArtifact("report", "summary", "full content here")`+"\n")

	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, "report", res.Artifacts[0].Name)
	assert.Equal(t, "full content here", res.Vars["report"])
}
