package callstack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameLocalsPersistAcrossStatements(t *testing.T) {
	f := NewFrame("GetOrder", nil)
	f.SetLocal("user_input", "John")
	f.SetLocal("count", 3)

	assert.Equal(t, "John", f.Locals["user_input"])
	assert.Equal(t, 3, f.Locals["count"])
}

func TestCallStackMessageOrdering(t *testing.T) {
	cs := NewCallStack()
	cs.AddLLMMessage(NewLLMMessage(MessageKindUserInput, "top-level"))

	frame := NewFrame("Main", nil)
	cs.Push(frame)
	cs.AddLLMMessage(NewLLMMessage(MessageKindAssistantResponse, "in-frame"))

	msgs := cs.GetLLMMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "top-level", msgs[0].Content)
	assert.Equal(t, "in-frame", msgs[1].Content)
}

func TestAddLLMMessageOnParentFallsBackToTopLevel(t *testing.T) {
	cs := NewCallStack()
	cs.Push(NewFrame("Only", nil))
	cs.AddLLMMessageOnParent(NewLLMMessage(MessageKindExecutionResult, "result"))

	assert.Len(t, cs.TopLevelMessages(), 1)
	assert.Empty(t, cs.Peek().Messages)
}

func TestArtifactThresholdBoundary(t *testing.T) {
	s := New()

	s.SetVariable("result", stringOfLen(ArtifactThresholdDefault), ArtifactThresholdDefault)
	_, exists := s.Variables.Get("result")
	require.True(t, exists)
	raw, _ := s.Variables.Get("result")
	assert.NotContains(t, raw.(string), "Artifact:", "exactly-threshold value must not become an artifact")

	s.SetVariable("result2", stringOfLen(ArtifactThresholdDefault+1), ArtifactThresholdDefault)
	raw2, _ := s.Variables.Get("result2")
	assert.True(t, IsArtifactRef(raw2.(string)), "threshold+1 value must become an artifact")
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func TestEveryArtifactVariableHasBackingArtifact(t *testing.T) {
	s := New()
	s.SetVariable("big", stringOfLen(200), ArtifactThresholdDefault)

	raw, ok := s.Variables.Get("big")
	require.True(t, ok)
	ref := raw.(string)
	require.True(t, IsArtifactRef(ref))

	art, exists := s.Artifacts.Get("big")
	require.True(t, exists, "the artifact must be stored under the variable's own name")
	assert.Equal(t, stringOfLen(200), art.Content)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New()
	s.SetVariable("big", stringOfLen(200), ArtifactThresholdDefault)
	s.Variables.Set("count", 3)
	s.AddKnownAgent("1001")
	s.AddOwnedMeeting("m1")
	frame := NewFrame("GetOrder", map[string]any{"x": 1})
	frame.IP.LineNumber = "02"
	s.CallStack.Push(frame)

	fresh := New()
	fresh.RestoreSnapshot(s.Snapshot())

	v, ok := fresh.Variables.Get("count")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	ref, ok := fresh.Variables.Get("big")
	require.True(t, ok)
	assert.True(t, IsArtifactRef(ref.(string)))
	art, ok := fresh.Artifacts.Get("big")
	require.True(t, ok)
	assert.Equal(t, stringOfLen(200), art.Content)

	require.Equal(t, 1, fresh.CallStack.Depth())
	assert.Equal(t, "GetOrder", fresh.CallStack.Peek().IP.PlaybookName)
	assert.Equal(t, "02", fresh.CallStack.Peek().IP.LineNumber)
	assert.Equal(t, []string{"1001"}, fresh.KnownAgents())
	assert.Equal(t, []string{"m1"}, fresh.OwnedMeetings())
}

func TestDeltaAppliesCleanlyOntoPriorFullSnapshot(t *testing.T) {
	s := New()
	s.Variables.Set("a", 1)
	full1 := s.ToDict(true)

	s.Variables.Set("b", 2)
	delta := s.ToDict(false)
	require.NotNil(t, delta)

	merged := map[string]any{}
	for k, v := range full1 {
		merged[k] = v
	}
	if newVars, ok := delta["new_variables"].(map[string]any); ok {
		vars, _ := merged["variables"].(map[string]any)
		combined := map[string]any{}
		for k, v := range vars {
			combined[k] = v
		}
		for k, v := range newVars {
			combined[k] = v
		}
		merged["variables"] = combined
	}

	vars := merged["variables"].(map[string]any)
	assert.Equal(t, 1, vars["a"])
	assert.Equal(t, 2, vars["b"])
}

func TestEmptyDeltaReturnsNil(t *testing.T) {
	s := New()
	s.Variables.Set("a", 1)
	_ = s.ToDict(true)

	delta := s.ToDict(false)
	assert.Nil(t, delta, "an unchanged state must produce a nil delta")
}

func TestIFramePolicyHonorsInterval(t *testing.T) {
	s := New()
	cfg := CompressionConfig{Enabled: true, Interval: 3}

	var types []FrameType
	for id := 1; id <= 7; id++ {
		execID := id
		_, ft := s.GetStateForLLM(&execID, cfg)
		types = append(types, ft)
	}

	// execution id 1 has no prior I-frame, forcing I; thereafter every
	// third call (relative to the last I-frame) is I.
	assert.Equal(t, FrameTypeI, types[0])
	assert.Equal(t, FrameTypeI, types[3])
	assert.Equal(t, FrameTypeI, types[6])
	assert.Equal(t, FrameTypeP, types[1])
	assert.Equal(t, FrameTypeP, types[2])
}

func TestIFramePolicyDisabledAlwaysFull(t *testing.T) {
	s := New()
	cfg := CompressionConfig{Enabled: false}
	execID := 5
	_, ft := s.GetStateForLLM(&execID, cfg)
	assert.Equal(t, FrameTypeI, ft)
}
