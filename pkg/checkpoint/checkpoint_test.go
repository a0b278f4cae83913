package checkpoint

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemProviderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilesystemProvider(dir, 0)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.SaveCheckpoint(ctx, "agent1_ckpt_1", map[string]any{"x": 1.0}, map[string]any{"y": "hi"}, map[string]any{"counter": 1.0}))

	ck, err := p.LoadCheckpoint(ctx, "agent1_ckpt_1")
	require.NoError(t, err)
	require.NotNil(t, ck)
	assert.Equal(t, 1.0, ck.ExecutionState["x"])
	assert.Equal(t, "hi", ck.Namespace["y"])
}

func TestFilesystemProviderListChronological(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilesystemProvider(dir, 0)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, p.SaveCheckpoint(ctx, checkpointIDFor("agent1", i), nil, nil, nil))
	}

	ids, err := p.ListCheckpoints(ctx, "agent1")
	require.NoError(t, err)
	assert.Equal(t, []string{"agent1_ckpt_1", "agent1_ckpt_2", "agent1_ckpt_3"}, ids)
}

func checkpointIDFor(executionID string, n int) string {
	return executionID + "_ckpt_" + strconv.Itoa(n)
}

func TestFilesystemProviderSizeLimitFails(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilesystemProvider(dir, 0)
	require.NoError(t, err)
	p.maxSizeByte = 10 // force a tiny limit

	err = p.SaveCheckpoint(context.Background(), "agent1_ckpt_1", map[string]any{"big": "this is way more than ten bytes of JSON"}, nil, nil)
	assert.Error(t, err)
}

func TestCleanupOldCheckpointsKeepsOnlyLastN(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilesystemProvider(dir, 0)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, p.SaveCheckpoint(ctx, checkpointIDFor("agent1", i), nil, nil, nil))
	}

	deleted, err := p.CleanupOldCheckpoints(ctx, "agent1", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	ids, err := p.ListCheckpoints(ctx, "agent1")
	require.NoError(t, err)
	assert.Equal(t, []string{"agent1_ckpt_4", "agent1_ckpt_5"}, ids)
}

func TestManagerSaveCheckpointFiltersNamespace(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilesystemProvider(dir, 0)
	require.NoError(t, err)

	mgr := NewManager("agent1", p, 10)
	namespace := map[string]any{
		"x":        1.0,
		"_private": "hidden",
		"fn":       func() {},
	}
	id, err := mgr.SaveCheckpoint(context.Background(), Snapshot{
		Statement:      "x = 1",
		Namespace:      namespace,
		ExecutionState: map[string]any{"call_stack": []any{}},
	})
	require.NoError(t, err)
	assert.Equal(t, "agent1_ckpt_1", id)

	ck, err := p.LoadCheckpoint(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ck.Namespace["x"])
	_, hasPrivate := ck.Namespace["_private"]
	assert.False(t, hasPrivate)
	_, hasFn := ck.Namespace["fn"]
	assert.False(t, hasFn)
}

func TestSessionManagerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sm := NewSessionManager(dir)
	paths := []string{filepath.Join(dir, "a.pbasm"), filepath.Join(dir, "b.pbasm")}

	_, ok := sm.LastSession(paths)
	assert.False(t, ok)

	require.NoError(t, sm.SaveSession(paths, "sess-123"))
	id, ok := sm.LastSession(paths)
	require.True(t, ok)
	assert.Equal(t, "sess-123", id)

	require.NoError(t, sm.ClearSession(paths))
	_, ok = sm.LastSession(paths)
	assert.False(t, ok)
}

func TestCoordinatorRestoreNoneWithoutCheckpoints(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilesystemProvider(dir, 0)
	require.NoError(t, err)

	c := NewCoordinator("sess-1", p)
	result, err := c.Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
}

type fakeAgentLister struct{ ids []string }

func (f fakeAgentLister) AgentIDs() []string { return f.ids }

func TestCoordinatorSaveAndRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilesystemProvider(dir, 0)
	require.NoError(t, err)
	ctx := context.Background()

	agentMgr := NewManager("1000", p, 10)
	_, err = agentMgr.SaveCheckpoint(ctx, Snapshot{
		Statement:      "s",
		Namespace:      map[string]any{"a": 1.0},
		ExecutionState: map[string]any{"variables": map[string]any{}},
	})
	require.NoError(t, err)

	coord := NewCoordinator("sess-1", p)
	ckID, err := coord.SaveProgramCheckpoint(ctx, fakeAgentLister{ids: []string{"1000"}})
	require.NoError(t, err)
	assert.Contains(t, ckID, "sess-1_program_ckpt_1")

	result, err := coord.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Restored)
	assert.True(t, result.Success())
}
