package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// programExecutionID namespaces program-level checkpoints away from any
// agent id (spec §4.7: "Program checkpoints use a separate execution ID
// namespace").
func programExecutionID(sessionID string) string {
	return sessionID + "_program"
}

// Coordinator writes program-level checkpoints recording, for every
// live agent, its latest individual checkpoint id, and drives restore
// across the whole program (spec §4.7 "Program coordinator",
// "Restore procedure").
// Unlike the per-agent Manager (single-writer by construction, owned by
// one agent's goroutine), the Coordinator is shared by every agent in a
// program, so its counter is lock-guarded.
type Coordinator struct {
	SessionID string
	Provider  Provider

	mu      sync.Mutex
	counter int
}

// NewCoordinator returns a program-level checkpoint coordinator for one
// session.
func NewCoordinator(sessionID string, provider Provider) *Coordinator {
	return &Coordinator{SessionID: sessionID, Provider: provider}
}

// AgentLister is the minimal program surface the coordinator needs to
// discover live agents without importing pkg/program (which imports
// pkg/checkpoint).
type AgentLister interface {
	// AgentIDs returns the ids of every live agent in the program.
	AgentIDs() []string
}

// SaveProgramCheckpoint records the latest checkpoint id for every
// agent the program currently knows about (spec §4.7: "metadata records
// {session_id, checkpoint_counter, agent_checkpoints, agent_count,
// timestamp}").
func (c *Coordinator) SaveProgramCheckpoint(ctx context.Context, program AgentLister) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	execID := programExecutionID(c.SessionID)
	checkpointID := fmt.Sprintf("%s_ckpt_%d", execID, c.counter)

	agentCheckpoints := make(map[string]any)
	agentIDs := program.AgentIDs()
	for _, id := range agentIDs {
		ids, err := c.Provider.ListCheckpoints(ctx, id)
		if err != nil {
			return "", fmt.Errorf("checkpoint: list checkpoints for agent %q: %w", id, err)
		}
		if len(ids) > 0 {
			agentCheckpoints[id] = ids[len(ids)-1]
		}
	}

	metadata := map[string]any{
		"session_id":         c.SessionID,
		"checkpoint_counter": c.counter,
		"agent_checkpoints":  agentCheckpoints,
		"agent_count":        len(agentIDs),
		"timestamp":          time.Now().Unix(),
	}

	if err := c.Provider.SaveCheckpoint(ctx, checkpointID, map[string]any{}, map[string]any{}, metadata); err != nil {
		return "", err
	}
	return checkpointID, nil
}

// RestoreResult reports how much of a program could be restored (spec
// §4.7 step 6: "Report the fraction of agents successfully restored;
// succeed if at least one restored.").
type RestoreResult struct {
	CheckpointCounter int
	AgentCheckpoints  map[string]*Checkpoint
	Restored          int
	Total             int
}

// Success reports whether restore should be treated as having worked.
func (r *RestoreResult) Success() bool {
	return r.Restored > 0
}

// Restore implements spec §4.7's restore procedure steps 1-4: find the
// latest program checkpoint, recover its counter, and load the *actual
// latest* personal checkpoint for every agent it names — which may be
// newer than what the program checkpoint itself recorded, since a
// crash can land between an agent checkpoint and the next program
// checkpoint. Steps 5-6 (replaying state into live agents, reporting
// success) are the caller's responsibility since they require
// constructing concrete agents — this package only reads storage.
func (c *Coordinator) Restore(ctx context.Context) (*RestoreResult, error) {
	execID := programExecutionID(c.SessionID)
	ids, err := c.Provider.ListCheckpoints(ctx, execID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	latest, err := c.Provider.LoadCheckpoint(ctx, ids[len(ids)-1])
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}

	counter, _ := latest.Metadata["checkpoint_counter"].(int)
	if counter == 0 {
		if f, ok := latest.Metadata["checkpoint_counter"].(float64); ok {
			counter = int(f)
		}
	}
	c.mu.Lock()
	c.counter = counter
	c.mu.Unlock()

	recorded, _ := latest.Metadata["agent_checkpoints"].(map[string]any)
	result := &RestoreResult{CheckpointCounter: counter, AgentCheckpoints: make(map[string]*Checkpoint), Total: len(recorded)}

	for agentID := range recorded {
		agentIDs, err := c.Provider.ListCheckpoints(ctx, agentID)
		if err != nil || len(agentIDs) == 0 {
			continue
		}
		// Use the actual latest checkpoint, which may postdate what the
		// program checkpoint recorded (spec §4.7 step 4).
		ck, err := c.Provider.LoadCheckpoint(ctx, agentIDs[len(agentIDs)-1])
		if err != nil || ck == nil {
			continue
		}
		result.AgentCheckpoints[agentID] = ck
		result.Restored++
	}

	return result, nil
}
