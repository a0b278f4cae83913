package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Manager owns one agent's checkpoint lifecycle: a monotonic counter
// (executionID is the agent id itself, per spec §4.7 "the agent id"),
// namespace filtering, and retention (spec §4.7 "Per-agent manager").
type Manager struct {
	ExecutionID string
	Provider    Provider
	KeepLastN   int

	counter int
}

// NewManager returns a checkpoint manager for one agent.
func NewManager(executionID string, provider Provider, keepLastN int) *Manager {
	if keepLastN <= 0 {
		keepLastN = DefaultKeepLastN
	}
	return &Manager{ExecutionID: executionID, Provider: provider, KeepLastN: keepLastN}
}

// Snapshot is everything one post-statement checkpoint captures: the
// statement just committed, the (unfiltered) namespace, the full
// execution-state dict, and the in-flight LLM call so a mid-stream
// interrupt can resume without re-querying the model (spec §4.7:
// "llm_response and executed_code capture the in-flight LLM call").
// Extra carries caller metadata the manager doesn't interpret — the
// agent's class name, which restore needs to reconstruct an agent that
// no longer exists.
type Snapshot struct {
	Statement      string
	Namespace      map[string]any
	ExecutionState map[string]any
	CallStack      []map[string]any
	LLMResponse    string
	ExecutedCode   string
	Extra          map[string]any
}

// SaveCheckpoint persists one Snapshot, filtering the namespace down to
// its serializable subset, then prunes retained checkpoints to
// KeepLastN.
func (m *Manager) SaveCheckpoint(ctx context.Context, snap Snapshot) (string, error) {
	m.counter++
	checkpointID := fmt.Sprintf("%s_ckpt_%d", m.ExecutionID, m.counter)

	metadata := map[string]any{
		"statement":    snap.Statement,
		"counter":      m.counter,
		"execution_id": m.ExecutionID,
		"timestamp":    time.Now().Unix(),
		"call_stack":   snap.CallStack,
	}
	if snap.LLMResponse != "" {
		metadata["llm_response"] = snap.LLMResponse
	}
	if snap.ExecutedCode != "" {
		metadata["executed_code"] = snap.ExecutedCode
	}
	for k, v := range snap.Extra {
		metadata[k] = v
	}

	if err := m.Provider.SaveCheckpoint(ctx, checkpointID, snap.ExecutionState, FilterSerializable(snap.Namespace), metadata); err != nil {
		return "", err
	}

	if _, err := m.Provider.CleanupOldCheckpoints(ctx, m.ExecutionID, m.KeepLastN); err != nil {
		return checkpointID, fmt.Errorf("checkpoint: save succeeded but cleanup failed: %w", err)
	}
	return checkpointID, nil
}

// LatestCheckpoint returns this agent's most recently written checkpoint,
// or nil if none exist.
func (m *Manager) LatestCheckpoint(ctx context.Context) (*Checkpoint, error) {
	ids, err := m.Provider.ListCheckpoints(ctx, m.ExecutionID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return m.Provider.LoadCheckpoint(ctx, ids[len(ids)-1])
}

// FilterSerializable keeps the subset of a namespace that round-trips
// through JSON: primitives, collections, and plain data structures. It
// drops functions/closures, underscore-prefixed names (locals the
// interpreter keeps as private bookkeeping), and anything that panics
// or errors when probed (spec §4.7: "drop functions, modules,
// underscore-prefixed names, and anything whose serialization test
// throws").
func FilterSerializable(namespace map[string]any) map[string]any {
	out := make(map[string]any, len(namespace))
	for key, value := range namespace {
		if strings.HasPrefix(key, "_") {
			continue
		}
		if _, err := json.Marshal(value); err != nil {
			continue
		}
		out[key] = value
	}
	return out
}
