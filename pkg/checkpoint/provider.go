// Package checkpoint implements durable execution (spec §4.7): a
// pluggable Provider abstraction, a per-agent Manager that snapshots
// serializable namespace state after every captured statement, a
// Program-level coordinator that tracks the latest checkpoint per agent,
// and a SessionManager mapping a program's playbook paths to the session
// id of its last run so a user can resume without naming it.
package checkpoint

import "context"

// Provider is the pluggable checkpoint storage contract (spec §4.7
// "Checkpoint provider interface"). One built-in implementation,
// FilesystemProvider, stores each checkpoint as an opaque blob under
// base/execution_id/checkpoint_id. Distributed implementations are
// explicitly out of scope (spec §1 Non-goals).
type Provider interface {
	SaveCheckpoint(ctx context.Context, checkpointID string, executionState, namespace, metadata map[string]any) error
	LoadCheckpoint(ctx context.Context, checkpointID string) (*Checkpoint, error)
	// ListCheckpoints returns checkpoint ids for executionID in
	// chronological order.
	ListCheckpoints(ctx context.Context, executionID string) ([]string, error)
	DeleteCheckpoint(ctx context.Context, checkpointID string) error
	// CleanupOldCheckpoints deletes every checkpoint for executionID
	// except the most recent keepLastN, returning the count deleted.
	CleanupOldCheckpoints(ctx context.Context, executionID string, keepLastN int) (int, error)
}

// Checkpoint is one saved snapshot: the serialized execution state, the
// filtered namespace subset, and caller-supplied metadata (spec §4.7
// per-agent manager: "{statement, counter, execution_id, timestamp,
// call_stack, llm_response?, executed_code?}").
type Checkpoint struct {
	CheckpointID   string         `json:"checkpoint_id"`
	ExecutionState map[string]any `json:"execution_state"`
	Namespace      map[string]any `json:"namespace"`
	Metadata       map[string]any `json:"metadata"`
}
