package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// DefaultMaxCheckpointSizeMB bounds a single checkpoint's serialized
// size (spec §4.7: "A single checkpoint must not exceed a configurable
// size limit; exceeding fails the save.").
const DefaultMaxCheckpointSizeMB = 10

// FilesystemProvider stores checkpoints as JSON blobs at
// <base>/<execution_id>/<checkpoint_id>.json — a language-neutral
// encoding (spec §9 design notes prefer this over language-specific
// pickling), single-node only per spec §1's Non-goals.
type FilesystemProvider struct {
	basePath    string
	maxSizeByte int64

	mu sync.Mutex
}

// NewFilesystemProvider returns a provider rooted at basePath, creating
// it if necessary.
func NewFilesystemProvider(basePath string, maxSizeMB int) (*FilesystemProvider, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxCheckpointSizeMB
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create base path %q: %w", basePath, err)
	}
	return &FilesystemProvider{basePath: basePath, maxSizeByte: int64(maxSizeMB) * 1024 * 1024}, nil
}

// executionIDFromCheckpointID recovers "<execution_id>" from a
// checkpoint id of the form "<execution_id>_ckpt_<n>" (spec §6
// Checkpoint layout).
func executionIDFromCheckpointID(checkpointID string) string {
	if i := strings.LastIndex(checkpointID, "_ckpt_"); i >= 0 {
		return checkpointID[:i]
	}
	return checkpointID
}

func (p *FilesystemProvider) executionDir(executionID string) string {
	return filepath.Join(p.basePath, executionID)
}

func (p *FilesystemProvider) checkpointPath(checkpointID string) string {
	return filepath.Join(p.executionDir(executionIDFromCheckpointID(checkpointID)), checkpointID+".json")
}

// SaveCheckpoint implements Provider.
func (p *FilesystemProvider) SaveCheckpoint(ctx context.Context, checkpointID string, executionState, namespace, metadata map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ck := &Checkpoint{CheckpointID: checkpointID, ExecutionState: executionState, Namespace: namespace, Metadata: metadata}
	data, err := json.Marshal(ck)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal %q: %w", checkpointID, err)
	}
	if int64(len(data)) > p.maxSizeByte {
		return fmt.Errorf("checkpoint: %q exceeds size limit: %d bytes > %d bytes", checkpointID, len(data), p.maxSizeByte)
	}

	dir := p.executionDir(executionIDFromCheckpointID(checkpointID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: create execution dir: %w", err)
	}
	return os.WriteFile(p.checkpointPath(checkpointID), data, 0o644)
}

// LoadCheckpoint implements Provider.
func (p *FilesystemProvider) LoadCheckpoint(ctx context.Context, checkpointID string) (*Checkpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.checkpointPath(checkpointID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: read %q: %w", checkpointID, err)
	}
	var ck Checkpoint
	if err := json.Unmarshal(data, &ck); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal %q: %w", checkpointID, err)
	}
	return &ck, nil
}

// ListCheckpoints implements Provider, returning checkpoint ids ordered
// by their numeric "_ckpt_N" suffix (chronological, since counters are
// monotonic — cheaper and more deterministic than reading mtimes).
func (p *FilesystemProvider) ListCheckpoints(ctx context.Context, executionID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := os.ReadDir(p.executionDir(executionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: list %q: %w", executionID, err)
	}

	type idNum struct {
		id  string
		num int
	}
	var ids []idNum
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		ids = append(ids, idNum{id: id, num: checkpointSeq(id)})
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].num < ids[j].num })

	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.id
	}
	return out, nil
}

func checkpointSeq(checkpointID string) int {
	i := strings.LastIndex(checkpointID, "_ckpt_")
	if i < 0 {
		return 0
	}
	n, _ := strconv.Atoi(checkpointID[i+len("_ckpt_"):])
	return n
}

// DeleteCheckpoint implements Provider.
func (p *FilesystemProvider) DeleteCheckpoint(ctx context.Context, checkpointID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := os.Remove(p.checkpointPath(checkpointID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: delete %q: %w", checkpointID, err)
	}
	return nil
}

// CleanupOldCheckpoints implements Provider.
func (p *FilesystemProvider) CleanupOldCheckpoints(ctx context.Context, executionID string, keepLastN int) (int, error) {
	ids, err := p.ListCheckpoints(ctx, executionID)
	if err != nil {
		return 0, err
	}
	if len(ids) <= keepLastN {
		return 0, nil
	}
	toDelete := ids[:len(ids)-keepLastN]
	for _, id := range toDelete {
		if err := p.DeleteCheckpoint(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(toDelete), nil
}
