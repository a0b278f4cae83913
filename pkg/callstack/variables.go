package callstack

import (
	"fmt"
	"strings"
	"sync"
)

// Variables is the per-agent dot-access variable store (spec §3). Values
// may be primitives, collections, or artifact references. Set stores a
// value as given; auto-artifact conversion happens only when a write goes
// through the owning State (see State.SetVariable), so Variables itself
// only tracks raw values; it has no artifact-threshold logic of its own.
type Variables struct {
	mu     sync.Mutex
	values map[string]any
}

// NewVariables returns an empty variable store.
func NewVariables() *Variables {
	return &Variables{values: make(map[string]any)}
}

// Set assigns name = value. Dotted names ("x.y") auto-create
// intermediate map[string]any nodes, tolerating code that builds up
// nested state incrementally.
func (v *Variables) Set(name string, value any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setPath(name, value)
}

// Get retrieves name, returning (nil, false) if unset. Dotted names read
// through intermediate maps; a read of an as-yet-unassigned path returns
// (nil, false) rather than panicking. A read never creates intermediate
// nodes: the store is unchanged after a miss.
func (v *Variables) Get(name string) (any, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.getPath(name)
}

// All returns a shallow copy of every top-level variable.
func (v *Variables) All() map[string]any {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]any, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

// Delete removes a top-level variable.
func (v *Variables) Delete(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.values, name)
}

// Count returns the number of top-level variables.
func (v *Variables) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.values)
}

func (v *Variables) setPath(name string, value any) {
	parts := strings.Split(name, ".")
	if len(parts) == 1 {
		if v.values == nil {
			v.values = make(map[string]any)
		}
		v.values[name] = value
		return
	}

	if v.values == nil {
		v.values = make(map[string]any)
	}
	cur := v.values
	for i := 0; i < len(parts)-1; i++ {
		next, ok := cur[parts[i]].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[parts[i]] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func (v *Variables) getPath(name string) (any, bool) {
	parts := strings.Split(name, ".")
	var cur any = v.values
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// artifactRefPrefix is the sentinel value stored in place of an
// auto-converted large value: "Artifact: <summary>".
const artifactRefPrefix = "Artifact: "

// IsArtifactRef reports whether a stringified variable value marks an
// out-of-band artifact rather than an inline value.
func IsArtifactRef(value string) bool {
	return strings.HasPrefix(value, artifactRefPrefix)
}

// ArtifactRef formats the sentinel stored as a variable's value when its
// content has been moved to the artifact store.
func ArtifactRef(summary string) string {
	return fmt.Sprintf("%s%s", artifactRefPrefix, summary)
}
