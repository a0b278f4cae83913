package callstack

import "sync"

// SessionLog is the append-only record of everything an agent did:
// playbook starts/ends, directives, messages, call results. The P-frame
// delta does not read it: State computes deltas from its own snapshots
// of the call stack, variables, known agents, and meetings.
type SessionLog struct {
	mu      sync.Mutex
	entries []SessionLogEntry
}

// NewSessionLog returns an empty session log.
func NewSessionLog() *SessionLog {
	return &SessionLog{}
}

// Append records a new entry.
func (l *SessionLog) Append(item string, level SessionLogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, SessionLogEntry{Item: item, Level: level})
}

// Entries returns every recorded entry in order.
func (l *SessionLog) Entries() []SessionLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SessionLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
