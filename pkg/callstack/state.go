package callstack

import (
	"reflect"
	"sync"
)

// CompressionConfig gates the I-frame/P-frame policy (spec §4.1).
type CompressionConfig struct {
	Enabled  bool
	Interval int
}

// State aggregates everything an agent's execution needs: call stack,
// variables, artifacts, session log, meeting membership, known peers, and
// the bookkeeping needed to ship compressed state deltas to the LLM.
//
// State is single-writer: only the owning agent's task mutates it. Other
// tasks must observe it only through ToDict/GetStateForLLM snapshots
// published as events, never by reading State's fields directly (spec
// §4.1 Concurrency, §5 Shared-resource discipline).
type State struct {
	CallStack  *CallStack
	Variables  *Variables
	Artifacts  *Artifacts
	SessionLog *SessionLog

	mu             sync.Mutex
	ownedMeetings  []string
	joinedMeetings []string
	knownAgents    []string

	lastSentState         map[string]any
	lastIFrameExecutionID *int
}

// New returns a freshly initialized execution state for one agent.
func New() *State {
	return &State{
		CallStack:  NewCallStack(),
		Variables:  NewVariables(),
		Artifacts:  NewArtifacts(),
		SessionLog: NewSessionLog(),
	}
}

// AddOwnedMeeting records a meeting this agent owns (created via
// CreateMeeting).
func (s *State) AddOwnedMeeting(meetingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !containsString(s.ownedMeetings, meetingID) {
		s.ownedMeetings = append(s.ownedMeetings, meetingID)
	}
}

// AddJoinedMeeting records a meeting this agent has been invited to.
func (s *State) AddJoinedMeeting(meetingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !containsString(s.joinedMeetings, meetingID) {
		s.joinedMeetings = append(s.joinedMeetings, meetingID)
	}
}

// AddKnownAgent records a peer agent id this agent has become aware of.
func (s *State) AddKnownAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !containsString(s.knownAgents, agentID) {
		s.knownAgents = append(s.knownAgents, agentID)
	}
}

// OwnedMeetings returns a copy of the meeting ids this agent owns.
func (s *State) OwnedMeetings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.ownedMeetings...)
}

// JoinedMeetings returns a copy of the meeting ids this agent has joined.
func (s *State) JoinedMeetings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.joinedMeetings...)
}

// KnownAgents returns a copy of the peer agent ids this agent knows about.
func (s *State) KnownAgents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.knownAgents...)
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// callStackRepr produces a value-comparable representation of the call
// stack for diffing purposes (instruction pointers + locals + message
// counts, not full message bodies, to keep deltas small).
func callStackRepr(cs *CallStack) []map[string]any {
	frames := cs.Frames()
	out := make([]map[string]any, len(frames))
	for i, f := range frames {
		out[i] = map[string]any{
			"instruction_pointer": f.IP,
			"locals":              f.Locals,
			"message_count":       len(f.Messages),
			"meeting_id":          f.MeetingID,
		}
	}
	return out
}

// fullSnapshot builds the complete state dict (spec §4.1:
// "{call_stack, variables, agents, owned_meetings, joined_meetings}").
func (s *State) fullSnapshot() map[string]any {
	return map[string]any{
		"call_stack":      callStackRepr(s.CallStack),
		"variables":       s.Variables.All(),
		"agents":          append([]string{}, s.knownAgents...),
		"owned_meetings":  append([]string{}, s.ownedMeetings...),
		"joined_meetings": append([]string{}, s.joinedMeetings...),
	}
}

// Snapshot returns the checkpoint-grade state dict without touching the
// delta-tracking baseline. Checkpointing uses this: a checkpoint is not
// a prompt, so it must not count as state "sent" to the LLM — otherwise
// the next P-frame delta would silently omit every change made between
// the last prompt and the checkpoint. Unlike the prompt-facing ToDict,
// the snapshot also carries the artifact registry, since a restored
// agent must be able to resolve every artifact its variables reference.
func (s *State) Snapshot() map[string]any {
	s.mu.Lock()
	snap := s.fullSnapshot()
	s.mu.Unlock()
	snap["artifacts"] = s.Artifacts.All()
	return snap
}

// RestoreSnapshot replays a dict previously captured by Snapshot into
// s, tolerating the type shapes a JSON round trip produces (maps for
// structs, []any for slices, float64 for ints). Existing state is
// added to, not cleared: restore targets a freshly constructed agent.
func (s *State) RestoreSnapshot(dict map[string]any) {
	if dict == nil {
		return
	}

	if vars, ok := dict["variables"].(map[string]any); ok {
		for k, v := range vars {
			s.Variables.Set(k, v)
		}
	}

	restoreStringList(dict["agents"], s.AddKnownAgent)
	restoreStringList(dict["owned_meetings"], s.AddOwnedMeeting)
	restoreStringList(dict["joined_meetings"], s.AddJoinedMeeting)

	switch arts := dict["artifacts"].(type) {
	case map[string]*Artifact:
		for name, a := range arts {
			s.Artifacts.Save(name, a.Summary, a.Content)
		}
	case map[string]any:
		for name, raw := range arts {
			if a, ok := raw.(map[string]any); ok {
				summary, _ := a["summary"].(string)
				content, _ := a["content"].(string)
				s.Artifacts.Save(name, summary, content)
			}
		}
	}

	frames, ok := dict["call_stack"].([]any)
	if !ok {
		if typed, isTyped := dict["call_stack"].([]map[string]any); isTyped {
			for _, f := range typed {
				frames = append(frames, f)
			}
		}
	}
	for _, raw := range frames {
		fm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		locals, _ := fm["locals"].(map[string]any)
		frame := NewFrame("", locals)
		frame.IP = restoreInstructionPointer(fm["instruction_pointer"])
		frame.MeetingID, _ = fm["meeting_id"].(string)
		s.CallStack.Push(frame)
	}
}

func restoreStringList(raw any, add func(string)) {
	switch list := raw.(type) {
	case []string:
		for _, v := range list {
			add(v)
		}
	case []any:
		for _, v := range list {
			if str, ok := v.(string); ok {
				add(str)
			}
		}
	}
}

func restoreInstructionPointer(raw any) InstructionPointer {
	switch ip := raw.(type) {
	case InstructionPointer:
		return ip
	case map[string]any:
		out := InstructionPointer{}
		out.PlaybookName, _ = ip["playbook_name"].(string)
		out.LineNumber, _ = ip["line_number"].(string)
		if n, ok := ip["source_line_number"].(float64); ok {
			out.SourceLineNumber = int(n)
		}
		out.Step, _ = ip["step"].(string)
		return out
	default:
		return InstructionPointer{}
	}
}

// ToDict returns the full snapshot (full=true) or the delta against the
// last shipped state (full=false). An empty delta returns nil. Every call
// advances last_sent_state to the snapshot just computed, so deltas
// compound correctly across repeated calls (spec I4).
func (s *State) ToDict(full bool) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.fullSnapshot()

	if full {
		s.lastSentState = current
		return current
	}

	if s.lastSentState == nil {
		// No baseline yet: treat as full, per spec's "execution_id is None"
		// fallback path — but ToDict itself doesn't see execution ids, so a
		// caller relying on delta-without-baseline gets the full state.
		s.lastSentState = current
		return current
	}

	delta := s.computeDelta(s.lastSentState, current)
	s.lastSentState = current
	if len(delta) == 0 {
		return nil
	}
	return delta
}

func (s *State) computeDelta(last, current map[string]any) map[string]any {
	delta := make(map[string]any)

	if !reflect.DeepEqual(last["call_stack"], current["call_stack"]) {
		delta["call_stack"] = current["call_stack"]
	}

	lastVars, _ := last["variables"].(map[string]any)
	curVars, _ := current["variables"].(map[string]any)
	newVars, changedVars, deletedVars := diffVariables(lastVars, curVars)
	if len(newVars) > 0 {
		delta["new_variables"] = newVars
	}
	if len(changedVars) > 0 {
		delta["changed_variables"] = changedVars
	}
	if len(deletedVars) > 0 {
		delta["deleted_variables"] = deletedVars
	}

	lastAgents, _ := last["agents"].([]string)
	curAgents, _ := current["agents"].([]string)
	if newAgents := diffNewAgents(lastAgents, curAgents); len(newAgents) > 0 {
		delta["new_agents"] = newAgents
	}

	if !reflect.DeepEqual(last["owned_meetings"], current["owned_meetings"]) {
		delta["owned_meetings"] = current["owned_meetings"]
	}
	if !reflect.DeepEqual(last["joined_meetings"], current["joined_meetings"]) {
		delta["joined_meetings"] = current["joined_meetings"]
	}

	return delta
}

func diffVariables(last, current map[string]any) (newV, changedV map[string]any, deletedV []string) {
	newV = make(map[string]any)
	changedV = make(map[string]any)
	for k, v := range current {
		old, existed := last[k]
		if !existed {
			newV[k] = v
			continue
		}
		if !reflect.DeepEqual(old, v) {
			changedV[k] = v
		}
	}
	for k := range last {
		if _, stillExists := current[k]; !stillExists {
			deletedV = append(deletedV, k)
		}
	}
	return newV, changedV, deletedV
}

func diffNewAgents(last, current []string) []string {
	known := make(map[string]bool, len(last))
	for _, a := range last {
		known[a] = true
	}
	var out []string
	for _, a := range current {
		if !known[a] {
			out = append(out, a)
		}
	}
	return out
}

// GetStateForLLM implements the I-frame/P-frame policy (spec §4.1): a full
// snapshot ("I") is returned when compression is disabled, no execution id
// is supplied, no I-frame has been shipped yet, or the interval has
// elapsed; otherwise a delta ("P") is returned, which may be nil when
// nothing changed.
func (s *State) GetStateForLLM(executionID *int, cfg CompressionConfig) (map[string]any, FrameType) {
	s.mu.Lock()
	needFull := !cfg.Enabled ||
		executionID == nil ||
		s.lastIFrameExecutionID == nil ||
		(*executionID-*s.lastIFrameExecutionID) >= cfg.Interval
	s.mu.Unlock()

	if needFull {
		snap := s.ToDict(true)
		s.mu.Lock()
		if executionID != nil {
			id := *executionID
			s.lastIFrameExecutionID = &id
		}
		s.mu.Unlock()
		return snap, FrameTypeI
	}

	delta := s.ToDict(false)
	return delta, FrameTypeP
}
