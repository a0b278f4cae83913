package callstack

// Frame is one call-stack entry: the state local to a single in-progress
// playbook call.
type Frame struct {
	IP                  InstructionPointer
	Locals              map[string]any
	Messages            []*LLMMessage
	MeetingID           string
	loadedArtifactNames map[string]bool
}

// NewFrame creates a frame for a freshly dispatched playbook call, seeded
// with its bound arguments.
func NewFrame(playbookName string, locals map[string]any) *Frame {
	if locals == nil {
		locals = make(map[string]any)
	}
	return &Frame{
		IP:                  InstructionPointer{PlaybookName: playbookName},
		Locals:              locals,
		loadedArtifactNames: make(map[string]bool),
	}
}

// SetLocal records (or overwrites) a local binding captured from an
// executed statement. Called after every statement so that locals survive
// across LLM calls and Yield suspensions (spec invariant: assignments at
// function-local scope persist in frame.locals).
func (f *Frame) SetLocal(name string, value any) {
	if f.Locals == nil {
		f.Locals = make(map[string]any)
	}
	f.Locals[name] = value
}

// GetLocal reads a local binding, reporting whether it exists.
func (f *Frame) GetLocal(name string) (any, bool) {
	v, ok := f.Locals[name]
	return v, ok
}

// IsArtifactLoaded reports whether an artifact's content has already been
// materialized into this frame's prompt window.
func (f *Frame) IsArtifactLoaded(name string) bool {
	return f.loadedArtifactNames[name]
}

// MarkLoaded records that an artifact's content now appears in the prompt.
func (f *Frame) MarkLoaded(name string) {
	if f.loadedArtifactNames == nil {
		f.loadedArtifactNames = make(map[string]bool)
	}
	f.loadedArtifactNames[name] = true
}

// LoadedArtifactNames returns the set of artifact names loaded into this
// frame, for state-snapshot purposes.
func (f *Frame) LoadedArtifactNames() []string {
	names := make([]string, 0, len(f.loadedArtifactNames))
	for n := range f.loadedArtifactNames {
		names = append(names, n)
	}
	return names
}

// AddMessage appends a message to this frame's message list.
func (f *Frame) AddMessage(msg *LLMMessage) {
	f.Messages = append(f.Messages, msg)
}
