package interpreter

import "context"

// DeniedBuiltins lists the standard-library-adjacent names the namespace
// refuses to expose to LLM-generated code (spec §4.2 Namespace
// construction). Kept as data rather than enforced by a real builtins
// table, since the evaluator below only ever dispatches a fixed grammar
// of capture calls and playbook invocations — there is no general name
// lookup for these to hide behind in the first place, but the list is
// consulted by Namespace.Resolve so identifiers shadowing these names
// are never treated as user variables.
var DeniedBuiltins = map[string]bool{
	"eval": true, "exec": true, "compile": true, "__import__": true,
	"open": true, "input": true, "breakpoint": true, "exit": true,
	"quit": true, "help": true, "license": true, "copyright": true,
	"credits": true,
}

// PlaybookInvoker is the seam C2 uses to call back into C3 for playbook
// and cross-agent proxy calls, keeping the interpreter free of dispatch
// or messaging concerns.
type PlaybookInvoker interface {
	// InvokePlaybook resolves name (local "Foo" or qualified
	// "OtherAgent.Foo") and runs it, returning its result.
	InvokePlaybook(ctx context.Context, name string, args []any, kwargs map[string]any) (any, error)
}

// Namespace is the per-LLM-call evaluation environment: playbook
// arguments, locals carried over from the owning frame, and the capture
// functions/self/self.state/playbook-wrapper bindings described by spec
// §4.2.
type Namespace struct {
	Locals  map[string]any
	Args    []any
	Kwargs  map[string]any
	Invoker PlaybookInvoker
	Frame   FrameView
	Result  *ExecutionResult
}

// FrameView is the minimal slice of callstack.Frame the interpreter
// needs, kept as an interface so this package never imports callstack
// directly (C2 only produces directives; C3 applies them to state).
type FrameView interface {
	SetLocal(name string, value any)
	GetLocal(name string) (any, bool)
}

// NewNamespace builds a fresh namespace for one LLM call, seeding locals
// from kwargs (spec §4.2 "Playbook args"). Positional args are kept in
// Args and are not bound to local names; the owning frame's locals are
// not copied but are reached through Resolve.
func NewNamespace(frame FrameView, args []any, kwargs map[string]any, invoker PlaybookInvoker) *Namespace {
	locals := make(map[string]any)
	for k, v := range kwargs {
		locals[k] = v
	}
	return &Namespace{
		Locals:  locals,
		Args:    args,
		Kwargs:  kwargs,
		Invoker: invoker,
		Frame:   frame,
		Result:  NewExecutionResult(),
	}
}

// Resolve looks up an identifier: locals first, then the owning frame's
// persisted locals, returning (nil, false) for anything else (including
// anything in DeniedBuiltins).
func (ns *Namespace) Resolve(name string) (any, bool) {
	if DeniedBuiltins[name] {
		return nil, false
	}
	if v, ok := ns.Locals[name]; ok {
		return v, true
	}
	if ns.Frame != nil {
		if v, ok := ns.Frame.GetLocal(name); ok {
			return v, true
		}
	}
	return nil, false
}

// Assign binds name in both the call-local scope and the owning frame,
// so it survives past this LLM call (spec §4.2: "every binding ...
// mirrored into frame.locals ... critical: yields do not discard
// locals").
func (ns *Namespace) Assign(name string, value any) {
	ns.Locals[name] = value
	if ns.Frame != nil {
		ns.Frame.SetLocal(name, value)
	}
}
