package promptbuilder

import (
	"fmt"
	"sort"
	"strings"
)

// ContextPrefixInput carries the pieces of agent state the context
// prefix declares as already "in scope".
type ContextPrefixInput struct {
	// Imports lists module names the namespace has bound. The
	// interpreter's capture-function grammar has no import statement
	// and denies __import__ (see interpreter.DeniedBuiltins), so this
	// is always empty today; kept as a field so a future namespace
	// extension has somewhere to report into without reshaping the
	// builder.
	Imports []string

	OwnedMeetings  []string
	JoinedMeetings []string
	AllAgents      []string

	// Locals is the current frame's local bindings. Literal values
	// (strings, numbers, bools, nil) render inline; anything else
	// renders as a type placeholder.
	Locals map[string]any

	// SelfState is the flattened self.state.* variable store.
	SelfState map[string]any
}

// BuildContextPrefix renders the code-style scope declaration block:
// module imports detected in the namespace, runtime-managed
// collections (call_stack, owned_meetings, joined_meetings,
// all_agents), locals from the current frame, and self.state.*
// entries, all rendered as Python-flavored comments and assignments.
func BuildContextPrefix(in ContextPrefixInput) string {
	var b strings.Builder

	for _, imp := range in.Imports {
		fmt.Fprintf(&b, "import %s\n", imp)
	}
	if len(in.Imports) > 0 {
		b.WriteByte('\n')
	}

	b.WriteString("# runtime-managed collections\n")
	fmt.Fprintf(&b, "call_stack = ...  # list[Frame], managed by the runtime\n")
	fmt.Fprintf(&b, "owned_meetings = %s\n", pyStringList(in.OwnedMeetings))
	fmt.Fprintf(&b, "joined_meetings = %s\n", pyStringList(in.JoinedMeetings))
	fmt.Fprintf(&b, "all_agents = %s\n", pyStringList(in.AllAgents))

	if len(in.Locals) > 0 {
		b.WriteString("\n# locals carried over from this frame\n")
		for _, name := range sortedKeys(in.Locals) {
			fmt.Fprintf(&b, "%s = %s\n", name, renderScopeValue(in.Locals[name]))
		}
	}

	if len(in.SelfState) > 0 {
		b.WriteString("\n# self.state.*\n")
		for _, name := range sortedKeys(in.SelfState) {
			fmt.Fprintf(&b, "self.state.%s = %s\n", name, renderScopeValue(in.SelfState[name]))
		}
	}

	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pyStringList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = pyQuote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// renderScopeValue shows literals inline and everything else as a
// `... # TypeName` placeholder.
func renderScopeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case string:
		return pyQuote(val)
	case bool:
		if val {
			return "True"
		}
		return "False"
	case int, int32, int64, float32, float64:
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("...  # %T", v)
	}
}

// pyQuote renders a Go string as a Python single-quoted literal, since
// the context prefix is Python-flavored source text (mirroring
// Python's own `repr(value)` formatting).
func pyQuote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString("\\'")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
