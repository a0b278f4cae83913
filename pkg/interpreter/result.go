package interpreter

import "fmt"

// StepRecord is one Step(location) capture, decoded into its parts.
type StepRecord struct {
	PlaybookName     string
	LineNumber       string
	SourceLineNumber int
	Type             string
}

// ExecutionResult aggregates everything one LLM call's streamed body
// produced: steps taken, messages sent, variables/artifacts written,
// triggers fired, the playbook's return value, and at most one
// continuation flag (spec I5).
type ExecutionResult struct {
	Steps     []StepRecord
	Messages  []SayCall
	Vars      map[string]any
	Artifacts []SaveArtifactCall
	Triggers  []string

	ReturnValue      any
	HasReturn        bool
	PlaybookFinished bool

	WaitForUserInput   bool
	WaitForAgentInput  bool
	WaitForAgentTarget string
	ExitProgram        bool
	IsThinking         bool

	SyntaxError    bool
	RuntimeError   bool
	ErrorMessage   string
	ErrorTraceback string
}

// SayCall is one captured Say(target, message) invocation.
type SayCall struct {
	Target  string
	Message string
}

// SaveArtifactCall is one captured SaveArtifact(name, summary, content)
// invocation.
type SaveArtifactCall struct {
	Name    string
	Summary string
	Content string
}

// NewExecutionResult returns a zero-valued result ready for accumulation.
func NewExecutionResult() *ExecutionResult {
	return &ExecutionResult{Vars: make(map[string]any)}
}

// Continuations reports how many of the mutually-exclusive continuation
// flags are set. The executor stops at the first statement that sets
// one, so this is 0 or 1; 0 means the call's code ended without any
// continuation (spec I5).
func (r *ExecutionResult) Continuations() int {
	n := 0
	if r.WaitForUserInput {
		n++
	}
	if r.WaitForAgentInput {
		n++
	}
	if r.ExitProgram {
		n++
	}
	if r.PlaybookFinished {
		n++
	}
	return n
}

// StreamingExecutionError reports a terminal parse failure in the
// streamed statement buffer (spec §4.2): once the buffer is stable and
// still won't parse, no further execution happens for this LLM call.
type StreamingExecutionError struct {
	Statement string
	Cause     error
}

func (e *StreamingExecutionError) Error() string {
	return fmt.Sprintf("streaming execution error in statement %q: %v", e.Statement, e.Cause)
}

func (e *StreamingExecutionError) Unwrap() error { return e.Cause }

// ExecutionFinished is the error form of a Yield("exit"). The interpreter
// does not return it: an exit is reported through
// ExecutionResult.ExitProgram, which ends the exiting agent's own main
// loop; other agents of the program keep running.
type ExecutionFinished struct {
	Reason string
}

func (e *ExecutionFinished) Error() string {
	if e.Reason == "" {
		return "execution finished"
	}
	return "execution finished: " + e.Reason
}
