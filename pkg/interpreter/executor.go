package interpreter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Executor ties the incremental statement parser to the directive
// dispatcher: Feed streams LLM-generated code chunks in and produces an
// ExecutionResult describing every side effect captured along the way.
type Executor struct {
	parser *StatementParser
	ns     *Namespace
	stream *SayStreamDetector
}

// NewExecutor builds an executor for one LLM call against ns.
func NewExecutor(ns *Namespace) *Executor {
	return &Executor{
		parser: NewStatementParser(),
		ns:     ns,
		stream: NewSayStreamDetector(),
	}
}

// SayObserver receives incremental Say() content as the LLM streams it,
// before the statement that produced it has even finished parsing (spec
// §4.2 "Streaming Say detection").
type SayObserver interface {
	OnSayChunk(target, chunk string)
	OnSayComplete(target string)
}

// Feed accepts one streamed chunk of code (already stripped of fence
// markers by the caller), runs the real-time Say detector over it, then
// executes any statements the buffer now closes out. It stops at the
// first statement that sets a continuation flag or fails to execute;
// content that never closes into a statement stays buffered and is
// reported by Finish as a *StreamingExecutionError.
func (e *Executor) Feed(ctx context.Context, chunk string, observer SayObserver) (*ExecutionResult, error) {
	if observer != nil {
		e.stream.Feed(chunk, observer)
	}

	statements := e.parser.AddChunk(chunk)
	for _, stmt := range statements {
		if err := e.execute(ctx, stmt); err != nil {
			return e.ns.Result, err
		}
		if e.ns.Result.Continuations() > 0 {
			return e.ns.Result, nil
		}
	}
	return e.ns.Result, nil
}

// Finish reports whether the interpreter still holds unexecuted content
// once the LLM call's stream has ended — a terminal parse error.
func (e *Executor) Finish() error {
	if !e.parser.HasBufferedContent() {
		return nil
	}
	remainder := strings.TrimSpace(e.parser.Buffer())
	if remainder == "" {
		return nil
	}
	return &StreamingExecutionError{Statement: remainder, Cause: fmt.Errorf("unterminated statement at end of stream")}
}

func (e *Executor) execute(ctx context.Context, raw string) error {
	stmt := parseStatement(raw)

	switch stmt.kind {
	case stmtStateAssign:
		value := evalExpr(e.ns, stmt.argsRaw)
		e.ns.Result.Vars[stmt.stateKey] = value
		return nil

	case stmtAssign:
		if stmt.callee == "" {
			e.ns.Assign(stmt.lhs, evalExpr(e.ns, stmt.argsRaw))
			return nil
		}
		return e.dispatchCall(ctx, stmt.callee, stmt.argsRaw, stmt.lhs)

	case stmtCall:
		return e.dispatchCall(ctx, stmt.callee, stmt.argsRaw, "")

	default:
		// Opaque statements (plain expressions, control flow the grammar
		// doesn't model) are accepted as no-ops: the generated playbook
		// bodies this interpreter targets express every side effect
		// through a capture function or playbook call.
		return nil
	}
}

func (e *Executor) dispatchCall(ctx context.Context, callee, argsRaw, assignTo string) error {
	name := calleeName(callee)
	if !isCaptureFunction(name) {
		return e.dispatchPlaybookCall(ctx, callee, argsRaw, assignTo)
	}

	args := splitArgs(argsRaw)
	positional, kwargs := e.evalAll(args)

	switch name {
	case "Step":
		return e.captureStep(arg(positional, 0))
	case "Say":
		return e.captureSay(argStr(positional, kwargs, 0, "target"), argStr(positional, kwargs, 1, "message"))
	case "Var":
		e.ns.Result.Vars[argStr(positional, kwargs, 0, "name")] = argAny(positional, kwargs, 1, "value")
		return nil
	case "SaveArtifact":
		e.ns.Result.Artifacts = append(e.ns.Result.Artifacts, SaveArtifactCall{
			Name:    argStr(positional, kwargs, 0, "name"),
			Summary: argStr(positional, kwargs, 1, "summary"),
			Content: argStr(positional, kwargs, 2, "content"),
		})
		e.ns.Result.Vars[argStr(positional, kwargs, 0, "name")] = argStr(positional, kwargs, 2, "content")
		return nil
	case "Trigger", "LogTrigger":
		e.ns.Result.Triggers = append(e.ns.Result.Triggers, argStr(positional, kwargs, 0, "code"))
		return nil
	case "Return":
		e.ns.Result.ReturnValue = argAny(positional, kwargs, 0, "value")
		e.ns.Result.HasReturn = true
		e.ns.Result.PlaybookFinished = true
		// The returned value chains through self.state._ as well as the
		// local scope.
		e.ns.Result.Vars["_"] = e.ns.Result.ReturnValue
		e.ns.Assign("_", e.ns.Result.ReturnValue)
		return nil
	case "Yield", "WaitForMessage":
		return e.captureYield(argStr(positional, kwargs, 0, "target"))
	}
	return nil
}

func (e *Executor) captureStep(location string) error {
	parts := strings.SplitN(location, ":", 3)
	rec := StepRecord{PlaybookName: location}
	if len(parts) == 3 {
		rec.PlaybookName = parts[0]
		rec.LineNumber = parts[1]
		rec.Type = parts[2]
		if n, err := strconv.Atoi(strings.TrimLeft(parts[1], "0")); err == nil {
			rec.SourceLineNumber = n
		}
	}
	e.ns.Result.Steps = append(e.ns.Result.Steps, rec)
	if rec.Type == "TNK" {
		e.ns.Result.IsThinking = true
	}
	return nil
}

func (e *Executor) captureSay(target, message string) error {
	e.ns.Result.Messages = append(e.ns.Result.Messages, SayCall{Target: target, Message: message})
	return nil
}

func (e *Executor) captureYield(target string) error {
	switch target {
	case "user", "human", "":
		e.ns.Result.WaitForUserInput = true
	case "exit":
		e.ns.Result.ExitProgram = true
	case "return":
		e.ns.Result.ReturnValue = nil
		e.ns.Result.HasReturn = true
		e.ns.Result.PlaybookFinished = true
	default:
		e.ns.Result.WaitForAgentInput = true
		e.ns.Result.WaitForAgentTarget = target
	}
	return nil
}

func (e *Executor) dispatchPlaybookCall(ctx context.Context, callee, argsRaw, assignTo string) error {
	args := splitArgs(argsRaw)
	positional, kwargs := e.evalAll(args)

	if e.ns.Invoker == nil {
		return fmt.Errorf("interpreter: no playbook invoker configured for call %q", callee)
	}
	result, err := e.ns.Invoker.InvokePlaybook(ctx, callee, positional, kwargs)
	if err != nil {
		// A failed playbook call never crosses the LLM boundary as an
		// exception; the caller observes an ERROR:-prefixed result string
		// and may react to it on its next turn.
		result = "ERROR: " + err.Error()
	}
	if assignTo != "" {
		e.ns.Assign(assignTo, result)
	}
	return nil
}

func (e *Executor) evalAll(rawArgs []string) ([]any, map[string]any) {
	var positional []any
	kwargs := make(map[string]any)
	for _, raw := range rawArgs {
		if raw == "" {
			continue
		}
		kw, val := evalArg(e.ns, raw)
		if kw != "" {
			kwargs[kw] = val
		} else {
			positional = append(positional, val)
		}
	}
	return positional, kwargs
}

func arg(positional []any, i int) string {
	if i < len(positional) {
		if s, ok := positional[i].(string); ok {
			return s
		}
		if positional[i] != nil {
			return fmt.Sprintf("%v", positional[i])
		}
	}
	return ""
}

func argStr(positional []any, kwargs map[string]any, i int, name string) string {
	if v, ok := kwargs[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return arg(positional, i)
}

func argAny(positional []any, kwargs map[string]any, i int, name string) any {
	if v, ok := kwargs[name]; ok {
		return v
	}
	if i < len(positional) {
		return positional[i]
	}
	return nil
}
