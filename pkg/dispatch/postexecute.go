package dispatch

import (
	"fmt"

	"github.com/kadirpekel/playbooks/pkg/callstack"
)

// postExecute runs the post-execute contract common to every playbook
// call: append a session-log entry, artifact an oversized result, and
// attach either a
// result or an error message to the now-exposed caller frame. The value
// returned to the caller becomes the artifact name when artifacting
// occurred, otherwise the raw result.
func (d *Dispatcher) postExecute(poppedFrame *callstack.Frame, pb *Playbook, result any, execErr error) (any, error) {
	if execErr != nil {
		d.State.SessionLog.Append(
			fmt.Sprintf("playbook call failed: %s: %v", pb.Name, execErr),
			callstack.LogLevelMedium,
		)
		d.attachToParent(callstack.NewLLMMessage(
			callstack.MessageKindExecutionResult,
			fmt.Sprintf("%s failed: %v", pb.Name, execErr),
		))
		return nil, execErr
	}

	d.State.SessionLog.Append(
		fmt.Sprintf("playbook call result: %s", pb.Name),
		callstack.LogLevelLow,
	)

	str := fmt.Sprintf("%v", result)
	if d.cfg.ArtifactResultThreshold > 0 && len(str) > d.cfg.ArtifactResultThreshold {
		// No variable was requested for this result, so the artifact gets
		// a content-hashed name: stable across re-execution of the same
		// playbook with the same output.
		artifactName := callstack.ContentHashName(fmt.Sprintf("%s_result_artifact", pb.Name), str)
		artifact := d.State.Artifacts.Save(artifactName, summarizeResult(str), str)
		d.attachToParent(callstack.NewLLMMessage(
			callstack.MessageKindArtifactLoad,
			fmt.Sprintf("%s returned a large result, saved as artifact %q: %s", pb.Name, artifact.Name, artifact.Summary),
		))
		return artifact.Name, nil
	}

	d.attachToParent(callstack.NewLLMMessage(
		callstack.MessageKindExecutionResult,
		fmt.Sprintf("%s returned: %v", pb.Name, result),
	))
	return result, nil
}

// attachToParent attaches msg to the frame now exposed at the top of the
// stack (the caller) — the callee's frame has already been popped by the
// time post-execute runs, so this is a plain AddLLMMessage, not the
// two-frames-deep AddLLMMessageOnParent used while a callee is still
// pushed.
func (d *Dispatcher) attachToParent(msg *callstack.LLMMessage) {
	d.State.CallStack.AddLLMMessage(msg)
}

func summarizeResult(s string) string {
	const maxLen = 80
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
