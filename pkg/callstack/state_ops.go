package callstack

import "fmt"

// SetVariable writes name = value to the variable store, auto-converting
// to an artifact when the stringified value exceeds threshold bytes (spec
// §3, §4.2 Var() contract). The variable's stored value becomes the
// artifact-reference sentinel; the artifact itself holds the full content.
func (s *State) SetVariable(name string, value any, threshold int) {
	str := fmt.Sprintf("%v", value)
	if threshold > 0 && len(str) > threshold {
		summary := summarize(str)
		// The artifact is keyed by the variable's own name so that the
		// "Artifact: ..." sentinel left in the variable always resolves:
		// LoadArtifact('$name') must find it.
		s.Artifacts.Save(name, summary, str)
		s.Variables.Set(name, ArtifactRef(summary))
		return
	}
	s.Variables.Set(name, value)
}

func summarize(content string) string {
	const maxLen = 80
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}

// PushFrame pushes a new frame and logs the playbook start.
func (s *State) PushFrame(f *Frame) {
	s.CallStack.Push(f)
	s.SessionLog.Append(fmt.Sprintf("playbook start: %s", f.IP.PlaybookName), LogLevelHigh)
}

// PopFrame pops the top frame and logs the playbook end.
func (s *State) PopFrame() (*Frame, error) {
	f, err := s.CallStack.Pop()
	if err != nil {
		return nil, err
	}
	s.SessionLog.Append(fmt.Sprintf("playbook end: %s", f.IP.PlaybookName), LogLevelHigh)
	return f, nil
}
