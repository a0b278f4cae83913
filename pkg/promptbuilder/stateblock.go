package promptbuilder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kadirpekel/playbooks/pkg/callstack"
)

// StateBlock renders the I-frame/P-frame JSON block embedded in the
// prompt. Label is "Current state" for a
// full snapshot, "State changes" for a non-empty delta; ok is false
// when nothing should be emitted (empty P-frame delta).
func StateBlock(dict map[string]any, frameType callstack.FrameType, frame *callstack.Frame) (label, body string, ok bool) {
	if dict == nil {
		return "", "", false
	}

	raw, err := json.MarshalIndent(dict, "", "  ")
	if err != nil {
		// Dict is always built from JSON-safe primitives by State.ToDict;
		// a marshal failure here is a caller bug, not a runtime condition
		// worth threading an error return for.
		return "", "", false
	}

	if frameType == callstack.FrameTypeI {
		label = "Current state"
	} else {
		label = "State changes"
	}
	return label, annotateArtifactHints(string(raw), frame), true
}

// artifactLineRE matches a JSON object line whose value is the
// "Artifact: <summary>" sentinel, capturing the variable name.
var artifactLineRE = regexp.MustCompile(`^(\s*)"([^"]+)":\s*"Artifact: `)

// annotateArtifactHints appends a trailing comment to every line whose
// value is an artifact sentinel, so the model knows whether it must
// call LoadArtifact before referencing the content.
func annotateArtifactHints(rawJSON string, frame *callstack.Frame) string {
	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(rawJSON))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if !first {
			out.WriteByte('\n')
		}
		first = false

		if m := artifactLineRE.FindStringSubmatch(line); m != nil {
			name := m[2]
			loaded := frame != nil && frame.IsArtifactLoaded(name)
			if loaded {
				line += "  // content loaded above"
			} else {
				line += fmt.Sprintf("  // not loaded: use LoadArtifact('$%s') to load", name)
			}
		}
		out.WriteString(line)
	}
	return out.String()
}
