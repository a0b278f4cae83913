package pbasm

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	agentHeaderRE    = regexp.MustCompile(`^#\s+([A-Za-z_][A-Za-z0-9_]*)\s*:\s*(AI|Human|MCP)\s*$`)
	playbookHeaderRE = regexp.MustCompile(`^##\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(([^)]*)\)\s*(?:->\s*(\S+))?\s*$`)
	triggersLineRE   = regexp.MustCompile(`(?i)^\s*Triggers?\s*:\s*(.+)$`)
)

// Load reads and concatenates every path (in order) and parses the
// result as one PBASM document (spec §6: "the core only reads a PBASM
// string or a list of paths to PBASM files").
func Load(paths []string) (*Program, error) {
	var chunks []string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("pbasm: read %s: %w", p, err)
		}
		chunks = append(chunks, string(data))
	}
	return Parse(strings.Join(chunks, "\n\n"))
}

// Parse compiles a PBASM source string into a Program.
func Parse(source string) (*Program, error) {
	frontMatterText, body := splitFrontMatter(source)

	var frontMatter map[string]any
	if strings.TrimSpace(frontMatterText) != "" {
		if err := yaml.Unmarshal([]byte(frontMatterText), &frontMatter); err != nil {
			return nil, fmt.Errorf("pbasm: front matter: %w", err)
		}
	}

	prog := &Program{FrontMatter: frontMatter}

	var cur *AgentKlass
	var curPB *Playbook
	var descLines, stepLines []string
	inFence := false

	flushPlaybook := func() {
		if curPB == nil {
			return
		}
		curPB.Steps = strings.TrimSpace(strings.Join(stepLines, "\n"))
		cur.Playbooks = append(cur.Playbooks, *curPB)
		curPB = nil
		stepLines = nil
	}
	flushAgent := func() {
		flushPlaybook()
		if cur == nil {
			return
		}
		cur.Description = strings.TrimSpace(strings.Join(descLines, "\n"))
		prog.Agents = append(prog.Agents, *cur)
		cur = nil
		descLines = nil
	}

	for _, line := range strings.Split(body, "\n") {
		if !inFence {
			if m := agentHeaderRE.FindStringSubmatch(line); m != nil {
				flushAgent()
				cur = &AgentKlass{Name: m[1], Kind: Kind(m[2])}
				continue
			}
		}
		if cur == nil {
			continue
		}
		if !inFence {
			if m := playbookHeaderRE.FindStringSubmatch(line); m != nil {
				flushPlaybook()
				curPB = &Playbook{Name: m[1], ArgsSignature: strings.TrimSpace(m[2]), ReturnType: m[3]}
				continue
			}
		}
		if curPB == nil {
			descLines = append(descLines, line)
			continue
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inFence && strings.Contains(trimmed, "python") {
				curPB.IsPython = true
			}
			inFence = !inFence
			continue
		}
		if inFence {
			curPB.Code += line + "\n"
			continue
		}
		if m := triggersLineRE.FindStringSubmatch(line); m != nil {
			for _, t := range strings.Split(m[1], ",") {
				if t = strings.TrimSpace(t); t != "" {
					curPB.Triggers = append(curPB.Triggers, t)
				}
			}
			continue
		}
		stepLines = append(stepLines, line)
	}
	flushAgent()

	if len(prog.Agents) == 0 {
		return nil, fmt.Errorf("pbasm: no agent class sections found")
	}
	return prog, nil
}

// splitFrontMatter extracts a leading `---\n...\n---` YAML block, if
// present, returning it separately from the remaining document body.
func splitFrontMatter(source string) (frontMatter, body string) {
	trimmed := strings.TrimLeft(source, "\n")
	if !strings.HasPrefix(trimmed, "---\n") {
		return "", source
	}
	rest := trimmed[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", source
	}
	after := rest[end+len("\n---"):]
	after = strings.TrimPrefix(after, "\n")
	return rest[:end], after
}
