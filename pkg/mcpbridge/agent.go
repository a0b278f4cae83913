package mcpbridge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/playbooks/pkg/messaging"
	"github.com/kadirpekel/playbooks/pkg/program"
	"github.com/kadirpekel/playbooks/pkg/promptbuilder"
)

// Agent models an MCP-bridged collaborator: program.Agent's discovery
// surface backed by a statically supplied list of remote tools, each
// exposed to peers as a playbook wrapper signature (spec §4.6). No MCP
// client transport runs here: ExecutePlaybook always fails, since
// wiring a live connection is a host's job, not the core's (spec §1
// Non-goals, SPEC_FULL §8 "contract only — no MCP transport is
// implemented").
type Agent struct {
	id          string
	klass       string
	description string
	tools       []mcp.Tool
}

// New returns an MCP agent describing the given remote tools.
func New(id, klass, description string, tools []mcp.Tool) *Agent {
	return &Agent{id: id, klass: klass, description: description, tools: tools}
}

func (a *Agent) ID() string { return a.id }

// Deliver is a no-op: the core never drives an MCP agent's own
// execution loop, so there is nothing to wake up on message arrival.
func (a *Agent) Deliver(msg *messaging.Message) {}

func (a *Agent) Klass() string       { return a.klass }
func (a *Agent) Kind() program.Kind  { return program.KindMCP }
func (a *Agent) Description() string { return a.description }

// Playbooks exposes each remote tool as a wrapper signature a peer's
// generated code can call by name.
func (a *Agent) Playbooks() []promptbuilder.PlaybookSignature {
	out := make([]promptbuilder.PlaybookSignature, 0, len(a.tools))
	for _, t := range a.tools {
		out = append(out, promptbuilder.PlaybookSignature{
			Name:          t.Name,
			ArgsSignature: schemaArgsSignature(t.InputSchema),
			ReturnType:    "Any",
		})
	}
	return out
}

// ExecutePlaybook always fails: invoking a remote MCP tool requires a
// transport this package deliberately does not implement.
func (a *Agent) ExecutePlaybook(ctx context.Context, name string, args []any, kwargs map[string]any) (any, error) {
	return nil, fmt.Errorf("mcpbridge: no transport configured for tool %q (contract only)", name)
}

func schemaArgsSignature(schema mcp.ToolInputSchema) string {
	if len(schema.Properties) == 0 {
		return ""
	}
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
