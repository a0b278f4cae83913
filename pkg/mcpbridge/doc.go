// Package mcpbridge models the MCP agent kind (spec §4.6: "external
// collaborator, not implemented in core: exposes remote tools as
// playbook wrappers"). It defines the contract only — an mcp-go client
// transport is explicitly out of scope (spec §1 Non-goals) — so an
// Agent here just adapts a statically known set of remote tool
// descriptions into program.Agent's discovery surface, the same shape
// the prompt builder needs to describe any peer.
package mcpbridge
