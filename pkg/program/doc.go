// Package program implements the three agent kinds (AI, Human, MCP) and
// the Program type that owns agent classes, live agents, the event
// bus, channel/meeting registries, and the checkpoint coordinator. It
// wires together pkg/callstack, pkg/dispatch, pkg/messaging, and
// pkg/checkpoint behind the lifecycle operations
// create_run/initialize/begin/route_message/create_agent.
package program
