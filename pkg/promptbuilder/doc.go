// Package promptbuilder assembles the LLM request for one markdown
// playbook call: a preamble loaded from a template, descriptions of
// peer agents and this agent's own public playbooks, available
// triggers, and the compacted call-stack conversation with an embedded
// I-frame/P-frame state block.
package promptbuilder
